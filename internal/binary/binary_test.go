// SPDX-License-Identifier: MPL-2.0

package binary

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const testTarget = "x86_64-unknown-linux-gnu"

// releaseServer fakes the latest pointer and the archive endpoint. archive
// decides the response of each archive request; attempt starts at 1.
type releaseServer struct {
	*httptest.Server
	pointer        string
	latestRequests atomic.Int32
	archiveHits    atomic.Int32
	archive        func(w http.ResponseWriter, attempt int)
}

func newReleaseServer(t *testing.T, pointer string, archive func(w http.ResponseWriter, attempt int)) *releaseServer {
	t.Helper()

	rs := &releaseServer{pointer: pointer, archive: archive}
	mux := http.NewServeMux()
	mux.HandleFunc("/release-latest.txt", func(w http.ResponseWriter, _ *http.Request) {
		rs.latestRequests.Add(1)
		_, _ = fmt.Fprint(w, rs.pointer)
	})
	mux.HandleFunc("/release/", func(w http.ResponseWriter, r *http.Request) {
		want := fmt.Sprintf("/release/v%s/deno-%s.zip", trimV(rs.pointer), testTarget)
		if r.URL.Path != want {
			http.NotFound(w, r)
			return
		}
		rs.archive(w, int(rs.archiveHits.Add(1)))
	})
	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func (rs *releaseServer) options() []Option {
	return []Option{
		WithHTTPClient(rs.Client()),
		WithLatestURL(rs.URL + "/release-latest.txt"),
		WithReleaseBaseURL(rs.URL + "/release"),
		WithPlatform("linux", "amd64"),
	}
}

func trimV(pointer string) string {
	return strings.TrimPrefix(strings.TrimSpace(pointer), "v")
}

// zipArchive builds a release archive holding a single file.
func zipArchive(t *testing.T, name, content string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func serveArchive(data []byte) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(data)
	}
}

// breakStream hijacks the connection and closes it after a partial body.
func breakStream(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "no hijack", http.StatusInternalServerError)
		return
	}
	conn, buf, err := hj.Hijack()
	if err != nil {
		return
	}
	_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Type: application/zip\r\nContent-Length: 1000\r\n\r\nzipcontent")
	_ = buf.Flush()
	_ = conn.Close()
}
