// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/edgeserve/edgeserve/cmd/edgeserve"

func main() {
	cmd.Execute()
}
