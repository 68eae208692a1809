// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/charmbracelet/lipgloss"

// Palette for CLI output, tuned for dark terminals.
const (
	// ColorPrimary is purple for titles and headers.
	ColorPrimary = lipgloss.Color("#7C3AED")

	// ColorMuted is gray for secondary text.
	ColorMuted = lipgloss.Color("#6B7280")

	// ColorSuccess is green for success.
	ColorSuccess = lipgloss.Color("#10B981")

	// ColorError is red for errors.
	ColorError = lipgloss.Color("#EF4444")

	// ColorWarning is amber for warnings.
	ColorWarning = lipgloss.Color("#F59E0B")

	// ColorHighlight is blue for commands and links.
	ColorHighlight = lipgloss.Color("#3B82F6")
)

// Styles built from the palette.
var (
	// TitleStyle renders titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SubtitleStyle renders secondary text.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// SuccessStyle renders success markers.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// ErrorStyle renders error markers.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	// WarningStyle renders warnings.
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// CmdStyle renders command names and keys.
	CmdStyle = lipgloss.NewStyle().
			Foreground(ColorHighlight)

	// URLStyle renders addresses.
	URLStyle = lipgloss.NewStyle().
			Underline(true).
			Foreground(ColorHighlight)
)
