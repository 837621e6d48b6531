// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/molihua12345/KubeAgent/internal/format"
)

// Theme holds all the styled components for the application.
type Theme struct {
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER / STATUS
	// ==========================================================================

	Header        lipgloss.Style
	HeaderTitle   lipgloss.Style
	StatusBar     lipgloss.Style
	StatusOnline  lipgloss.Style
	StatusOffline lipgloss.Style
	StatusPending lipgloss.Style
	ShortcutKey   lipgloss.Style
	ShortcutDesc  lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserText       lipgloss.Style
	ErrorText      lipgloss.Style
	Timestamp      lipgloss.Style
	Stats          lipgloss.Style
	Streaming      lipgloss.Style
	Placeholder    lipgloss.Style

	// ==========================================================================
	// SIDEBAR
	// ==========================================================================

	Sidebar             lipgloss.Style
	SidebarTitle        lipgloss.Style
	SessionItem         lipgloss.Style
	SessionItemSelected lipgloss.Style
	SessionItemActive   lipgloss.Style
	SessionPreview      lipgloss.Style

	// ==========================================================================
	// INPUT
	// ==========================================================================

	InputContainer   lipgloss.Style
	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style
	Spinner          lipgloss.Style
	Notice           lipgloss.Style

	// Palette renders formatted assistant replies.
	Palette format.Palette
}

// NewTheme creates a theme. name is "dark" or "light"; anything else
// follows the terminal background.
func NewTheme(name string) *Theme {
	name = strings.ToLower(strings.TrimSpace(name))

	isDark := termenv.HasDarkBackground()
	switch name {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		Name:         name,
		IsDark:       isDark,
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusOnline = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.StatusOffline = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.StatusPending = lipgloss.NewStyle().Foreground(Amber)

	t.ShortcutKey = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.ShortcutDesc = lipgloss.NewStyle().Foreground(TextMuted)

	// Messages
	t.UserLabel = lipgloss.NewStyle().Foreground(UserAccent).Bold(true)
	t.AssistantLabel = lipgloss.NewStyle().Foreground(AssistantAccent).Bold(true)
	t.UserText = lipgloss.NewStyle().Foreground(TextPrimary)
	t.ErrorText = lipgloss.NewStyle().
		Foreground(ErrorBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Rose).
		BorderLeft(true).
		PaddingLeft(1)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)
	t.Stats = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)
	t.Streaming = lipgloss.NewStyle().Foreground(TextSecondary)
	t.Placeholder = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	// Sidebar
	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.SidebarTitle = lipgloss.NewStyle().Foreground(Purple).Bold(true)

	t.SessionItem = lipgloss.NewStyle().Foreground(TextPrimary)

	t.SessionItemSelected = lipgloss.NewStyle().
		Background(Purple).
		Foreground(TextInverse).
		Bold(true)

	t.SessionItemActive = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.SessionPreview = lipgloss.NewStyle().Foreground(TextMuted)

	// Input
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.InputPlaceholder = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)
	t.Spinner = lipgloss.NewStyle().Foreground(Purple)
	t.Notice = lipgloss.NewStyle().Foreground(Amber)

	t.Palette = format.DefaultPalette(t.IsDark)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns, no sidebar
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

// ShowSidebar reports whether the session sidebar fits.
func (m LayoutMode) ShowSidebar() bool {
	return m != LayoutNarrow
}
