// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
)

func TestNewThemeExplicit(t *testing.T) {
	tests := []struct {
		name       string
		wantDark   bool
		wantChroma string
	}{
		{"dark", true, "monokai"},
		{"Light", false, "github"},
	}
	for _, tt := range tests {
		th := NewTheme(tt.name)
		if th.IsDark != tt.wantDark {
			t.Errorf("NewTheme(%q).IsDark = %v, want %v", tt.name, th.IsDark, tt.wantDark)
		}
		if th.Palette.ChromaName != tt.wantChroma {
			t.Errorf("NewTheme(%q) chroma = %q, want %q", tt.name, th.Palette.ChromaName, tt.wantChroma)
		}
	}
}

func TestLayoutMode(t *testing.T) {
	th := NewTheme("dark")
	tests := []struct {
		width   int
		want    LayoutMode
		sidebar bool
	}{
		{40, LayoutNarrow, false},
		{80, LayoutMedium, true},
		{140, LayoutWide, true},
	}
	for _, tt := range tests {
		th.SetSize(tt.width, 30)
		got := th.GetLayoutMode()
		if got != tt.want {
			t.Errorf("width %d: mode = %v, want %v", tt.width, got, tt.want)
		}
		if got.ShowSidebar() != tt.sidebar {
			t.Errorf("width %d: ShowSidebar = %v", tt.width, got.ShowSidebar())
		}
	}
}

func TestRenderIndicators(t *testing.T) {
	tests := []struct {
		fn   func(string) string
		want string
	}{
		{RenderSuccess, "[OK] saved"},
		{RenderError, "[X] saved"},
		{RenderWarning, "[!] saved"},
		{RenderInfo, "[i] saved"},
	}
	for _, tt := range tests {
		if got := tt.fn("saved"); !strings.Contains(got, tt.want) {
			t.Errorf("rendered %q, want it to contain %q", got, tt.want)
		}
	}
}
