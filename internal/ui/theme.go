package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme bundles the styles, symbols and border every renderer pulls from.
type Theme struct {
	Name string

	Title, Muted, Accent, Success, Warn, Error, Pending lipgloss.Style
	Selected, Done, Help                                lipgloss.Style

	Border                   lipgloss.Border
	BorderColor              lipgloss.TerminalColor
	BoxChecked, BoxUnchecked string
	BarFull, BarEmpty        string
}

var current = classic()

func classic() Theme {
	return Theme{
		Name:         "classic",
		Title:        lipgloss.NewStyle().Bold(true),
		Muted:        lipgloss.NewStyle().Faint(true),
		Accent:       lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Success:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Warn:         lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Pending:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Selected:     lipgloss.NewStyle().Bold(true).Reverse(true),
		Done:         lipgloss.NewStyle().Faint(true).Strikethrough(true),
		Help:         lipgloss.NewStyle().Faint(true),
		Border:       lipgloss.NormalBorder(),
		BorderColor:  lipgloss.Color("8"),
		BoxChecked:   "☑",
		BoxUnchecked: "☐",
		BarFull:      "█",
		BarEmpty:     "░",
	}
}

// SetTheme switches the palette. Unknown names fall back to classic.
func SetTheme(name string) {
	switch strings.ToLower(name) {
	case "neon":
		t := classic()
		t.Name = "neon"
		t.Title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
		t.Accent = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
		t.Pending = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
		t.Border = lipgloss.RoundedBorder()
		t.BorderColor = lipgloss.Color("13")
		t.BoxChecked, t.BoxUnchecked = "◼", "◻"
		current = t
	case "mono":
		plain := lipgloss.NewStyle()
		t := Theme{Name: "mono", Border: lipgloss.ASCIIBorder(), BorderColor: lipgloss.NoColor{}}
		t.Title, t.Muted, t.Accent, t.Success = plain, plain, plain, plain
		t.Warn, t.Error, t.Pending, t.Help, t.Done = plain, plain, plain, plain, plain
		t.Selected = plain.Reverse(true)
		t.BoxChecked, t.BoxUnchecked = "[x]", "[ ]"
		t.BarFull, t.BarEmpty = "#", "-"
		current = t
	default:
		current = classic()
	}
}

// Current returns the active theme.
func Current() Theme { return current }

// SetColorForcing overrides terminal detection. disable wins over force.
func SetColorForcing(force, disable bool) {
	switch {
	case disable:
		lipgloss.SetColorProfile(termenv.Ascii)
	case force:
		lipgloss.SetColorProfile(termenv.ANSI256)
	}
}
