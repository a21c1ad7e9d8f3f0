package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Panel frames lines with the current theme's border.
func Panel(lines []string) string {
	t := current
	return lipgloss.NewStyle().
		Border(t.Border).
		BorderForeground(t.BorderColor).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

// ProgressBar renders done/total as a bar of width cells and a percentage.
func ProgressBar(done, total, width int) string {
	if width < 5 {
		width = 5
	}
	filled, pct := 0, 0
	if total > 0 {
		filled = done * width / total
		pct = done * 100 / total
	}
	if filled > width {
		filled = width
	}
	t := current
	bar := t.Success.Render(strings.Repeat(t.BarFull, filled)) +
		t.Muted.Render(strings.Repeat(t.BarEmpty, width-filled))
	return fmt.Sprintf("%s %3d%%", bar, pct)
}

// Chart is the pending/completed summary: one bar per status, scaled to
// the larger of the two.
func Chart(pending, completed, width int) string {
	top := pending
	if completed > top {
		top = completed
	}
	row := func(label string, n int, style lipgloss.Style) string {
		cells := 0
		if top > 0 {
			cells = n * width / top
		}
		return fmt.Sprintf("%-9s %s %d", label, style.Render(strings.Repeat(current.BarFull, cells)), n)
	}
	return row("Pending", pending, current.Pending) + "\n" + row("Completed", completed, current.Success)
}
