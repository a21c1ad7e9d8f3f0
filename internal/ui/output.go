package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Stdout and Stderr are where the line helpers print.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

func OK(msg string)   { fmt.Fprintln(Stdout, current.Success.Render("✔ "+msg)) }
func Warn(msg string) { fmt.Fprintln(Stderr, current.Warn.Render("! "+msg)) }
func Fail(msg string) { fmt.Fprintln(Stderr, current.Error.Render("✖ "+msg)) }

// Fields renders per-field messages as an indented, sorted block.
func Fields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "  %s %s", current.Muted.Render(k+":"), fields[k])
	}
	return b.String()
}
