// Package cli holds terminal formatting shared by the stargate commands.
package cli

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// colorEnabled is false when NO_COLOR is set (per no-color.org) or stdout
// is not a terminal.
var colorEnabled = os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd()))

// SetColor forces ANSI colors on or off.
func SetColor(enabled bool) {
	colorEnabled = enabled
}

func wrap(code, s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func Green(s string) string  { return wrap("32", s) }
func Yellow(s string) string { return wrap("33", s) }
func Red(s string) string    { return wrap("31", s) }
func Bold(s string) string   { return wrap("1", s) }
func Dim(s string) string    { return wrap("2", s) }

// DotPad pads name with dots to the given width.
// Example: DotPad("root", 12) → "root ......."
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	return name + " " + strings.Repeat(".", width-len(name)-1)
}

// OK renders a pass/fail marker.
func OK(ok bool) string {
	if ok {
		return Green("ok")
	}
	return Red("FAIL")
}

// SignalBars renders a 0-100 quality as four bars, e.g. "▂▄▆_" for 75.
func SignalBars(quality int) string {
	bars := []string{"▂", "▄", "▆", "█"}
	lit := (quality + 12) / 25
	if lit > 4 {
		lit = 4
	}
	if lit < 0 {
		lit = 0
	}
	var sb strings.Builder
	for i, b := range bars {
		if i < lit {
			sb.WriteString(b)
		} else {
			sb.WriteString("_")
		}
	}
	s := sb.String()
	switch {
	case quality >= 60:
		return Green(s)
	case quality >= 30:
		return Yellow(s)
	default:
		return Red(s)
	}
}
