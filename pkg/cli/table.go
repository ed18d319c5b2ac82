package cli

import (
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// columnGap separates columns.
const columnGap = 2

// Table buffers rows and prints them column-aligned on Flush. Widths are
// measured without ANSI color codes, so colored cells line up. Headers and a
// dash divider precede the rows; a table with no rows prints nothing.
type Table struct {
	out     io.Writer
	headers []string
	prefix  string
	rows    [][]string
}

// NewTable creates a table on stdout with the given column headers.
func NewTable(headers ...string) *Table {
	return NewTableTo(os.Stdout, headers...)
}

// NewTableTo creates a table that writes to out.
func NewTableTo(out io.Writer, headers ...string) *Table {
	return &Table{out: out, headers: headers}
}

// WithPrefix sets a string prepended to each line.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// Row buffers one row.
func (t *Table) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Flush prints the buffered rows and resets the table.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}
	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", visualLen(h))
	}
	lines := append([][]string{t.headers, dividers}, t.rows...)

	var widths []int
	for _, line := range lines {
		for i, cell := range line {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if n := visualLen(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(t.prefix)
		for i, cell := range line {
			sb.WriteString(cell)
			if i < len(line)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-visualLen(cell)+columnGap))
			}
		}
		sb.WriteByte('\n')
	}
	io.WriteString(t.out, sb.String())
	t.rows = nil
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visualLen is the printed width of s, ignoring ANSI color codes.
func visualLen(s string) int {
	return utf8.RuneCountInString(ansiRe.ReplaceAllString(s, ""))
}
