package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewTableTo(&buf, "NAME", "GATEWAY").Flush()
	if buf.Len() != 0 {
		t.Errorf("empty table printed %q", buf.String())
	}
}

func TestTable_Rows(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "NAME", "GATEWAY").WithPrefix("  ")
	tbl.Row("Side router", "192.168.50.3")
	tbl.Row("Home", "-")
	tbl.Flush()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "  NAME") || !strings.HasPrefix(lines[1], "  ----") {
		t.Errorf("header lines = %q, %q", lines[0], lines[1])
	}
	if strings.Index(lines[2], "192.168.50.3") != strings.Index(lines[0], "GATEWAY") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestTable_ColoredCellsAlign(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "STATUS", "NAME")
	tbl.Row("\033[32mok\033[0m", "first")
	tbl.Row("failed", "second")
	tbl.Flush()

	lines := strings.Split(strings.TrimRight(ansiRe.ReplaceAllString(buf.String(), ""), "\n"), "\n")
	if strings.Index(lines[2], "first") != strings.Index(lines[3], "second") {
		t.Errorf("colored column misaligned:\n%s", buf.String())
	}
	if strings.HasSuffix(lines[2], " ") {
		t.Errorf("last column should not be padded: %q", lines[2])
	}
}

func TestVisualLen(t *testing.T) {
	if got := visualLen("\033[32mok\033[0m"); got != 2 {
		t.Errorf("visualLen(colored) = %d, want 2", got)
	}
	if got := visualLen("▂▄▆█"); got != 4 {
		t.Errorf("visualLen(bars) = %d, want 4", got)
	}
}
