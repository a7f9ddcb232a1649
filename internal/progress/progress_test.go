package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestFinishPrintsSummary(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, "copying")
	p.Start(2, 3000)
	p.Add(1000)
	p.Add(2000)
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "✓ copying (2 files, 3.0 kB") {
		t.Fatalf("unexpected summary %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("summary line not terminated: %q", out)
	}
}

func TestFinishWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "idle").Finish()
	if buf.Len() != 0 {
		t.Fatalf("wrote %q", buf.String())
	}
}

func TestLineWithoutBytes(t *testing.T) {
	p := New(&bytes.Buffer{}, "x")
	p.totalFiles = 4
	p.files = 1
	if got := p.line(); !strings.HasPrefix(got, "[1/4]") {
		t.Fatalf("line %q", got)
	}
}
