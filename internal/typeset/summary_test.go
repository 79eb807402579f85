package typeset

import (
	"fmt"
	"strings"
	"testing"
)

const sampleLog = `This is XeTeX, Version 3.141592653
(./main.tex
! Undefined control sequence.
l.12 \foo
         {bar}
Missing character: There is no ² in font cmr10!
Missing character: There is no ³ in font cmr10!
Missing character: There is no ² in font cmr10!
LaTeX Warning: Citation 'knuth' on page 1 undefined on input line 20.
LaTeX Warning: Citation 'knuth' on page 2 undefined on input line 30.
LaTeX Warning: Reference ` + "`fig:1'" + ` on page 1 undefined on input line 40.
No file main.bbl.
LaTeX Warning: Empty bibliography on input line 50.
Package biblatex Warning: Please (re)run Biber on the file:
Overfull \hbox (12.0pt too wide) in paragraph at lines 3--4
Overfull \hbox (3.0pt too wide) in paragraph at lines 8--9
leftover << .title >> marker
Output written on main.pdf (3 pages).
`

func TestSummarizeCoversEveryClass(t *testing.T) {
	got := Summarize(sampleLog, MaxExamples)
	for _, want := range []string{
		`line 12: Undefined control sequence. (near: \foo)`,
		"Unresolved placeholders:\n • .title",
		"cmr10: ², ³",
		"Undefined citations (1):\n • knuth",
		"Unresolved references (1):\n • fig:1",
		"Missing bibliography file(s): main.bbl",
		"Empty bibliography.",
		"biblatex asks for Biber",
		"Overfull \\hbox: 2 occurrence(s)",
		"PDF written: main.pdf (3 pages).",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestSummarizeFallsBackToPreviousLineMarker(t *testing.T) {
	log := "l.7 \\bad\nsome text\n! Emergency stop.\n"
	got := Summarize(log, MaxExamples)
	if !strings.Contains(got, "line 7: Emergency stop.") {
		t.Fatalf("unexpected summary:\n%s", got)
	}
}

func TestSummarizeErrorWithoutLine(t *testing.T) {
	got := Summarize("! I can't find file `missing.tex'.\n", MaxExamples)
	if !strings.Contains(got, " • I can't find file `missing.tex'.") {
		t.Fatalf("unexpected summary:\n%s", got)
	}
}

func TestSummarizeLimitsCitations(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "LaTeX Warning: Citation 'key%d' on page 1 undefined.\n", i)
	}
	got := Summarize(b.String(), MaxExamples)
	if !strings.Contains(got, "Undefined citations (8):") || !strings.Contains(got, "... +2 more") {
		t.Fatalf("unexpected summary:\n%s", got)
	}
	if strings.Contains(got, "key6") {
		t.Fatalf("summary lists more than %d keys:\n%s", MaxExamples, got)
	}
}

func TestSummarizeNothingFound(t *testing.T) {
	if got := Summarize("all good\n", 0); got != noFindings {
		t.Fatalf("got %q", got)
	}
}
