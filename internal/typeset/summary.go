package typeset

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxExamples bounds how many items each summary section lists.
const MaxExamples = 6

var (
	latexErrorRe  = regexp.MustCompile(`(?m)^! (.+)$`)
	lineRe        = regexp.MustCompile(`l\.(\d+)\s*(.*)`)
	placeholderRe = regexp.MustCompile(`<<\s*([^<>]+?)\s*>>`)
	missingCharRe = regexp.MustCompile(`Missing character: There is no (.+?) in font (.+?)!`)
	citationRe    = regexp.MustCompile(`LaTeX Warning: Citation '([^']+)' .*undefined(?: on input line (\d+))?`)
	referenceRe   = regexp.MustCompile("LaTeX Warning: Reference `([^`]+)' .* undefined(?: on input line (\\d+))?")
	noFileRe      = regexp.MustCompile(`No file ([\w\./-]+)\.`)
	overfullRe    = regexp.MustCompile(`Overfull \\hbox.*`)
	outputRe      = regexp.MustCompile(`Output written on (.+?) \((\d+) pages?\)\.`)
)

const noFindings = "No clear error indication found in the output."

type latexError struct {
	msg     string
	line    string
	snippet string
}

// Summarize condenses typesetting output into a short report covering fatal
// errors, unresolved placeholders, missing glyphs, undefined citations and
// references, bibliography problems, overfull boxes and the final page count.
func Summarize(output string, maxExamples int) string {
	if maxExamples <= 0 {
		maxExamples = MaxExamples
	}
	var parts []string

	if errs := findErrors(output); len(errs) > 0 {
		parts = append(parts, "LaTeX errors (first shown):")
		for _, e := range limit(errs, maxExamples) {
			if e.line != "" {
				parts = append(parts, fmt.Sprintf(" • line %s: %s (near: %s)", e.line, e.msg, e.snippet))
			} else {
				parts = append(parts, " • "+e.msg)
			}
		}
	}
	if names := uniqueGroup(placeholderRe.FindAllStringSubmatch(output, -1), 1); len(names) > 0 {
		parts = append(parts, "Unresolved placeholders:")
		parts = append(parts, " • "+strings.Join(limit(names, maxExamples), ", "))
	}
	if fonts, chars := missingChars(output); len(fonts) > 0 {
		parts = append(parts, "Missing characters (often text typed in math mode):")
		for _, font := range fonts {
			parts = append(parts, fmt.Sprintf(" • %s: %s", font, strings.Join(limit(chars[font], 10), ", ")))
		}
	}
	if keys := uniqueGroup(citationRe.FindAllStringSubmatch(output, -1), 1); len(keys) > 0 {
		parts = append(parts, fmt.Sprintf("Undefined citations (%d):", len(keys)))
		parts = append(parts, " • "+strings.Join(limit(keys, maxExamples), ", "))
		if len(keys) > maxExamples {
			parts = append(parts, fmt.Sprintf(" • ... +%d more", len(keys)-maxExamples))
		}
	}
	if keys := uniqueGroup(referenceRe.FindAllStringSubmatch(output, -1), 1); len(keys) > 0 {
		parts = append(parts, fmt.Sprintf("Unresolved references (%d):", len(keys)))
		parts = append(parts, " • "+strings.Join(limit(keys, maxExamples), ", "))
	}
	if files := group(noFileRe.FindAllStringSubmatch(output, -1), 1); len(files) > 0 {
		parts = append(parts, "Missing bibliography file(s): "+strings.Join(limit(files, maxExamples), ", "))
	}
	if strings.Contains(output, "LaTeX Warning: Empty bibliography") {
		parts = append(parts, "Empty bibliography.")
	}
	if strings.Contains(output, "Please (re)run Biber") {
		parts = append(parts, "biblatex asks for Biber: run `biber main` and recompile (biber + 2x xelatex).")
	}
	if n := len(overfullRe.FindAllString(output, -1)); n > 0 {
		parts = append(parts, fmt.Sprintf("Overfull \\hbox: %d occurrence(s) (layout warnings).", n))
	}
	if m := outputRe.FindStringSubmatch(output); m != nil {
		parts = append(parts, fmt.Sprintf("PDF written: %s (%s pages).", m[1], m[2]))
	}
	if len(parts) == 0 {
		return noFindings
	}
	return strings.Join(parts, "\n")
}

// findErrors pairs each "! message" line with the nearest following l.<n>
// marker, falling back to the last one before it.
func findErrors(output string) []latexError {
	var errs []latexError
	for _, loc := range latexErrorRe.FindAllStringSubmatchIndex(output, -1) {
		e := latexError{msg: strings.TrimSpace(output[loc[2]:loc[3]])}
		tailEnd := loc[1] + 600
		if tailEnd > len(output) {
			tailEnd = len(output)
		}
		if m := lineRe.FindStringSubmatch(output[loc[1]:tailEnd]); m != nil {
			e.line, e.snippet = m[1], strings.TrimSpace(m[2])
		} else if prev := lineRe.FindAllStringSubmatch(output[:loc[0]], -1); len(prev) > 0 {
			last := prev[len(prev)-1]
			e.line, e.snippet = last[1], last[2]
		}
		errs = append(errs, e)
	}
	return errs
}

func missingChars(output string) ([]string, map[string][]string) {
	var fonts []string
	chars := map[string][]string{}
	seen := map[string]struct{}{}
	for _, m := range missingCharRe.FindAllStringSubmatch(output, -1) {
		ch, font := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if _, ok := chars[font]; !ok {
			fonts = append(fonts, font)
		}
		key := font + "\x00" + ch
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		chars[font] = append(chars[font], ch)
	}
	return fonts, chars
}

func group(matches [][]string, idx int) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[idx])
	}
	return out
}

func uniqueGroup(matches [][]string, idx int) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range matches {
		if _, ok := seen[m[idx]]; ok {
			continue
		}
		seen[m[idx]] = struct{}{}
		out = append(out, m[idx])
	}
	return out
}

func limit[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
