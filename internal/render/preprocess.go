package render

import (
	"regexp"
	"strings"
)

const (
	leftDelim  = "<<"
	rightDelim = ">>"
)

var blockTag = regexp.MustCompile(`(?s)<<%(.*?)%>>`)

// preprocess rewrites <<% stmt %>> block tags into plain << stmt >> actions.
// A block tag that is the only thing on its line loses its indentation, and
// a single newline directly after a block tag is dropped, so control flow
// does not leave blank lines in the rendered document.
func preprocess(src string) string {
	matches := blockTag.FindAllStringSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return src
	}
	var b strings.Builder
	b.Grow(len(src))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		body := strings.TrimSpace(src[m[2]:m[3]])
		indent := start
		for indent > last && (src[indent-1] == ' ' || src[indent-1] == '\t') {
			indent--
		}
		if indent == 0 || src[indent-1] == '\n' {
			b.WriteString(src[last:indent])
		} else {
			b.WriteString(src[last:start])
		}
		b.WriteString(leftDelim)
		b.WriteString(body)
		b.WriteString(rightDelim)
		switch {
		case strings.HasPrefix(src[end:], "\r\n"):
			end += 2
		case strings.HasPrefix(src[end:], "\n"):
			end++
		}
		last = end
	}
	b.WriteString(src[last:])
	return b.String()
}
