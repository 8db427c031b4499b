package normalisers

import (
	"strings"
	"unicode"
)

// CollapseWhitespace replaces every run of whitespace with a single space
// and trims the result. Casing and tokenisation are left untouched.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeLines collapses whitespace within each line and reduces runs of
// blank lines to a single line break. Line breaks are kept because the
// chunker uses them as cut points.
func NormalizeLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, line := range strings.Split(s, "\n") {
		line = CollapseWhitespace(strings.Map(dropControl, line))
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}

// dropControl maps form feeds and other control characters to spaces.
func dropControl(r rune) rune {
	if r != '\t' && unicode.IsControl(r) {
		return ' '
	}
	return r
}

// WordCount returns the whitespace-delimited token count.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// TitleFromURI derives a readable title from a file name.
func TitleFromURI(uri string) string {
	name := uri
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}

// FirstLineTitle returns the first non-empty line shorter than 200
// characters, or the file name when there is none.
func FirstLineTitle(content, uri string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len([]rune(line)) < 200 {
			return line
		}
		if line != "" {
			break
		}
	}
	return TitleFromURI(uri)
}

// CopyMetadata creates a shallow copy of metadata.
func CopyMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
