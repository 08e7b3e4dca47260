/*
Package dehyphenator implements a simple algorithm for de-hyphenating German text.

	German includes a lot of compounds, some involving hyphens, lowercase and
	uppercase characters.
	This package aims to preserve hyphens when they are part of a compound and to remove
	them at the end of lines whenever they are not.
	Not sure if it is of any use when working with other languages.
	Its main use is preparing recognized text for search machine indexing.
*/
package dehyphenator

import (
	"bufio"
	"io"
	"strings"
	"unicode"
)

// Dehyphenate removes hyphens at the end of lines and joins the split words.
// Hyphens are preserved if appropriate. If removeNewlines is set, line breaks
// are replaced by whitespace.
func Dehyphenate(in io.Reader, out io.Writer, removeNewlines bool) error {
	w := bufio.NewWriter(out)
	lineEnd := '\n'
	if removeNewlines {
		lineEnd = ' '
	}
	lastLineEndedWithHyphen := false
	s := bufio.NewScanner(in)
	for s.Scan() {
		currentLine := strings.ReplaceAll(s.Text(), "\uFFFE", "")
		trimmed := []rune(strings.TrimSpace(currentLine))
		if len(trimmed) == 0 || isHyphen(trimmed[0]) {
			// Skip empty and hyphen-only lines
			if lastLineEndedWithHyphen {
				// nothing to join with
				w.WriteRune('-')
				w.WriteRune(lineEnd)
				lastLineEndedWithHyphen = false
			}
			if !removeNewlines {
				w.WriteRune('\n')
			}
			continue
		}
		if lastLineEndedWithHyphen && unicode.IsUpper(trimmed[0]) {
			// The last line ended with a hyphen that we removed.
			// The current line starts with an uppercase letter,
			// so it was part of a compound.
			w.WriteRune('-')
		}
		lastLineEndedWithHyphen = false
		switch {
		case !isHyphen(trimmed[len(trimmed)-1]):
			w.WriteString(string(trimmed))
			w.WriteRune(lineEnd)
		case len(trimmed) > 1 && unicode.IsUpper(trimmed[len(trimmed)-2]):
			// Line ends with uppercase rune before hyphen, e.g. "CDU-".
			// So keep it as it is.
			w.WriteString(string(trimmed))
		default:
			// remove the hyphen and memoize that
			// so we can reattach it in the next iteration if necessary
			lastLineEndedWithHyphen = true
			w.WriteString(string(trimmed[:len(trimmed)-1]))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	if lastLineEndedWithHyphen {
		w.WriteRune('-')
	}
	if err := s.Err(); err != nil {
		return err
	}
	return w.Flush()
}

func isHyphen(char rune) bool {
	return unicode.Is(unicode.Hyphen, char)
}

// DehyphenateString is Dehyphenate for strings.
func DehyphenateString(in string, removeNewlines bool) (string, error) {
	var sb strings.Builder
	err := Dehyphenate(strings.NewReader(in), &sb, removeNewlines)
	return sb.String(), err
}
