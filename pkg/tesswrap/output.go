package tesswrap

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	textExt = ".txt"
	boxExt  = ".box"
)

// MultiMap maps glyphs to one or more coordinate strings.
// Values keep their insertion order, keys the order of their first insertion.
type MultiMap struct {
	keys   []string
	values map[string][]string
}

// NewMultiMap returns an empty MultiMap.
func NewMultiMap() *MultiMap {
	return &MultiMap{values: make(map[string][]string)}
}

// Insert appends value to the values of key.
func (m *MultiMap) Insert(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = append(m.values[key], value)
}

// Get returns the first value of key.
func (m *MultiMap) Get(key string) (string, bool) {
	v := m.GetAll(key)
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// GetAll returns all values of key.
func (m *MultiMap) GetAll(key string) []string {
	if m == nil {
		return nil
	}
	return m.values[key]
}

// Keys returns the distinct keys.
func (m *MultiMap) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Len returns the number of distinct keys.
func (m *MultiMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Map returns the content as a plain map.
func (m *MultiMap) Map() map[string][]string {
	out := make(map[string][]string, m.Len())
	for _, k := range m.Keys() {
		out[k] = append([]string(nil), m.values[k]...)
	}
	return out
}

// Column holds the coordinates of one box, named after its glyph.
type Column struct {
	Name   string
	Values []int
}

// Rect returns the box as a rectangle. Box files use a bottom-left origin,
// so Min.Y is the bottom and Max.Y the top edge.
func (c Column) Rect() (image.Rectangle, bool) {
	if len(c.Values) < 4 {
		return image.Rectangle{}, false
	}
	return image.Rect(c.Values[0], c.Values[1], c.Values[2], c.Values[3]), true
}

// Glyph is a single recognized character and its box.
type Glyph struct {
	Char   string `json:"char"`
	Left   int    `json:"left"`
	Bottom int    `json:"bottom"`
	Right  int    `json:"right"`
	Top    int    `json:"top"`
	Page   int    `json:"page"`
}

// Output is the parsed result of one or more invocations.
type Output struct {
	// Info is the diagnostic output of the engine
	Info string
	// Bytes is the raw content of the artifact
	Bytes []byte
	// Text is the content of the artifact as string
	Text string
	// Boxes is only populated in box mode
	Boxes *MultiMap
	// Columns has one entry per box line
	Columns []Column
}

func (o Output) String() string {
	return o.Text
}

// Glyphs returns the boxes as records. Columns with less than four values are skipped,
// swapped edges are put in order.
func (o Output) Glyphs() []Glyph {
	glyphs := make([]Glyph, 0, len(o.Columns))
	for _, c := range o.Columns {
		r, ok := c.Rect()
		if !ok {
			continue
		}
		g := Glyph{Char: c.Name, Left: r.Min.X, Bottom: r.Min.Y, Right: r.Max.X, Top: r.Max.Y}
		if len(c.Values) > 4 {
			g.Page = c.Values[4]
		}
		glyphs = append(glyphs, g)
	}
	return glyphs
}

// BoxParseError reports a box file line with a coordinate that is not an integer.
type BoxParseError struct {
	Line  int
	Text  string
	Token string
	Err   error
}

func (e *BoxParseError) Error() string {
	return fmt.Sprintf("box file line %d %q: coordinate %q: %v", e.Line, e.Text, e.Token, e.Err)
}

func (e *BoxParseError) Unwrap() []error {
	return []error{ErrCoordinateParse, e.Err}
}

// ArtifactPath returns the name of the file tesseract writes its result to.
// The extension is only appended if stem does not end with it already.
func ArtifactPath(stem string, boxFile bool) string {
	ext := textExt
	if boxFile {
		ext = boxExt
	}
	if strings.HasSuffix(stem, ext) {
		return stem
	}
	return stem + ext
}

// ReadArtifact reads the result file for stem and parses it.
func ReadArtifact(stem string, boxFile bool) (Output, error) {
	path := ArtifactPath(stem, boxFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return Output{}, fmt.Errorf("%w %s: %w", ErrArtifactRead, path, err)
	}
	return ParseArtifact(data, boxFile)
}

// ParseArtifact converts the content of a text or box file.
func ParseArtifact(data []byte, boxFile bool) (Output, error) {
	out := Output{Bytes: data, Text: string(data), Boxes: NewMultiMap()}
	if !boxFile {
		return out, nil
	}
	cols, err := parseBoxes(out.Text, out.Boxes)
	if err != nil {
		return Output{}, err
	}
	out.Columns = cols
	return out, nil
}

// parseBoxes splits every line containing a space at its first space
// into the glyph and its coordinates.
func parseBoxes(text string, boxes *MultiMap) ([]Column, error) {
	var cols []Column
	s := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		char, rest, found := strings.Cut(line, " ")
		if !found {
			continue
		}
		char = norm.NFC.String(char)
		boxes.Insert(char, rest)
		tokens := strings.Split(rest, " ")
		values := make([]int, 0, len(tokens))
		for _, tok := range tokens {
			n, err := strconv.Atoi(tok)
			if err != nil {
				return nil, &BoxParseError{Line: lineNo, Text: line, Token: tok, Err: err}
			}
			values = append(values, n)
		}
		cols = append(cols, Column{Name: char, Values: values})
	}
	return cols, s.Err()
}
