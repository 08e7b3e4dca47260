// Package pdfdateparser provides functions to convert the ModDate and CreationDate fields from PDF metadata to time.Time objects.
package pdfdateparser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var ErrInvalidDate = errors.New("invalid PDF date")

var layouts = []string{"20060102150405Z07'00'", "20060102150405Z07", "20060102150405"}

// PdfDateToTime parses a date/time string from PDF metadata, with or without the D: prefix.
// Strings none of the strict layouts match are handed to pdfcpu's relaxed parser,
// which accepts truncated dates and broken offsets.
func PdfDateToTime(pdfdate string) (time.Time, error) {
	pdfdate = strings.TrimSpace(pdfdate)
	s, _ := strings.CutPrefix(pdfdate, "D:")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, ok := types.DateTime(pdfdate, true); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, pdfdate)
}
