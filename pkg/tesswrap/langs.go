package tesswrap

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Languages returns the languages tesseract has trained data for.
func (l *Locator) Languages(ctx context.Context) ([]string, error) {
	loc, ok := l.Location()
	if !ok {
		return nil, ErrEngineNotInstalled
	}
	inv, err := (&Runner{}).Run(ctx, loc, "--list-langs")
	if err != nil {
		return nil, err
	}
	return parseLangs(string(inv.Stdout)), nil
}

func parseLangs(output string) []string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 {
		return []string{}
	}
	// first line is a heading
	langs := make([]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

// CheckLanguages returns true and an empty string if tesseract is installed
// and has trained data for every language in langs (joined by '+').
// If not, false and a reason phrase reporting the first missing language are returned.
func (l *Locator) CheckLanguages(ctx context.Context, langs string) (ok bool, reason string) {
	available, err := l.Languages(ctx)
	if err != nil {
		return false, err.Error()
	}
	for _, elem := range strings.Split(langs, "+") {
		if !slices.Contains(available, elem) {
			return false, fmt.Sprintf("'%s' is not among the installed languages %v", elem, available)
		}
	}
	return true, ""
}
