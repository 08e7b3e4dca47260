//go:build !gosseract

package tesswrap

import "context"

// InProcessAvailable indicates if this build links libtesseract.
const InProcessAvailable = false

// InProcess is a placeholder for builds without the gosseract tag.
type InProcess struct{}

func NewInProcess() (*InProcess, error) {
	return nil, ErrInProcessUnavailable
}

func LibraryVersion() string {
	return ""
}

func (ip *InProcess) RecognizeText(context.Context, Image, Options) (Output, error) {
	return Output{}, ErrInProcessUnavailable
}

func (ip *InProcess) RecognizeBoxes(context.Context, Image, Options) (Output, error) {
	return Output{}, ErrInProcessUnavailable
}

func (ip *InProcess) RecognizeTable(context.Context, Image, Options) (Output, error) {
	return Output{}, ErrInProcessUnavailable
}

func (ip *InProcess) IsInstalled(context.Context) bool {
	return false
}

func (ip *InProcess) Version(context.Context) (string, error) {
	return "", ErrInProcessUnavailable
}
