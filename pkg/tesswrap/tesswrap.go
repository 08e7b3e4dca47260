/*
Package tesswrap drives the Tesseract OCR v5 command line interface.

An invocation builds the argument list from [Options], runs the engine as a child process
and parses the artifact Tesseract writes to disk: a plain text file or a box file with
one bounding box per glyph. Diagnostics printed on stdout/stderr are kept separately.

The engine location is held by a [Locator]. [Default] is shared by the whole process.
An alternative in-process implementation (gosseract) can be enabled with a build tag.
*/
package tesswrap

import "errors"

var (
	// ErrEngineNotInstalled is returned when the configured engine can not be started.
	ErrEngineNotInstalled = errors.New("tesseract is not installed")
	// ErrEngineStart is returned when spawning the engine for an invocation failed.
	ErrEngineStart = errors.New("tesseract could not be started")
	// ErrImageNotFound indicates an image with neither a path nor pixels.
	ErrImageNotFound = errors.New("image has neither a path nor pixels")
	// ErrImageFormat indicates a path whose extension is not a supported image format.
	ErrImageFormat = errors.New("unsupported image format")
	// ErrArtifactRead is returned when the result file could not be read after the engine exited.
	ErrArtifactRead = errors.New("reading tesseract output file")
	// ErrCoordinateParse is returned when a box file contains a malformed coordinate.
	ErrCoordinateParse = errors.New("malformed box coordinate")
	// ErrInProcessUnavailable is returned when the in-process backend has not been compiled in.
	ErrInProcessUnavailable = errors.New("in-process tesseract is not available in this build (missing build tag gosseract)")
)
