package tesswrap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
)

// Strategy names a way of resolving the engine location.
type Strategy string

const (
	// StrategyExplicit uses a caller supplied path or command name as is.
	StrategyExplicit Strategy = "explicit"
	// StrategyWorkingDir uses tesseract/tesseract[.exe] below the current working directory.
	StrategyWorkingDir Strategy = "workdir"
	// StrategySystem uses the bare command name, resolved via PATH.
	StrategySystem Strategy = "system"
)

// Default is the locator shared by the package level functions. It lives as long as the process.
var Default = NewLocator("")

// Locator holds the location of the tesseract executable.
// It is safe for concurrent use.
type Locator struct {
	mu       sync.RWMutex
	location string
}

// NewLocator returns a locator for location. An empty string means unset.
func NewLocator(location string) *Locator {
	return &Locator{location: location}
}

// NewLocatorFromStrategy resolves the location with s and returns a locator for it.
func NewLocatorFromStrategy(s Strategy, path string) (*Locator, error) {
	loc, err := Resolve(s, path)
	if err != nil {
		return nil, err
	}
	return NewLocator(loc), nil
}

// Set overwrites the location unconditionally.
func (l *Locator) Set(location string) {
	l.mu.Lock()
	l.location = location
	l.mu.Unlock()
}

// Location returns the current location and false if it is unset.
func (l *Locator) Location() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.location, l.location != ""
}

// IsInstalled reports whether the configured location can be started as a process.
// Any executable satisfies this check; it does not verify the version.
func (l *Locator) IsInstalled(ctx context.Context) bool {
	loc, ok := l.Location()
	if !ok {
		return false
	}
	cmd := exec.CommandContext(ctx, loc)
	// nil Stdout/Stderr are connected to the null device
	if err := cmd.Start(); err != nil {
		return false
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	return true
}

// Version runs the engine with --version and returns its diagnostic output.
func (l *Locator) Version(ctx context.Context) (string, error) {
	if !l.IsInstalled(ctx) {
		return "", ErrEngineNotInstalled
	}
	loc, _ := l.Location()
	inv, err := (&Runner{}).Run(ctx, loc, "--version")
	if err != nil {
		return "", err
	}
	return inv.Diagnostic(), nil
}

// SetLocation sets the location of the [Default] locator.
func SetLocation(location string) {
	Default.Set(location)
}

// Location returns the location of the [Default] locator.
func Location() (string, bool) {
	return Default.Location()
}

// Resolve returns the engine location for strategy s.
// path is only used by [StrategyExplicit].
func Resolve(s Strategy, path string) (string, error) {
	switch s {
	case StrategyExplicit:
		return path, nil
	case StrategyWorkingDir:
		return WorkingDirLocation()
	case StrategySystem, "":
		return SystemLocation(), nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// WorkingDirLocation returns <cwd>/tesseract/tesseract, with .exe on Windows.
func WorkingDirLocation() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return filepath.Join(wd, "tesseract", executableName()), nil
}

// SystemLocation returns the bare command name to be looked up in PATH.
func SystemLocation() string {
	return executableName()
}

func executableName() string {
	if runtime.GOOS == "windows" {
		return "tesseract.exe"
	}
	return "tesseract"
}
