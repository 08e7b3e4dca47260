//go:build linux || darwin

// Package pdflibwrappers loads PDF libraries at runtime, without cgo.
package pdflibwrappers

import (
	"errors"

	"github.com/ebitengine/purego"
)

// CloseLib closes the last lib opened by [TryLoadLib]
var CloseLib func() = func() {}

// TryLoadLib tries to load a shared object/dynamically linked library
// from various paths and returns a handle and the path it was loaded from.
func TryLoadLib(paths ...string) (uintptr, string, error) {
	var err error
	for _, path := range paths {
		lib, liberr := purego.Dlopen(path, purego.RTLD_NOW)
		if lib != 0 {
			CloseLib = func() { _ = purego.Dlclose(lib) }
			return lib, path, nil
		}
		err = errors.Join(err, liberr)
	}
	return 0, "", err
}
