// Package pdflibwrappers loads PDF libraries at runtime, without cgo.
package pdflibwrappers

import (
	"errors"
	"syscall"
)

var CloseLib func() = func() {}

// TryLoadLib tries to load a shared object/dynamically linked library
// from various paths and returns a handle and the path it was loaded from.
func TryLoadLib(paths ...string) (uintptr, string, error) {
	var err error
	for _, path := range paths {
		lib, liberr := syscall.LoadLibrary(path)
		if lib != 0 {
			CloseLib = func() {
				_ = syscall.FreeLibrary(lib)
			}
			return uintptr(lib), path, nil
		}
		err = errors.Join(err, liberr)
	}
	return 0, "", err
}
