package tesswrap

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeEngineScript behaves like the tesseract CLI as far as this package is concerned.
// Every real invocation appends a line to <dir of stem>/calls and stores its arguments in <stem>.args.
const fakeEngineScript = `#!/bin/sh
case "$1" in
  --version) echo "tesseract 5.3.0"; echo " leptonica-1.82.0"; exit 0;;
  --list-langs) echo 'List of available languages in "/usr/share/tessdata/" (3):'; echo deu; echo eng; echo osd; exit 0;;
  "") [ -n "$2" ] && printf '%s\n' "$@" > "$2.args"; echo "Usage: tesseract --help" >&2; exit 1;;
esac
stem="$2"
echo call >> "$(dirname "$stem")/calls"
printf '%s\n' "$@" > "$stem.args"
last=""
for a in "$@"; do last="$a"; done
case "$1" in
  *broken.png) printf 'A 10 2x 30 40\n' > "$stem.box"; exit 0;;
  *missing.png) echo "Error, cannot read input file" >&2; exit 1;;
esac
if [ "$last" = "makebox" ]; then
  printf 'A 10 20 30 40\nB 11 21 31 41\nA 12 22 32 42\n' > "$stem.box"
else
  printf 'hello world' > "$stem.txt"
fi
echo "Estimating resolution as 150" >&2
`

// fakeEngine writes the fake tesseract into a temp dir and returns its path.
func fakeEngine(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "tesseract")
	if err := os.WriteFile(path, []byte(fakeEngineScript), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// calls returns the number of real invocations recorded in dir.
func calls(t *testing.T, dir string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "calls"))
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "call\n")
}

// recordedArgs returns the arguments of the last invocation using stem.
func recordedArgs(t *testing.T, stem string) []string {
	t.Helper()
	data, err := os.ReadFile(stem + ".args")
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// touch creates an empty file in dir.
func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
