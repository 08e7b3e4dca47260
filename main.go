// Command tesspipe recognizes text in images and PDFs with the tesseract command line tool.
//
// Usage:
//
//	tesspipe serve                 # HTTP API and NATS micro service
//	tesspipe text scan.png         # print recognized text
//	tesspipe boxes scan.png        # print glyph boxes
//	tesspipe table scan.pdf        # text followed by glyph boxes
//	tesspipe check                 # verify tesseract and languages
package main

import (
	"os"

	"github.com/johbar/tesspipe/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
