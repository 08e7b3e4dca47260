package tesswrap

import (
	"maps"
	"strconv"
)

// Keys of [Options.Config] that are mapped to dedicated engine flags.
const (
	KeyPSM   = "psm"
	KeyOEM   = "oem"
	KeyExtra = "-c"
)

const (
	DefaultStem  = "out"
	DefaultLang  = "eng"
	DefaultDPI   = 150
	DefaultPSM   = "3"
	DefaultOEM   = "3"
	DefaultExtra = "tessedit_create_tsv=0"
	// TSVExtra makes tesseract write a .tsv table in addition to its regular output.
	TSVExtra = "tessedit_create_tsv=1"
	boxFlag  = "makebox"
)

// Options control a single invocation of the engine.
type Options struct {
	// OutputStem is the base name of the artifact, without extension
	OutputStem string
	// Lang is one or more language codes joined by '+', e.g. eng+deu
	Lang string
	DPI  int
	// BoxFile requests a box file (one bounding box per glyph) instead of plain text
	BoxFile bool
	// Config holds psm, oem and the -c variable
	Config map[string]string
}

// NewOptions returns Options populated with defaults.
func NewOptions() Options {
	return Options{
		OutputStem: DefaultStem,
		Lang:       DefaultLang,
		DPI:        DefaultDPI,
		Config:     make(map[string]string),
	}
}

// Set stores a config value. A later value for the same key replaces the earlier one.
func (o *Options) Set(key, value string) {
	if o.Config == nil {
		o.Config = make(map[string]string)
	}
	o.Config[key] = value
}

// Clone returns a copy of o not sharing its Config map.
func (o Options) Clone() Options {
	c := o
	c.Config = maps.Clone(o.Config)
	if c.Config == nil {
		c.Config = make(map[string]string)
	}
	return c
}

func (o Options) get(key, fallback string) string {
	if v, ok := o.Config[key]; ok {
		return v
	}
	return fallback
}

// withDefaults fills empty fields with defaults.
func (o Options) withDefaults() Options {
	o = o.Clone()
	if o.OutputStem == "" {
		o.OutputStem = DefaultStem
	}
	if o.Lang == "" {
		o.Lang = DefaultLang
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	return o
}

// BuildArgs returns the engine arguments in the order the tesseract CLI requires:
//
//	<image> <stem> -l <lang> --dpi <dpi> --psm <psm> --oem <oem> -c <var> [makebox]
//
// In text mode nothing follows the variable: an empty trailing argument is left out on purpose.
func BuildArgs(imageArg string, opts Options) []string {
	args := []string{
		imageArg,
		opts.OutputStem,
		"-l", opts.Lang,
		"--dpi", strconv.Itoa(opts.DPI),
		"--psm", opts.get(KeyPSM, DefaultPSM),
		"--oem", opts.get(KeyOEM, DefaultOEM),
		"-c", opts.get(KeyExtra, DefaultExtra),
	}
	if opts.BoxFile {
		args = append(args, boxFlag)
	}
	return args
}
