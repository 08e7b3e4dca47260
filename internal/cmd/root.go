// Package cmd implements the tesspipe command line.
package cmd

import (
	"log/slog"
	"time"

	"github.com/johbar/tesspipe/internal/config"
	"github.com/johbar/tesspipe/internal/docfactory"
	"github.com/johbar/tesspipe/internal/extractor"
	"github.com/johbar/tesspipe/pkg/pdflibwrappers/pdfium_purego"
	"github.com/johbar/tesspipe/pkg/tesswrap"
	"github.com/spf13/cobra"
)

const backendGosseract = "gosseract"

// rootOptions holds the persistent flags and the config they are merged into.
type rootOptions struct {
	tesseract string
	strategy  string
	backend   string
	lang      string
	dpi       int
	psm       string
	oem       string
	timeout   time.Duration
	logLevel  string

	conf *config.TesConfig
	log  *slog.Logger
}

// Execute runs the command line.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd returns the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	o := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "tesspipe",
		Short: "Recognize text in images and PDFs with tesseract",
		Long: `tesspipe runs the tesseract command line tool on images and on the images embedded in PDFs.

Flags override the TES_* environment variables.`,
		SilenceUsage:      true,
		PersistentPreRunE: o.load,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.tesseract, "tesseract", "", "path of the tesseract executable, implies --strategy explicit")
	pf.StringVar(&o.strategy, "strategy", "", "how to find tesseract: explicit, workdir or system")
	pf.StringVar(&o.backend, "backend", "", "cli or gosseract")
	pf.StringVarP(&o.lang, "lang", "l", "", "languages, joined by '+'")
	pf.IntVar(&o.dpi, "dpi", 0, "resolution of the input images")
	pf.StringVar(&o.psm, "psm", "", "page segmentation mode")
	pf.StringVar(&o.oem, "oem", "", "OCR engine mode")
	pf.DurationVar(&o.timeout, "timeout", 0, "maximum runtime of a single tesseract process")
	pf.StringVar(&o.logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR")

	rootCmd.AddCommand(newServeCmd(o), newVersionCmd(o), newCheckCmd(o), newLangsCmd(o))
	for _, mode := range extractor.Modes {
		rootCmd.AddCommand(newOcrCmd(o, mode))
	}
	return rootCmd
}

// load reads the config from the environment and applies the flags set on the command line.
func (o *rootOptions) load(cmd *cobra.Command, args []string) error {
	conf, err := config.NewTesConfigFromEnv()
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("tesseract") {
		conf.TesseractPath = o.tesseract
		conf.TesseractStrategy = string(tesswrap.StrategyExplicit)
	}
	if f.Changed("strategy") {
		conf.TesseractStrategy = o.strategy
	}
	if f.Changed("backend") {
		conf.Backend = o.backend
	}
	if f.Changed("lang") {
		conf.TesseractLangs = o.lang
	}
	if f.Changed("dpi") {
		conf.Dpi = o.dpi
	}
	if f.Changed("psm") {
		conf.Psm = o.psm
	}
	if f.Changed("oem") {
		conf.Oem = o.oem
	}
	if f.Changed("timeout") {
		conf.Timeout = o.timeout
	}
	if f.Changed("log-level") {
		conf.LogLevelStr = o.logLevel
	}
	if err := conf.Finish(); err != nil {
		return err
	}
	o.conf = conf
	o.log = conf.NewLogger(cmd.ErrOrStderr())
	return nil
}

// newEngine returns the configured backend.
func (o *rootOptions) newEngine() (extractor.Engine, error) {
	if o.conf.Backend == backendGosseract {
		ip, err := tesswrap.NewInProcess()
		if err != nil {
			return nil, err
		}
		return ip, nil
	}
	loc, err := o.conf.Locator()
	if err != nil {
		return nil, err
	}
	return o.conf.NewClient(loc, o.log), nil
}

// newDocFactory returns a DocFactory rendering PDF pages with PDFium, if configured and available.
// The returned func unloads PDFium once the DocFactory is no longer used.
func (o *rootOptions) newDocFactory() (*docfactory.DocFactory, func()) {
	df := docfactory.New(o.conf, o.log)
	if !o.conf.RenderPdf {
		return df, func() {}
	}
	path, err := pdfium_purego.InitLib(o.conf.PdfiumPath)
	if err != nil {
		o.log.Warn("PDFium could not be loaded. Extracting embedded images instead.", "err", err)
		return df, func() {}
	}
	o.log.Info("Rendering PDF pages with PDFium", "lib", path, "dpi", df.Dpi)
	df.Renderer = pdfium_purego.Renderer{}
	return df, func() {
		pdfium_purego.CloseLib()
		o.log.Debug("PDFium unloaded", "lib", path)
	}
}
