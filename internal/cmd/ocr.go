package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/johbar/tesspipe/internal/cache"
	"github.com/johbar/tesspipe/internal/docfactory"
	"github.com/johbar/tesspipe/internal/extractor"
	"github.com/johbar/tesspipe/pkg/tesswrap"
	"github.com/spf13/cobra"
)

var shortHelp = map[extractor.Mode]string{
	extractor.ModeText:  "Print the text recognized in an image or PDF",
	extractor.ModeBoxes: "Print the box of every recognized glyph",
	extractor.ModeTable: "Print the recognized text followed by the glyph boxes",
}

type ocrOptions struct {
	out      string
	config   map[string]string
	variable string
	pixels   bool
	json     bool
}

func newOcrCmd(o *rootOptions, mode extractor.Mode) *cobra.Command {
	oo := &ocrOptions{}
	cmd := &cobra.Command{
		Use:   string(mode) + " <file|url|->",
		Short: shortHelp[mode],
		Long: shortHelp[mode] + `.

The input is a local file, an http(s) URL or - for stdin. Images in a format tesseract
reads are passed by path, everything else is uploaded to the working directory first.
Glyph boxes are printed as "char left bottom right top page", one per line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.ocr(cmd, mode, oo, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVarP(&oo.out, "out", "o", "", "stem of the result file; absolute stems are kept after the run")
	f.StringToStringVar(&oo.config, "config", nil, "engine settings psm, oem and -c, e.g. --config psm=6")
	f.StringVarP(&oo.variable, "var", "c", "", "variable passed to tesseract's -c, e.g. preserve_interword_spaces=1")
	f.BoolVar(&oo.pixels, "pixels", false, "decode the image and pass its pixels instead of the file")
	f.BoolVar(&oo.json, "json", false, "print the result as JSON")
	return cmd
}

func (oo *ocrOptions) apply(base tesswrap.Options) tesswrap.Options {
	opts := base.Clone()
	if oo.out != "" {
		opts.OutputStem = oo.out
	}
	for k, v := range oo.config {
		opts.Set(k, v)
	}
	if oo.variable != "" {
		opts.Set(tesswrap.KeyExtra, oo.variable)
	}
	return opts
}

func (o *rootOptions) ocr(cmd *cobra.Command, mode extractor.Mode, oo *ocrOptions, input string) error {
	ctx := cmd.Context()
	engine, err := o.newEngine()
	if err != nil {
		return err
	}
	df, closePdf := o.newDocFactory()
	defer closePdf()
	ex := extractor.New(o.conf, engine, df, nil, o.log)
	defer ex.Close()

	doc, err := o.openDoc(ctx, df, cmd.InOrStdin(), input, oo.pixels)
	if err != nil {
		return err
	}
	defer doc.Close()

	res, err := ex.RecognizeDoc(ctx, doc, mode, oo.apply(ex.BaseOptions()), input)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), mode, res, oo.json)
}

func (o *rootOptions) openDoc(ctx context.Context, df *docfactory.DocFactory, stdin io.Reader, input string, pixels bool) (*docfactory.Doc, error) {
	remote := strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
	switch {
	case input == "-":
		data, err := df.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		return df.NewFromBytes(data, "stdin")
	case remote:
		data, err := fetch(ctx, df, input)
		if err != nil {
			return nil, err
		}
		return df.NewFromBytes(data, input)
	case pixels:
		px, err := tesswrap.PixelsFromFile(input)
		if err != nil {
			return nil, err
		}
		h, w, c := px.Dims()
		o.log.Debug("Image decoded", "path", input, "height", h, "width", w, "channels", c, "bytes", px.Len())
		return &docfactory.Doc{Pages: []docfactory.Page{{Image: tesswrap.ImageFromPixels(px)}}}, nil
	}
	return df.NewFromPath(input, input)
}

func fetch(ctx context.Context, df *docfactory.DocFactory, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching %s: %s", url, resp.Status)
	}
	return df.ReadAll(resp.Body)
}

func writeResult(w io.Writer, mode extractor.Mode, res *cache.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if mode != extractor.ModeBoxes {
		if _, err := io.WriteString(w, res.Text); err != nil {
			return err
		}
		if mode == extractor.ModeText {
			return nil
		}
		if !strings.HasSuffix(res.Text, "\n") {
			fmt.Fprintln(w)
		}
	}
	for _, g := range res.Glyphs {
		if _, err := fmt.Fprintf(w, "%s %d %d %d %d %d\n", g.Char, g.Left, g.Bottom, g.Right, g.Top, g.Page); err != nil {
			return err
		}
	}
	return nil
}
