package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/johbar/tesspipe/pkg/tesswrap"
	"github.com/spf13/cobra"
)

var errLanguagesMissing = errors.New("languages missing")

func newVersionCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of tesseract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := o.newEngine()
			if err != nil {
				return err
			}
			v, err := engine.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(v))
			return nil
		},
	}
}

func newCheckCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that tesseract and the configured languages are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := o.newEngine()
			if err != nil {
				return err
			}
			if !engine.IsInstalled(ctx) {
				return tesswrap.ErrEngineNotInstalled
			}
			if client, ok := engine.(*tesswrap.Client); ok {
				if ok, reason := client.Locator.CheckLanguages(ctx, o.conf.TesseractLangs); !ok {
					return fmt.Errorf("%w: %s", errLanguagesMissing, reason)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newLangsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "langs",
		Short: "List the languages tesseract has trained data for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := o.conf.Locator()
			if err != nil {
				return err
			}
			langs, err := loc.Languages(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range langs {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
}
