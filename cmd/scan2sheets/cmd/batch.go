package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/scan2sheets/internal/app"
	"github.com/MeKo-Tech/scan2sheets/internal/batch"
	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
)

// batchOutput is the machine-readable result of the batch command.
type batchOutput struct {
	batch.Result `yaml:",inline"`
	Stats        batch.Stats    `json:"stats" yaml:"stats"`
	Entries      []outbox.Entry `json:"entries,omitempty" yaml:"entries,omitempty"`
}

func (c *cli) newBatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <path>...",
		Short: "Recognize values in many images",
		Long: `Recognize a barcode or handwriting in every image under the given files and
directories. Images are analyzed concurrently; files that fail are reported
and do not stop the batch.

With --send or --pending every recognized value is recorded in the history,
in file order.

Examples:
  scan2sheets batch scans/ --recursive --format csv > values.csv
  scan2sheets batch labels/ --mode barcode --include "*.jpg" --send
  scan2sheets batch a.png b.png --workers 2 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app.App) error {
				return c.runBatch(cmd, a, args)
			})
		},
	}

	f := cmd.Flags()
	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.StringSlice("include", nil, "only process files matching these patterns (e.g. *.jpg)")
	f.StringSlice("exclude", nil, "skip files matching these patterns")
	f.IntP("workers", "w", 0, "number of concurrent analyses (default: number of CPUs)")
	f.StringP("mode", "m", "", "recognition mode (auto, barcode, text); defaults to the stored settings")
	f.StringP("lang", "l", "", "OCR language(s); defaults to the stored settings")
	f.String("crop", "", "global crop (none, center)")
	f.String("enhance", "", "enhancement (none, grayscale, contrast, threshold, adaptive)")
	f.String("roi", "", "region of interest applied to every image, as x,y,w,h")
	f.Bool("send", false, "send every recognized value to the sheet endpoint")
	f.Bool("pending", false, "store every recognized value as pending")
	f.String("notes", "", "notes stored with each record")
	f.StringP("format", "f", "", "output format (text, json, yaml, csv); defaults to output.format from the config")
	cmd.MarkFlagsMutuallyExclusive("send", "pending")
	return cmd
}

func (c *cli) runBatch(cmd *cobra.Command, a *app.App, paths []string) error {
	format := "csv"
	if v, _ := cmd.Flags().GetString("format"); !strings.EqualFold(strings.TrimSpace(v), "csv") {
		var err error
		if format, err = c.outputFormat(cmd); err != nil {
			return err
		}
	}

	req, err := c.analyzeRequest(cmd, a)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	cfg := batch.Config{Request: req}
	cfg.Recursive, _ = f.GetBool("recursive")
	cfg.IncludePatterns, _ = f.GetStringSlice("include")
	cfg.ExcludePatterns, _ = f.GetStringSlice("exclude")
	cfg.Workers, _ = f.GetInt("workers")

	res, err := batch.Process(cmd.Context(), a.Recognizer, paths, cfg, c.logger, nil)
	if err != nil {
		return err
	}

	out := batchOutput{Result: *res, Stats: res.Stats()}
	var deliveryErr error
	send, _ := f.GetBool("send")
	pending, _ := f.GetBool("pending")
	if send || pending {
		out.Entries, err = recordBatch(cmd, a, res, send)
		if err != nil {
			return err
		}
		for _, e := range out.Entries {
			if send && e.Status != outbox.StatusSent {
				deliveryErr = errDeliveryFailed
			}
		}
	}

	w := cmd.OutOrStdout()
	if format == "csv" {
		if err := batch.WriteCSV(w, res); err != nil {
			return err
		}
		return deliveryErr
	}
	if err := render(w, format, out, func(w io.Writer) error {
		if err := batch.WriteText(w, res); err != nil {
			return err
		}
		for _, e := range out.Entries {
			if err := writeEntryStatus(w, e); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	return deliveryErr
}

// recordBatch records every recognized item in file order. A failed
// precondition stops at the first item, before anything is stored.
func recordBatch(cmd *cobra.Command, a *app.App, res *batch.Result, send bool) ([]outbox.Entry, error) {
	profile, err := a.Profile(cmd.Context())
	if err != nil {
		return nil, err
	}
	notes, _ := cmd.Flags().GetString("notes")

	var entries []outbox.Entry
	for _, it := range res.Items {
		if !it.OK() {
			continue
		}
		payload := a.Payload(profile.Token, it.Result.SourceType, it.Result.Value, notes)
		var entry outbox.Entry
		if send {
			entry, err = a.Outbox.AttemptSend(cmd.Context(), profile.Endpoint, payload)
		} else {
			entry, err = a.Outbox.SaveAsPending(cmd.Context(), payload)
		}
		if err != nil {
			return entries, fmt.Errorf("%s: %w", it.File, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
