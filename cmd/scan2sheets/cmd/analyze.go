package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/scan2sheets/internal/app"
	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
	"github.com/MeKo-Tech/scan2sheets/internal/imageio"
	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
	"github.com/MeKo-Tech/scan2sheets/internal/preprocess"
	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
)

// errDeliveryFailed is returned when a send attempt left the entry pending.
var errDeliveryFailed = errors.New("delivery failed; the record was kept as pending")

// analyzeOutput is the machine-readable result of the analyze command.
type analyzeOutput struct {
	recognize.Result `yaml:",inline"`
	Region           geometry.Rect `json:"region" yaml:"region"`
	Preprocessed     string        `json:"preprocessed,omitempty" yaml:"preprocessed,omitempty"`
	Entry            *outbox.Entry `json:"entry,omitempty" yaml:"entry,omitempty"`
}

func (c *cli) newAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Read a barcode or handwriting from an image",
		Long: `Preprocess an image and recognize a barcode/QR code or handwritten text.

In auto mode the barcode decoder runs first and text recognition only when no
symbol is found. The recognized value can be sent to the sheet endpoint right
away (--send) or stored for later (--pending).

Supported formats: JPEG, PNG, GIF, BMP, TIFF, WebP

Examples:
  scan2sheets analyze label.jpg
  scan2sheets analyze note.png --mode text --lang deu --enhance threshold
  scan2sheets analyze shelf.jpg --crop center --roi 120,80,400,200 --send --notes "aisle 4"
  scan2sheets analyze page.png --save-preprocessed cropped.png --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return c.runAnalyze(cmd, a, args[0])
		},
	}

	cmd.Flags().StringP("mode", "m", "", "recognition mode (auto, barcode, text); defaults to the stored settings")
	cmd.Flags().StringP("lang", "l", "", "OCR language(s), e.g. eng or ara+eng; defaults to the stored settings")
	cmd.Flags().String("crop", "", "global crop (none, center)")
	cmd.Flags().String("enhance", "", "enhancement (none, grayscale, contrast, threshold, adaptive)")
	cmd.Flags().String("roi", "", "region of interest in source pixels as x,y,w,h")
	cmd.Flags().String("save-preprocessed", "", "write the image the recognizers saw to this PNG file")
	cmd.Flags().Bool("send", false, "send the recognized value to the sheet endpoint")
	cmd.Flags().Bool("pending", false, "store the recognized value as pending without sending")
	cmd.Flags().String("notes", "", "notes stored with the record")
	cmd.Flags().Bool("progress", false, "show a progress bar on stderr")
	addFormatFlag(cmd)
	cmd.MarkFlagsMutuallyExclusive("send", "pending")
	return cmd
}

func (c *cli) runAnalyze(cmd *cobra.Command, a *app.App, path string) error {
	format, err := c.outputFormat(cmd)
	if err != nil {
		return err
	}
	req, err := c.analyzeRequest(cmd, a)
	if err != nil {
		return err
	}

	img, meta, err := imageio.LoadFile(path)
	if err != nil {
		return err
	}
	req.Image = img
	c.logger.Debug("Image loaded", "file", path, "format", meta.Format, "width", meta.Width, "height", meta.Height)

	var progress recognize.Progress = recognize.NewLogProgress(c.logger, slog.LevelDebug)
	if show, _ := cmd.Flags().GetBool("progress"); show {
		progress = recognize.MultiProgress{progress, recognize.NewConsoleProgress(cmd.ErrOrStderr(), "")}
	}

	analysis, err := a.Recognizer.Run(cmd.Context(), req, progress)
	if err != nil {
		return err
	}

	out := analyzeOutput{Result: analysis.Result, Region: analysis.Plan.Final()}
	if dst, _ := cmd.Flags().GetString("save-preprocessed"); dst != "" {
		if err := imageio.SavePNG(dst, analysis.Processed); err != nil {
			return err
		}
		out.Preprocessed = dst
	}

	var deliveryErr error
	if entry, err := c.recordAnalysis(cmd, a, analysis.Result); err != nil {
		return err
	} else if entry != nil {
		out.Entry = entry
		if send, _ := cmd.Flags().GetBool("send"); send && entry.Status != outbox.StatusSent {
			deliveryErr = errDeliveryFailed
		}
	}

	if err := render(cmd.OutOrStdout(), format, out, func(w io.Writer) error {
		return writeAnalysisText(w, out)
	}); err != nil {
		return err
	}
	return deliveryErr
}

// analyzeRequest resolves the recognition options: flags first, then the
// stored settings and the configured preprocessing.
func (c *cli) analyzeRequest(cmd *cobra.Command, a *app.App) (recognize.Request, error) {
	profile, err := a.Profile(cmd.Context())
	if err != nil {
		return recognize.Request{}, err
	}

	mode := profile.Mode
	if cmd.Flags().Changed("mode") {
		v, _ := cmd.Flags().GetString("mode")
		if mode, err = recognize.ParseMode(v); err != nil {
			return recognize.Request{}, err
		}
	}
	lang := profile.Language
	if cmd.Flags().Changed("lang") {
		lang, _ = cmd.Flags().GetString("lang")
	}

	crop := c.cfg.Preprocess.Crop
	if cmd.Flags().Changed("crop") {
		crop, _ = cmd.Flags().GetString("crop")
	}
	enhance := c.cfg.Preprocess.Enhance
	if cmd.Flags().Changed("enhance") {
		enhance, _ = cmd.Flags().GetString("enhance")
	}
	opts, err := preprocess.ParseOptions(crop, enhance)
	if err != nil {
		return recognize.Request{}, err
	}

	req := recognize.Request{Preprocess: opts, Mode: mode, Language: lang}
	if v, _ := cmd.Flags().GetString("roi"); v != "" {
		rect, err := geometry.ParseSelection(v)
		if err != nil {
			return recognize.Request{}, fmt.Errorf("--roi: %w", err)
		}
		req.Selection = &rect
	}
	return req, nil
}

// recordAnalysis sends or stores the result when --send or --pending is
// set. It returns nil when neither is.
func (c *cli) recordAnalysis(cmd *cobra.Command, a *app.App, res recognize.Result) (*outbox.Entry, error) {
	send, _ := cmd.Flags().GetBool("send")
	pending, _ := cmd.Flags().GetBool("pending")
	if !send && !pending {
		return nil, nil
	}

	profile, err := a.Profile(cmd.Context())
	if err != nil {
		return nil, err
	}
	notes, _ := cmd.Flags().GetString("notes")
	payload := a.Payload(profile.Token, res.SourceType, res.Value, notes)

	var entry outbox.Entry
	if send {
		entry, err = a.Outbox.AttemptSend(cmd.Context(), profile.Endpoint, payload)
	} else {
		entry, err = a.Outbox.SaveAsPending(cmd.Context(), payload)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func writeAnalysisText(w io.Writer, out analyzeOutput) error {
	kind := string(out.SourceType)
	if out.Format != "" {
		kind += " (" + out.Format + ")"
	}
	if _, err := fmt.Fprintf(w, "%s: %s\n", kind, out.Value); err != nil {
		return err
	}
	if out.Preprocessed != "" {
		_, _ = fmt.Fprintf(w, "Preprocessed image: %s\n", out.Preprocessed)
	}
	if out.Entry != nil {
		return writeEntryStatus(w, *out.Entry)
	}
	return nil
}
