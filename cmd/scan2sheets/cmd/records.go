package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/scan2sheets/internal/app"
	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
)

func addRecordFlags(cmd *cobra.Command) {
	cmd.Flags().String("value", "", "the captured value")
	cmd.Flags().String("source-type", string(recognize.SourceHandwriting), "BARCODE or HANDWRITING")
	cmd.Flags().String("notes", "", "notes stored with the record")
	addFormatFlag(cmd)
}

// recordPayload builds a payload from the record flags and the effective
// profile. It returns the endpoint alongside.
func recordPayload(cmd *cobra.Command, a *app.App) (outbox.Payload, string, error) {
	st, _ := cmd.Flags().GetString("source-type")
	sourceType, err := recognize.ParseSourceType(st)
	if err != nil {
		return outbox.Payload{}, "", err
	}
	profile, err := a.Profile(cmd.Context())
	if err != nil {
		return outbox.Payload{}, "", err
	}
	value, _ := cmd.Flags().GetString("value")
	notes, _ := cmd.Flags().GetString("notes")
	return a.Payload(profile.Token, sourceType, value, notes), profile.Endpoint, nil
}

func (c *cli) newSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a value to the sheet endpoint",
		Long: `Send one record to the configured sheet endpoint. A failed delivery is kept
in the history as pending and the command exits non-zero.

Examples:
  scan2sheets send --value 4006381333931 --source-type BARCODE
  scan2sheets send --value "Call back Tuesday" --notes "desk 3"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := c.outputFormat(cmd)
			if err != nil {
				return err
			}
			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			payload, endpoint, err := recordPayload(cmd, a)
			if err != nil {
				return err
			}
			entry, err := a.Outbox.AttemptSend(cmd.Context(), endpoint, payload)
			if err != nil {
				return err
			}
			if err := render(cmd.OutOrStdout(), format, entry, func(w io.Writer) error {
				return writeEntryStatus(w, entry)
			}); err != nil {
				return err
			}
			if entry.Status != outbox.StatusSent {
				return errDeliveryFailed
			}
			return nil
		},
	}
	addRecordFlags(cmd)
	return cmd
}

func (c *cli) newPendingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Store a value as pending without sending it",
		Long: `Record a value in the history as pending. Pending records are delivered
later with "history retry" or "history retry-all".

Examples:
  scan2sheets pending --value PKG-1 --source-type BARCODE`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := c.outputFormat(cmd)
			if err != nil {
				return err
			}
			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			payload, _, err := recordPayload(cmd, a)
			if err != nil {
				return err
			}
			entry, err := a.Outbox.SaveAsPending(cmd.Context(), payload)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, entry, func(w io.Writer) error {
				return writeEntryStatus(w, entry)
			})
		},
	}
	addRecordFlags(cmd)
	return cmd
}
