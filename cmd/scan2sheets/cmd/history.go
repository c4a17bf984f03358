package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/scan2sheets/internal/app"
	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
)

func (c *cli) newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, retry and delete recorded values",
		Long: `The history keeps the last 50 records, newest first. Records whose delivery
failed stay pending until a retry succeeds.`,
	}
	cmd.AddCommand(
		c.newHistoryListCommand(),
		c.newHistoryShowCommand(),
		c.newHistoryRetryCommand(),
		c.newHistoryRetryAllCommand(),
		c.newHistoryDeleteCommand(),
		c.newHistoryClearCommand(),
	)
	return cmd
}

// withApp runs fn with a freshly wired App.
func (c *cli) withApp(fn func(a *app.App) error) error {
	a, err := c.newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}

func (c *cli) newHistoryListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recorded values",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := c.outputFormat(cmd)
			if err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			return c.withApp(func(a *app.App) error {
				list := a.Outbox.List
				switch status {
				case "", "all":
				case string(outbox.StatusPending):
					list = a.Outbox.Pending
				default:
					return fmt.Errorf("invalid status filter: %s (must be all or pending)", status)
				}
				entries, err := list(cmd.Context())
				if err != nil {
					return err
				}
				if entries == nil {
					entries = []outbox.Entry{}
				}
				return render(cmd.OutOrStdout(), format, entries, func(w io.Writer) error {
					return writeHistoryTable(w, entries)
				})
			})
		},
	}
	cmd.Flags().String("status", "all", "filter by status (all, pending)")
	addFormatFlag(cmd)
	return cmd
}

func (c *cli) newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the value of a record",
		Long: `Print the stored value of one record, ready to paste elsewhere. Use
--format json or yaml for the whole record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := c.outputFormat(cmd)
			if err != nil {
				return err
			}
			return c.withApp(func(a *app.App) error {
				entry, err := a.Outbox.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), format, entry, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, entry.Payload.Value)
					return err
				})
			})
		},
	}
	addFormatFlag(cmd)
	return cmd
}

func (c *cli) newHistoryRetryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry delivery of a pending record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := c.outputFormat(cmd)
			if err != nil {
				return err
			}
			return c.withApp(func(a *app.App) error {
				profile, err := a.Profile(cmd.Context())
				if err != nil {
					return err
				}
				entry, err := a.Outbox.Retry(cmd.Context(), profile.Endpoint, args[0])
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
			})
		},
	}
	addFormatFlag(cmd)
	return cmd
}

// retryAllOutput is the machine-readable result of history retry-all.
type retryAllOutput struct {
	Summary outbox.RetrySummary `json:"summary" yaml:"summary"`
	Entries []outbox.Entry      `json:"entries" yaml:"entries"`
}

func (c *cli) newHistoryRetryAllCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry-all",
		Short: "Retry every pending record",
		Long: `Retry every record that is pending when the command starts, one at a time.
The command exits non-zero when any record is still pending afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := c.outputFormat(cmd)
			if err != nil {
				return err
			}
			return c.withApp(func(a *app.App) error {
				profile, err := a.Profile(cmd.Context())
				if err != nil {
					return err
				}
				out := retryAllOutput{Entries: []outbox.Entry{}}
				out.Summary, err = a.Outbox.RetryAllPending(cmd.Context(), profile.Endpoint, func(e outbox.Entry) {
					out.Entries = append(out.Entries, e)
				})
				if errors.Is(err, outbox.ErrNothingPending) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Nothing pending.")
					return nil
				}
				if err != nil {
					return err
				}
				if err := render(cmd.OutOrStdout(), format, out, func(w io.Writer) error {
					for _, e := range out.Entries {
						if err := writeEntryStatus(w, e); err != nil {
							return err
						}
					}
					_, err := fmt.Fprintf(w, "Retried %d: %d sent, %d still pending, %d skipped.\n",
						out.Summary.Attempted, out.Summary.Sent, out.Summary.Pending, out.Summary.Skipped)
					return err
				}); err != nil {
					return err
				}
				if out.Summary.Pending > 0 {
					return errDeliveryFailed
				}
				return nil
			})
		},
	}
	addFormatFlag(cmd)
	return cmd
}

func (c *cli) newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app.App) error {
				if err := a.Outbox.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
				return nil
			})
		},
	}
}

func (c *cli) newHistoryClearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("refusing to clear the history without --yes")
			}
			return c.withApp(func(a *app.App) error {
				if err := a.Outbox.ClearAll(cmd.Context()); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
				return nil
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "confirm clearing all records")
	return cmd
}

// writeEntryStatus prints a one-line summary of an entry's delivery state.
func writeEntryStatus(w io.Writer, e outbox.Entry) error {
	var err error
	switch {
	case e.Status == outbox.StatusSent:
		_, err = fmt.Fprintf(w, "Sent %s.\n", e.ID)
	case e.Error != "":
		_, err = fmt.Fprintf(w, "Saved %s as pending: %s\n", e.ID, e.Error)
	default:
		_, err = fmt.Fprintf(w, "Saved %s as pending.\n", e.ID)
	}
	return err
}

// writeHistoryTable renders entries newest first with a status badge.
func writeHistoryTable(w io.Writer, entries []outbox.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No records.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tSOURCE\tVALUE\tERROR")
	for _, e := range entries {
		value := oneLine(e.Payload.Value)
		if e.Payload.Notes != "" {
			value += " (" + oneLine(e.Payload.Notes) + ")"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t[%s]\t%s\t%s\t%s\n",
			e.ID,
			e.CreatedAt.Local().Format(time.DateTime),
			e.Status,
			e.Payload.SourceType,
			value,
			e.Error,
		)
	}
	return tw.Flush()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
