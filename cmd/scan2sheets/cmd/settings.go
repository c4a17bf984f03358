package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/scan2sheets/internal/app"
	"github.com/MeKo-Tech/scan2sheets/internal/settings"
)

func (c *cli) newSettingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the stored endpoint, token and recognition defaults",
		Long: `Stored settings take precedence over the delivery and recognition sections
of the configuration file.`,
	}
	cmd.AddCommand(c.newSettingsShowCommand(), c.newSettingsSaveCommand(), c.newSettingsClearCommand())
	return cmd
}

func (c *cli) newSettingsShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := c.outputFormat(cmd)
			if err != nil {
				return err
			}
			return c.withApp(func(a *app.App) error {
				s, err := a.Settings.Load(cmd.Context())
				if err != nil {
					return err
				}
				if reveal, _ := cmd.Flags().GetBool("reveal"); !reveal {
					s = s.Masked()
				}
				return render(cmd.OutOrStdout(), format, s, func(w io.Writer) error {
					return writeSettingsText(w, s)
				})
			})
		},
	}
	cmd.Flags().Bool("reveal", false, "print the secret token unmasked")
	addFormatFlag(cmd)
	return cmd
}

func (c *cli) newSettingsSaveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Update the stored settings",
		Long: `Update the stored settings. Only the given flags change; the rest keep
their stored values.

Examples:
  scan2sheets settings save --script-url https://script.google.com/macros/s/XYZ/exec --token s3cret
  scan2sheets settings save --mode text --lang ara+eng`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app.App) error {
				s, err := a.Settings.Load(cmd.Context())
				if err != nil {
					return err
				}
				for flag, field := range map[string]*string{
					"script-url": &s.ScriptURL,
					"token":      &s.SecretToken,
					"mode":       &s.Mode,
					"lang":       &s.OCRLang,
				} {
					if cmd.Flags().Changed(flag) {
						*field, _ = cmd.Flags().GetString(flag)
					}
				}
				saved, err := a.Settings.Save(cmd.Context(), s)
				if err != nil {
					return fmt.Errorf("invalid settings: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Settings saved.")
				return writeSettingsText(cmd.OutOrStdout(), saved.Masked())
			})
		},
	}
	cmd.Flags().String("script-url", "", "sheet web-app endpoint URL")
	cmd.Flags().String("token", "", "shared secret sent with every record")
	cmd.Flags().String("mode", "", "default recognition mode (auto, barcode, text)")
	cmd.Flags().String("lang", "", "default OCR language(s), e.g. eng or ara+eng")
	return cmd
}

func (c *cli) newSettingsClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app.App) error {
				if err := a.Settings.Clear(cmd.Context()); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Settings cleared.")
				return nil
			})
		},
	}
}

func writeSettingsText(w io.Writer, s settings.Settings) error {
	_, err := fmt.Fprintf(w, "Script URL: %s\nToken:      %s\nMode:       %s\nLanguage:   %s\n",
		orNone(s.ScriptURL), orNone(s.SecretToken), s.Mode, s.OCRLang)
	return err
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
