package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var validFormats = []string{"text", "json", "yaml"}

// addFormatFlag registers --format on cmd.
func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "", "output format (text, json, yaml); defaults to output.format from the config")
}

// outputFormat resolves --format against the configured default.
func (c *cli) outputFormat(cmd *cobra.Command) (string, error) {
	format := c.cfg.Output.Format
	if cmd.Flags().Changed("format") {
		format, _ = cmd.Flags().GetString("format")
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "text"
	}
	if !slices.Contains(validFormats, format) {
		return "", fmt.Errorf("invalid output format: %s (must be one of: %s)", format, strings.Join(validFormats, ", "))
	}
	return format, nil
}

// render writes v as JSON or YAML, or calls text for the text format.
func render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case "json":
		bts, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("format json failed: %w", err)
		}
		_, err = fmt.Fprintln(w, string(bts))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("format yaml failed: %w", err)
		}
		return enc.Close()
	default:
		return text(w)
	}
}
