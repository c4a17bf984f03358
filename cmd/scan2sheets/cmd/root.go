package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/scan2sheets/internal/app"
	"github.com/MeKo-Tech/scan2sheets/internal/config"
	"github.com/MeKo-Tech/scan2sheets/internal/version"
)

// cli is the state shared by one command tree: the configuration source
// and the components every subcommand builds its App from.
type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
	// appOptions are applied to every App the commands create.
	appOptions []app.Option
}

// NewRootCommand builds the scan2sheets command tree. opts replace
// components of the App each command creates and are meant for tests.
func NewRootCommand(opts ...app.Option) *cobra.Command {
	c := &cli{v: viper.New(), appOptions: opts}

	rootCmd := &cobra.Command{
		Use:   "scan2sheets",
		Short: "Capture barcodes and handwriting from images into a spreadsheet",
		Long: `scan2sheets reads a barcode/QR code or handwritten text from an image
and delivers the captured value to a Google Sheets web-app endpoint.

Failed deliveries are kept in a local history so they can be retried later.

Examples:
  scan2sheets analyze label.jpg --send
  scan2sheets analyze note.png --mode text --roi 40,60,300,120 --enhance contrast
  scan2sheets batch scans/ --recursive --format csv
  scan2sheets history list --status pending
  scan2sheets history retry-all
  scan2sheets serve --port 8080`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				ver, commit, date := version.Info()
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintln(out, "scan2sheets version "+ver)
				_, _ = fmt.Fprintln(out, "Commit: "+commit)
				_, _ = fmt.Fprintln(out, "Date: "+date)
				return nil
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.initConfig(); err != nil {
				return err
			}
			c.setupLogging(cmd.ErrOrStderr())
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (default is search in ., $HOME, $HOME/.config/scan2sheets, /etc/scan2sheets)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("storage", "", "storage backend (file, sqlite, postgres, memory)")
	pf.String("data-dir", "", "directory (file backend) or database file (sqlite) for settings and history")
	pf.String("dsn", "", "PostgreSQL connection string for the postgres backend")
	rootCmd.Flags().Bool("version", false, "print version information and exit")

	_ = c.v.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = c.v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = c.v.BindPFlag("storage.backend", pf.Lookup("storage"))
	_ = c.v.BindPFlag("storage.path", pf.Lookup("data-dir"))
	_ = c.v.BindPFlag("storage.dsn", pf.Lookup("dsn"))

	rootCmd.AddCommand(
		c.newAnalyzeCommand(),
		c.newBatchCommand(),
		c.newSendCommand(),
		c.newPendingCommand(),
		c.newHistoryCommand(),
		c.newSettingsCommand(),
		c.newServeCommand(),
		c.newConfigCommand(),
	)
	return rootCmd
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig reads the config file and environment once per command tree.
func (c *cli) initConfig() error {
	if c.cfg != nil {
		return nil
	}
	loader := config.NewLoaderWithViper(c.v)
	cfg, err := loader.LoadWithFile(c.cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	c.cfg = cfg
	return nil
}

// setupLogging installs a JSON slog handler at the configured level. Logs go
// to stderr so command output stays machine readable.
func (c *cli) setupLogging(w io.Writer) {
	var level slog.Level
	if c.cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch c.cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}
	c.logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(c.logger)
}

// newApp wires an App from the loaded configuration.
func (c *cli) newApp() (*app.App, error) {
	opts := append([]app.Option{app.WithLogger(c.logger)}, c.appOptions...)
	a, err := app.New(c.cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}
