package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/collabgraph/internal/config"
	"github.com/Sternrassler/collabgraph/internal/pipeline"
	"github.com/Sternrassler/collabgraph/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// app carries state shared by every subcommand.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     zerolog.Logger
	logFile    *os.File

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: config.New(), stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:   "collabgraph",
		Short: "Spotify artist collaboration graph builder",
		Long: `collabgraph builds a collaboration graph between artists from shared
track credits on Spotify.

The harvest command walks a roster of artists, lists their albums and
singles, fetches every track and records which artists are credited
together. Requests stay under a sliding-window rate limit and failed
calls are retried with exponential backoff. Results are appended per
artist, so an interrupted run resumes where it stopped.

The matrix, export and status commands work on the stored results. The
details command looks up popularity, followers and genres for the roster.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default: ./collabgraph.yaml or ~/.config/collabgraph/collabgraph.yaml)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Also append JSON logs to this file")
	flags.Bool("log-pretty", true, "Human-readable logs on stderr")
	a.bind(flags, "log.level", "log-level")
	a.bind(flags, "log.file", "log-file")
	a.bind(flags, "log.pretty", "log-pretty")

	cmd.AddCommand(
		newHarvestCmd(a),
		newMatrixCmd(a),
		newExportCmd(a),
		newStatusCmd(a),
		newDetailsCmd(a),
	)
	return cmd
}

// configKey is the flag annotation naming the config key a flag overrides.
const configKey = "collabgraph_config_key"

// bind marks a flag as overriding a config key. Several subcommands share
// keys, so the binding to viper happens in init for the executing command
// only.
func (a *app) bind(flags *pflag.FlagSet, key, flag string) {
	if err := flags.SetAnnotation(flag, configKey, []string{key}); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func (a *app) init(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKey]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		bindErr = a.v.BindPFlag(keys[0], f)
	})
	if bindErr != nil {
		return &pipeline.SetupError{Op: "bind flags", Err: bindErr}
	}

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return &pipeline.SetupError{Op: "load config", Err: err}
	}
	a.cfg = cfg

	logCfg := logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: a.stderr,
	}
	if cfg.Log.File != "" {
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return &pipeline.SetupError{Op: "open log file", Err: err}
		}
		a.logFile = f
		logCfg.File = f
	}
	a.logger = logging.Setup(logCfg)
	return nil
}

func (a *app) close() error {
	if a.logFile != nil {
		err := a.logFile.Close()
		a.logFile = nil
		return err
	}
	return nil
}
