package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dshills/exthost/internal/config"
	"github.com/dshills/exthost/internal/logging"
)

// app carries what every subcommand needs once the root has loaded the
// configuration.
type app struct {
	configFile     string
	logLevel       string
	logFormat      string
	extensionPaths []string

	stdout io.Writer
	stderr io.Writer

	loader *config.Loader
	cfg    *config.Config
	logger *log.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "exthost",
		Short: "Headless extension host",
		Long: `exthost discovers extensions, checks them against the sandbox policy
and runs their activation hooks against the host capability surface.

Examples:
  exthost list                      List discovered extensions
  exthost validate ./my-extension   Check a manifest without activating it
  exthost exec demo.hello world     Run a command, activating its extension
  exthost run                       Activate startup extensions and serve`,
		Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/exthost/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (text, json, logfmt)")
	flags.StringSliceVar(&a.extensionPaths, "extensions", nil, "extension directories, replacing the configured ones")

	root.AddCommand(
		newRunCmd(a),
		newListCmd(a),
		newValidateCmd(a),
		newExecCmd(a),
	)
	return root
}

// init loads the configuration, applies flag overrides and builds the
// logger.
func (a *app) init(cmd *cobra.Command, _ []string) error {
	a.loader = config.NewLoader(config.LoadOptions{ConfigFile: a.configFile})
	cfg, err := a.loader.Load(cmd.Context())
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if len(a.extensionPaths) > 0 {
		cfg.Extensions.Paths = a.extensionPaths
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
		Output: a.stderr,
	})
	a.loader.SetLogger(a.logger)
	if used := a.loader.FileUsed(); used != "" {
		a.logger.Debug("config loaded", "file", used)
	}
	return nil
}
