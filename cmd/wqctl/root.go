// wqctl is the admin CLI: schema migrations, offline recommendations, the
// guideline catalog and history exports.
//
// Usage:
//
//	wqctl migrate up|down|version [--config=<file>]
//	wqctl recommend --set pH=9.2,D.O=4.1 | --file=<sample.json> [--json]
//	wqctl guidelines [--parameter=<name>]
//	wqctl export --location=<name> [--days=30] [--format=csv|excel] [-o <file>]
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/water-quality-server/internal/config"
	"github.com/water-quality-server/internal/domain"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootOptions struct {
	configFile string
	lite       bool
	verbose    bool
}

// load resolves the configuration: --lite selects the standalone SQLite
// setup, otherwise viper reads --config or the default search path.
func (o *rootOptions) load() (*domain.Config, error) {
	if o.lite {
		lite := config.LoadLiteConfig()
		if err := lite.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return lite.Config(), nil
	}

	var (
		m   *config.Manager
		err error
	)
	if o.configFile != "" {
		m, err = config.NewManagerFromFile(o.configFile)
	} else {
		m, err = config.NewManager()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return m.GetConfig(), nil
}

func (o *rootOptions) logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if o.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "wqctl",
		Short:         "Administer the water quality assessment service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default: config.yaml in ., ./config or /etc/water-quality-server)")
	pf.BoolVar(&opts.lite, "lite", false, "use the standalone SQLite configuration")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newRecommendCmd(opts))
	root.AddCommand(newGuidelinesCmd(opts))
	root.AddCommand(newExportCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
