// Package cli implements the storectl command tree.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/damoang/angple-store/internal/app"
	"github.com/damoang/angple-store/internal/config"
	pkglogger "github.com/damoang/angple-store/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// env holds state shared by every subcommand
type env struct {
	stdout io.Writer

	configPath string
	appEnv     string
	dataDir    string

	cfg *config.Config
	app *app.App
	log zerolog.Logger
}

// open builds the App on first use
func (e *env) open() (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	a, err := app.New(e.cfg, e.log)
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

func (e *env) close() {
	if e.app != nil {
		if err := e.app.Close(); err != nil {
			e.log.Warn().Err(err).Msg("close failed")
		}
		e.app = nil
	}
}

// NewRootCommand returns the storectl root command
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	e := &env{stdout: stdout}

	rc := &cobra.Command{
		Use:           "storectl",
		Short:         "Manage the angple document store",
		Long:          "storectl administers the flat-file collections of the angple platform:\ninspection, backups, counter reconciliation and the maintenance server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dotenvFiles := config.LoadDotEnv()

			if e.appEnv == "" {
				e.appEnv = os.Getenv("APP_ENV")
			}
			if e.appEnv == "" {
				e.appEnv = "local"
			}
			if e.configPath == "" {
				e.configPath = config.GetConfigPath(e.appEnv)
			}

			cfg, err := config.Load(e.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("env") {
				cfg.App.Env = e.appEnv
			}
			if e.dataDir != "" {
				cfg.Storage.DataDir = e.dataDir
			}
			e.cfg = cfg

			pkglogger.InitStructured(cfg.App.Env, cfg.App.LogLevel)
			e.log = pkglogger.Component("storectl")
			e.log.Debug().Strs("dotenv", dotenvFiles).Str("config", e.configPath).Msg("configuration loaded")
			config.LogResolved(cfg, e.log)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}

	flags := rc.PersistentFlags()
	flags.StringVarP(&e.configPath, "config", "c", "", "config file (default configs/config.<APP_ENV>.yaml)")
	flags.StringVar(&e.appEnv, "env", "", "environment name, overrides APP_ENV")
	flags.StringVar(&e.dataDir, "data-dir", "", "data directory, overrides storage.data_dir")

	rc.AddCommand(newInitCommand(e))
	rc.AddCommand(newCollectionsCommand(e))
	rc.AddCommand(newBackupCommand(e))
	rc.AddCommand(newReconcileCommand(e))
	rc.AddCommand(newSeedCommand(e))
	rc.AddCommand(newServeCommand(e))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}
