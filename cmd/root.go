// Package cmd implements hushctl, an operator tool for invites, chat type catalogs and persisted sessions.
package cmd

import (
	"github.com/meow-io/go-hush/config"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	rootDir    string
	debug      bool
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "hushctl",
		Short:         "Inspect hush invites, chat types and session state",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&opts.rootDir, "root", "", "session root directory, overrides the config file")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "debug logging")

	rootCmd.AddCommand(
		newInviteCmd(),
		newTypesCmd(),
		newStateCmd(opts),
	)
	return rootCmd
}

// The CLI never writes a log file.
func (o *globalOptions) config() (*config.Config, error) {
	extra := []config.Option{config.WithLogWriter(nil)}
	if o.rootDir != "" {
		extra = append(extra, config.WithRootDir(o.rootDir))
	}
	if o.debug {
		extra = append(extra, config.WithDebug(true))
	}
	if o.configPath == "" {
		return config.NewConfig(extra...), nil
	}
	return config.LoadFile(o.configPath, extra...)
}
