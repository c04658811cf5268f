package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unimate/utslogin/logger"
	"github.com/unimate/utslogin/loginconfig"
)

var (
	configFlag string
	serverFlag string
	debugFlag  bool

	appConfig *loginconfig.Config
)

var rootCmd = &cobra.Command{
	Use:   "utslogin",
	Short: "Student one-time-code login",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadDotenvBestEffort()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		appConfig = cfg
		level := cfg.Log.Level
		if debugFlag {
			level = "debug"
		}
		return logger.Init(level)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config.yaml (default: ./config.yaml, then $XDG_CONFIG_HOME/utslogin/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Base URL of the login backend (overrides server.base_url)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Log debug output to stderr")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
