package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"loadsurge/internal/banner"
	"loadsurge/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "loadsurge",
	Short: "LoadSurge - synthetic user load generator",
	Long: `
LoadSurge drives simulated users through weighted actions against a target,
collects latency, error and resource samples, and reports statistics,
threshold alerts and recommendations.

Run a quick HTTP load with flags, or describe profiles and a stage pattern
(constant, progressive, spike, burst, endurance) in a YAML run file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log, err := logging.New(viper.GetString("log-level"), viper.GetBool("log-json"))
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		logging.SetGlobal(log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(runCmd, dummyCmd, historyCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.loadsurge.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Bool("log-json", false, "log as JSON instead of console text")
	pf.String("history-dir", "", "directory of the run history (default is $HOME/.loadsurge)")
	for _, name := range []string{"log-level", "log-json", "history-dir"} {
		viper.BindPFlag(name, pf.Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".loadsurge")
		}
	}
	viper.SetEnvPrefix("LOADSURGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "reading config: %v\n", err)
		}
	}
}
