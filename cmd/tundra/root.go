// Command tundra drives a task through the discovery-through-merge
// pipeline, wiring the context steerer, resilient provider registry,
// agent executor, and event bus behind a cobra command tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ryanmaclean/tundra/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tundra",
	Short: "Tundra - drives AI coding agents through a multi-phase task pipeline",
	Long: `Tundra orchestrates long-lived agent CLIs through a discovery,
spec, plan, code, QA, and merge pipeline, routing LLM calls across
ranked provider endpoints with circuit breakers and failover.`,
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tundra.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}
		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tundra")
	}

	viper.SetEnvPrefix("TUNDRA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
