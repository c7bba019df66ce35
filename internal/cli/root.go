package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "causeway",
	Short: "Delivery failure root cause analysis",
	Long: `Causeway correlates delivery failures with fleet, warehouse,
weather and traffic signals, resolves the most likely root cause for
each failure, and recommends what to fix first.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default causeway.yaml in the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func initViper() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("causeway")
	}
	viper.SetEnvPrefix("CAUSEWAY")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

// loadConfig builds the effective configuration from defaults, the
// config file and CAUSEWAY_ environment overrides
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if file := viper.ConfigFileUsed(); file != "" {
		loader = loader.WithConfigFile(file)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the CLI logger, verbose mode switching to
// development output
func newLogger() (*zap.Logger, error) {
	if verbose || viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
