package cmd

import (
	"github.com/spf13/cobra"

	"github.com/robert1948/localstorm-sub000/internal/config"
	apperrors "github.com/robert1948/localstorm-sub000/internal/errors"
	"github.com/robert1948/localstorm-sub000/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stormguard",
	Short: "Adaptive rate limiting and threat mitigation gateway",
	Long: `stormguard fronts an HTTP API with per-client rate limiting, burst
detection, reputation scoring and escalating blocks.

Use the subcommands to run the gateway or inspect a running instance.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initCLI)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default searches ., ./config, the user config dir and /etc/stormguard)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output (sets log level to debug)")
}

// initCLI sets up the CLI logger before any command runs. Command output
// itself goes to stdout; the logger carries diagnostics on stderr.
func initCLI() {
	if err := observability.InitCLILogger("stormguard", verbose); err != nil {
		ExitWithCodeStderr(ExitFailure, "Failed to initialize logger", err)
	}
}

// loadConfig loads the configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, err, "configuration invalid")
	}
	return cfg, nil
}
