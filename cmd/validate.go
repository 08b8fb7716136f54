package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/tanalyzer/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file and print the effective configuration",
	Long: `Load and validate a configuration file without capturing. Defaults and
ANALYZER_* environment overrides are applied, and the effective configuration
is printed as YAML.

Examples:
  tanalyzer validate -c analyzer.yml
  ANALYZER_CAPTURE_DEVICE=eth1 tanalyzer validate -c analyzer.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func runValidate(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	out, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# VALID: %s\n", describe(path))
	_, err = w.Write(out)
	return err
}

func describe(path string) string {
	if path == "" {
		return "defaults and environment"
	}
	return path
}
