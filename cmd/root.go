// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tanalyzer",
	Short: "tanalyzer - live packet capture, filter and injection",
	Long: `tanalyzer captures frames from a network interface, an AF_PACKET ring or a
capture file, decodes them (Ethernet, ARP, IPv4, TCP, UDP), filters them and
publishes them to the console or to websocket clients.

While capture runs it can synthesize packets from a configured template and
replay them through the capture device, once or on every captured frame.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (YAML, root key analyzer)")

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(validateCmd)
}
