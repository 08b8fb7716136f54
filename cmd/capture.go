package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/tanalyzer/internal/config"
	"firestige.xyz/tanalyzer/internal/daemon"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture, filter and display packets until interrupted",
	Long: `Run a capture session in the foreground until SIGINT or SIGTERM, or until a
capture file has been replayed. SIGHUP and edits to the config file reload the
filter, mutation and log settings. Flags override the config file.

Examples:
  tanalyzer capture -i eth0
  tanalyzer capture -i eth0 --source afpacket -f "tcp port 80"
  tanalyzer capture -r trace.pcapng --filter-type arp
  tanalyzer capture -c analyzer.yml -q`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithFlags(configFile, cmd.Flags(), captureBindings)
		if err != nil {
			return err
		}
		var out io.Writer = cmd.OutOrStdout()
		if quiet {
			out = nil
		}
		return runCapture(cfg, configFile, out)
	},
}

var quiet bool

// captureBindings maps config keys to the capture flags overriding them.
var captureBindings = map[string]string{
	"capture.source":         "source",
	"capture.device":         "interface",
	"capture.file":           "read",
	"capture.snap_len":       "snaplen",
	"capture.promiscuous":    "promisc",
	"capture.bpf_filter":     "bpf",
	"capture.buffer_size_mb": "buffer-size",
	"filter.source_ip":       "filter-src",
	"filter.destination_ip":  "filter-dst",
	"filter.type":            "filter-type",
	"mutation.enabled":       "mutate",
	"mutation.mode":          "mutate-mode",
	"mutation.burst":         "burst",
	"metrics.enabled":        "metrics",
	"metrics.listen":         "metrics-listen",
	"websocket.enabled":      "websocket",
	"websocket.listen":       "websocket-listen",
}

func init() {
	f := captureCmd.Flags()
	f.String("source", config.SourceLive, "capture source: live, afpacket or file")
	f.StringP("interface", "i", "", "interface to capture on")
	f.StringP("read", "r", "", "pcap or pcapng file to replay (implies --source file)")
	f.Int("snaplen", 65535, "bytes captured per frame")
	f.Bool("promisc", true, "open the interface in promiscuous mode")
	f.StringP("bpf", "f", "", "kernel BPF filter expression")
	f.Int("buffer-size", 8, "capture buffer size in MB")
	f.String("filter-src", "", "show packets whose source IP contains this text")
	f.String("filter-dst", "", "show packets whose destination IP contains this text")
	f.String("filter-type", "", "show packets whose EtherType name contains this text")
	f.Bool("mutate", false, "arm the mutation engine from the config file template")
	f.String("mutate-mode", "one-shot", "mutation mode: loop or one-shot")
	f.Int("burst", 1000, "packets sent per mutation burst")
	f.Bool("metrics", false, "serve Prometheus metrics")
	f.String("metrics-listen", ":9091", "metrics listen address")
	f.Bool("websocket", false, "publish packets to websocket clients")
	f.String("websocket-listen", ":8765", "websocket listen address")
	f.BoolVarP(&quiet, "quiet", "q", false, "do not print packets to stdout")

	// -r alone selects file replay
	captureCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("read") && !cmd.Flags().Changed("source") {
			return cmd.Flags().Set("source", config.SourceFile)
		}
		return nil
	}
}

func runCapture(cfg *config.Config, configPath string, out io.Writer) error {
	d, err := daemon.New(cfg, configPath, out)
	if err != nil {
		return fmt.Errorf("failed to create capture daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		return err
	}
	return d.Run()
}
