package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/tanalyzer/internal/device/live"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List interfaces available for capture",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDevices(cmd.OutOrStdout(), live.List)
	},
}

func runDevices(w io.Writer, list func() ([]live.Interface, error)) error {
	ifaces, err := list()
	if err != nil {
		return err
	}
	if len(ifaces) == 0 {
		fmt.Fprintln(w, "no capture interfaces found (insufficient privileges?)")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESSES\tDESCRIPTION")
	for _, i := range ifaces {
		addrs := "-"
		if len(i.Addresses) > 0 {
			addrs = strings.Join(i.Addresses, ",")
		}
		desc := i.Description
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", i.Name, addrs, desc)
	}
	return tw.Flush()
}
