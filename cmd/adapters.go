package cmd

import (
	"github.com/spf13/cobra"
)

func newAdaptersCmd() *cobra.Command {
	adaptersCmd := &cobra.Command{
		Use:   "adapters",
		Short: "List and control adapters on a running bridge",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List adapters and their lifecycle state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			statuses, err := newClient().Adapters(cmd.Context())
			if err != nil {
				return err
			}
			return p.Adapters(statuses)
		},
	}
	adaptersCmd.AddCommand(listCmd)

	actions := []struct {
		name  string
		short string
	}{
		{"enable", "Enable an adapter so it starts with the bridge"},
		{"disable", "Disable an adapter"},
		{"start", "Start an adapter now"},
		{"stop", "Stop a running adapter and flush its zones"},
	}
	for _, a := range actions {
		action := a.name
		adaptersCmd.AddCommand(&cobra.Command{
			Use:   action + " NAME",
			Short: a.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := newPrinter(cmd)
				if err != nil {
					return err
				}
				status, err := newClient().AdapterAction(cmd.Context(), args[0], action)
				if err != nil {
					return err
				}
				return p.Adapter(status)
			},
		})
	}
	return adaptersCmd
}

func newBusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bus",
		Short: "Show event bus counters of a running bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			stats, err := newClient().Bus(cmd.Context())
			if err != nil {
				return err
			}
			return p.Bus(stats)
		},
	}
}
