package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"hifibridge/internal/api"
)

func newZonesCmd() *cobra.Command {
	zonesCmd := &cobra.Command{
		Use:   "zones",
		Short: "List, inspect and control zones on a running bridge",
	}

	var adapter string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List zones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			zones, err := newClient().Zones(cmd.Context(), adapter)
			if err != nil {
				return err
			}
			return p.Zones(zones)
		},
	}
	listCmd.Flags().StringVar(&adapter, "adapter", "", "Only list zones owned by this adapter")

	getCmd := &cobra.Command{
		Use:   "get ZONE_ID",
		Short: "Show one zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			z, err := newClient().Zone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return p.Zone(z)
		},
	}

	var relative bool
	commandCmd := &cobra.Command{
		Use:   "command ZONE_ID ACTION [VALUE]",
		Short: "Send a playback or volume command",
		Long: `Send a command to a zone. ACTION is one of play, pause, playpause, stop,
next, previous, volume, mute and unmute. volume takes a VALUE, which is
relative to the current level with --relative.

Examples:
  hifibridge zones command sim:living play
  hifibridge zones command sim:living volume 40
  hifibridge zones command --relative sim:living volume -- -5`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			req, err := commandRequest(args[1:], relative)
			if err != nil {
				return err
			}
			resp, err := newClient().Command(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if err := p.CommandResponse(args[0], resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("command rejected: %s", resp.Message)
			}
			return nil
		},
	}
	commandCmd.Flags().BoolVar(&relative, "relative", false, "Treat the volume VALUE as a step")

	zonesCmd.AddCommand(listCmd, getCmd, commandCmd)
	return zonesCmd
}

// commandRequest turns ACTION [VALUE] into a request body. Validation of the
// action itself happens server side.
func commandRequest(args []string, relative bool) (api.CommandRequest, error) {
	req := api.CommandRequest{Action: args[0], Relative: relative}
	if len(args) > 1 {
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return api.CommandRequest{}, fmt.Errorf("invalid value %q: %w", args[1], err)
		}
		req.Value = &v
	}
	return req, nil
}
