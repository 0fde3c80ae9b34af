package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"hifibridge/internal/api"
	"hifibridge/internal/zone"
)

// Tools implements the MCP tool handlers on top of the core.
type Tools struct {
	zones    api.ZoneReader
	adapters api.AdapterController
	commands api.CommandDispatcher
}

// NewTools creates the tool set.
func NewTools(zones api.ZoneReader, adapters api.AdapterController, commands api.CommandDispatcher) *Tools {
	return &Tools{zones: zones, adapters: adapters, commands: commands}
}

// ServerTools returns every tool paired with its handler.
func (t *Tools) ServerTools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("list_zones",
				mcp.WithDescription("List playback zones with their state, volume and now playing"),
				mcp.WithString("adapter",
					mcp.Description("Only list zones owned by this adapter"),
				),
			),
			Handler: t.HandleListZones,
		},
		{
			Tool: mcp.NewTool("get_zone",
				mcp.WithDescription("Get one zone by ID"),
				mcp.WithString("zone_id",
					mcp.Required(),
					mcp.Description("Zone ID, e.g. sim:living"),
				),
			),
			Handler: t.HandleGetZone,
		},
		{
			Tool: mcp.NewTool("control_zone",
				mcp.WithDescription("Send a playback or volume command to a zone"),
				mcp.WithString("zone_id",
					mcp.Required(),
					mcp.Description("Zone ID, e.g. sim:living"),
				),
				mcp.WithString("action",
					mcp.Required(),
					mcp.Description("Command to send"),
					mcp.Enum("play", "pause", "playpause", "stop", "next", "previous", "volume", "mute", "unmute"),
				),
				mcp.WithNumber("value",
					mcp.Description("Volume level, required for the volume action"),
				),
				mcp.WithBoolean("relative",
					mcp.Description("Treat value as a step from the current volume"),
				),
			),
			Handler: t.HandleControlZone,
		},
		{
			Tool: mcp.NewTool("list_adapters",
				mcp.WithDescription("List audio source adapters and whether they are running"),
			),
			Handler: t.HandleListAdapters,
		},
		{
			Tool: mcp.NewTool("set_adapter_enabled",
				mcp.WithDescription("Enable or disable an adapter. Disabling does not stop a running adapter"),
				mcp.WithString("name",
					mcp.Required(),
					mcp.Description("Adapter name"),
				),
				mcp.WithBoolean("enabled",
					mcp.Required(),
					mcp.Description("New enabled state"),
				),
			),
			Handler: t.HandleSetAdapterEnabled,
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// HandleListZones handles the list_zones tool
func (t *Tools) HandleListZones(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var zones []zone.Zone
	if adapter, _ := request.GetArguments()["adapter"].(string); adapter != "" {
		zones = t.zones.GetZonesByAdapter(adapter)
	} else {
		zones = t.zones.GetZones()
	}
	if len(zones) == 0 {
		return mcp.NewToolResultText("No zones available"), nil
	}
	return jsonResult(zones)
}

// HandleGetZone handles the get_zone tool
func (t *Tools) HandleGetZone(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("zone_id")
	if err != nil {
		return mcp.NewToolResultError("zone_id parameter is required"), nil
	}
	z, ok := t.zones.GetZone(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Zone not found: %s", id)), nil
	}
	return jsonResult(z)
}

// HandleControlZone handles the control_zone tool
func (t *Tools) HandleControlZone(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("zone_id")
	if err != nil {
		return mcp.NewToolResultError("zone_id parameter is required"), nil
	}
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action parameter is required"), nil
	}

	args := request.GetArguments()
	relative, _ := args["relative"].(bool)
	req := api.CommandRequest{Action: action, Relative: relative}
	if raw, ok := args["value"]; ok && raw != nil {
		v, ok := raw.(float64)
		if !ok {
			return mcp.NewToolResultError("value must be a number"), nil
		}
		req.Value = &v
	}
	cmd, err := req.Command()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := t.commands.Dispatch(ctx, id, cmd)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Command failed: %v", err)), nil
	}
	if !resp.OK {
		return mcp.NewToolResultError(fmt.Sprintf("Adapter rejected %s: %s", cmd, resp.Message)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Sent %s to %s", cmd, id)), nil
}

// HandleListAdapters handles the list_adapters tool
func (t *Tools) HandleListAdapters(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := t.adapters.Status()
	if len(status) == 0 {
		return mcp.NewToolResultText("No adapters configured"), nil
	}
	return jsonResult(status)
}

// HandleSetAdapterEnabled handles the set_adapter_enabled tool
func (t *Tools) HandleSetAdapterEnabled(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name parameter is required"), nil
	}
	enabled, ok := request.GetArguments()["enabled"].(bool)
	if !ok {
		return mcp.NewToolResultError("enabled parameter is required"), nil
	}
	if err := t.adapters.SetEnabled(name, enabled); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Adapter %s %s", name, state)), nil
}
