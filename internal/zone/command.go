package zone

import (
	"errors"
	"fmt"
	"strings"
)

// Action is a transport or volume operation on a zone.
type Action string

const (
	ActionPlay      Action = "play"
	ActionPause     Action = "pause"
	ActionPlayPause Action = "playpause"
	ActionStop      Action = "stop"
	ActionNext      Action = "next"
	ActionPrevious  Action = "previous"
	ActionVolume    Action = "volume"
	ActionMute      Action = "mute"
	ActionUnmute    Action = "unmute"
)

var knownActions = map[Action]bool{
	ActionPlay: true, ActionPause: true, ActionPlayPause: true, ActionStop: true,
	ActionNext: true, ActionPrevious: true, ActionVolume: true, ActionMute: true, ActionUnmute: true,
}

// ErrInvalidCommand is returned by Validate.
var ErrInvalidCommand = errors.New("invalid command")

// Command is sent to the adapter owning a zone. Value is only meaningful for
// ActionVolume; Relative makes it a step from the current level.
type Command struct {
	Action   Action   `json:"action"`
	Value    *float64 `json:"value,omitempty"`
	Relative bool     `json:"relative,omitempty"`
}

// ParseAction normalises user input such as "Play" or "play_pause".
func ParseAction(s string) (Action, error) {
	a := Action(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", ""))
	if a == "prev" {
		a = ActionPrevious
	}
	if !knownActions[a] {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, s)
	}
	return a, nil
}

// Validate checks the command is well formed.
func (c Command) Validate() error {
	if !knownActions[c.Action] {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, c.Action)
	}
	if c.Action == ActionVolume && c.Value == nil {
		return fmt.Errorf("%w: volume requires a value", ErrInvalidCommand)
	}
	return nil
}

// Allowed reports whether z's capability flags permit the command.
// Volume and mute are gated on the zone having a volume control instead.
func (c Command) Allowed(z Zone) bool {
	switch c.Action {
	case ActionPlay:
		return z.IsPlayAllowed
	case ActionPause:
		return z.IsPauseAllowed
	case ActionPlayPause:
		return z.IsPlayAllowed || z.IsPauseAllowed
	case ActionNext:
		return z.IsNextAllowed
	case ActionPrevious:
		return z.IsPreviousAllowed
	case ActionVolume, ActionMute, ActionUnmute:
		return z.Volume != nil
	default:
		return true
	}
}

func (c Command) String() string {
	if c.Value == nil {
		return string(c.Action)
	}
	if c.Relative {
		return fmt.Sprintf("%s %+g", c.Action, *c.Value)
	}
	return fmt.Sprintf("%s %g", c.Action, *c.Value)
}

// CommandResponse is what an adapter reports back after handling a command.
type CommandResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// VolumeCommand is a helper for building volume commands.
func VolumeCommand(value float64, relative bool) Command {
	return Command{Action: ActionVolume, Value: &value, Relative: relative}
}
