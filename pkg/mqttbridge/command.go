package mqttbridge

import (
	"fmt"
	"strconv"
	"strings"
)

// Op identifies a bridge command.
type Op string

const (
	OpPlay       Op = "play"
	OpStop       Op = "stop"
	OpVolume     Op = "volume"
	OpVolumeUp   Op = "volume up"
	OpVolumeDown Op = "volume down"
	OpRefresh    Op = "refresh"
)

// Command is a parsed text command.
type Command struct {
	Op      Op
	Station string // OpPlay only.
	Level   int    // OpVolume only.
}

// ParseCommand parses one of:
//
//	play <id> | stop | volume <n> | volume up | volume down | refresh
func ParseCommand(s string) (Command, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("mqttbridge: empty command")
	}

	switch fields[0] {
	case "play":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("mqttbridge: usage: play <id>")
		}
		// Station ids are case sensitive.
		return Command{Op: OpPlay, Station: strings.Fields(s)[1]}, nil
	case "stop", "refresh":
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("mqttbridge: %s takes no arguments", fields[0])
		}
		return Command{Op: Op(fields[0])}, nil
	case "volume":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("mqttbridge: usage: volume <n>|up|down")
		}
		switch fields[1] {
		case "up":
			return Command{Op: OpVolumeUp}, nil
		case "down":
			return Command{Op: OpVolumeDown}, nil
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, fmt.Errorf("mqttbridge: volume level %q: %w", fields[1], err)
		}
		return Command{Op: OpVolume, Level: n}, nil
	default:
		return Command{}, fmt.Errorf("mqttbridge: unknown command %q", fields[0])
	}
}

func (c Command) String() string {
	switch c.Op {
	case OpPlay:
		return "play " + c.Station
	case OpVolume:
		return "volume " + strconv.Itoa(c.Level)
	default:
		return string(c.Op)
	}
}
