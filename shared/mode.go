package shared

import "fmt"

// Mode represents the bot's run mode.
type Mode int

const (
	Dev Mode = iota
	Test
	Prod
)

// String stringifies the provided mode.
func (m Mode) String() string {
	switch m {
	case Dev:
		return "dev"
	case Test:
		return "test"
	case Prod:
		return "prod"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode from its string form.
func ParseMode(mode string) (Mode, error) {
	switch mode {
	case "dev":
		return Dev, nil
	case "test":
		return Test, nil
	case "prod":
		return Prod, nil
	default:
		return Dev, fmt.Errorf("unknown bot mode: %q", mode)
	}
}

// DryRun reports whether order submissions must be simulated for the mode.
func (m Mode) DryRun() bool {
	return m == Test
}

// Debug reports whether verbose logging is enabled for the mode.
func (m Mode) Debug() bool {
	return m == Dev || m == Test
}
