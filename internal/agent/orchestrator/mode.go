package orchestrator

import (
	"fmt"
	"strings"
)

// Mode selects what happens to an assistant reply after a turn
type Mode string

const (
	// ModeChat leaves the reply alone
	ModeChat Mode = "chat"
	// ModeApply applies a diff found in the reply
	ModeApply Mode = "apply"
	// ModeRun applies a diff and runs the tests
	ModeRun Mode = "run"
	// ModeAuto obtains a diff, applies it, tests, repairs once and publishes
	ModeAuto Mode = "auto"
)

// Modes lists every mode in escalating order
var Modes = []Mode{ModeChat, ModeApply, ModeRun, ModeAuto}

// ParseMode is case-insensitive. Unknown values yield ModeChat and an error.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeChat, ModeApply, ModeRun, ModeAuto:
		return m, nil
	case "":
		return ModeChat, nil
	}
	return ModeChat, fmt.Errorf("unknown mode %q (want chat, apply, run or auto)", s)
}

// Hint is a one-line description for help output
func (m Mode) Hint() string {
	switch m {
	case ModeApply:
		return "apply diffs found in replies"
	case ModeRun:
		return "apply diffs, then run tests"
	case ModeAuto:
		return "plan, patch, test, repair once, commit and open a PR"
	default:
		return "conversation only, nothing is applied"
	}
}
