package atca

import "errors"

// Action is what a caller does after an operation failed.
type Action int

const (
	Continue Action = iota
	Abort
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Rule maps errors matching Err (using errors.Is) to Action.
type Rule struct {
	Err    error
	Action Action
}

// Policy decides how a sequence of operations reacts to failures.
//
// Rules are evaluated in order and the first match wins. Errors matching no
// rule get the Default action. A nil error always continues.
type Policy struct {
	Rules   []Rule
	Default Action
}

// Decide returns the action for err.
func (p Policy) Decide(err error) Action {
	if err == nil {
		return Continue
	}
	for _, r := range p.Rules {
		if errors.Is(err, r.Err) {
			return r.Action
		}
	}
	return p.Default
}

// AbortOnError aborts on any failure.
var AbortOnError = Policy{Default: Abort}

// ContinueOnRejection continues when the device rejects a command, for
// example because a slot is not configured for the operation, and aborts on
// everything else.
var ContinueOnRejection = Policy{
	Rules: []Rule{
		{Err: ErrDeviceRejected, Action: Continue},
	},
	Default: Abort,
}
