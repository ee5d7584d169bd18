// Package iap implements the IAP State Machine (C7), the central
// algorithm of the daemon: the layered bring-up / tear-down protocol
// across a module chain, interleaved with script phases and restart-at-
// layer handling. Every exported method assumes it runs on the single
// event-loop goroutine (spec.md §5) — there is no internal locking, the
// same assumption the teacher makes about its `b2bua.Leg`/`Bridge` state
// machines running under the dialog layer's own serialization.
package iap

import "fmt"

// State is one of the 18 lifecycle states (spec.md §4.7).
type State int

const (
	Disconnected State = iota
	ScriptPreUp
	LinkUp
	LinkPostUp
	IPUp
	SrvUp
	ScriptPostUp
	Saving
	Connected
	ConnectedDown
	SrvDown
	IPDown
	LinkPreDown
	LinkDown
	ScriptPostDown
	IPRestartScripts
	LinkPreRestartScripts
	LinkRestartScripts
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case ScriptPreUp:
		return "SCRIPT_PRE_UP"
	case LinkUp:
		return "LINK_UP"
	case LinkPostUp:
		return "LINK_POST_UP"
	case IPUp:
		return "IP_UP"
	case SrvUp:
		return "SRV_UP"
	case ScriptPostUp:
		return "SCRIPT_POST_UP"
	case Saving:
		return "SAVING"
	case Connected:
		return "CONNECTED"
	case ConnectedDown:
		return "CONNECTED_DOWN"
	case SrvDown:
		return "SRV_DOWN"
	case IPDown:
		return "IP_DOWN"
	case LinkPreDown:
		return "LINK_PRE_DOWN"
	case LinkDown:
		return "LINK_DOWN"
	case ScriptPostDown:
		return "SCRIPT_POST_DOWN"
	case IPRestartScripts:
		return "IP_RESTART_SCRIPTS"
	case LinkPreRestartScripts:
		return "LINK_PRE_RESTART_SCRIPTS"
	case LinkRestartScripts:
		return "LINK_RESTART_SCRIPTS"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal reports whether s is the reap-eligible terminal state.
func (s State) IsTerminal() bool { return s == Disconnected }

// IsTearingDown reports whether s is part of the tear-down or restart
// walk — collaborators outside this package (the Request Scheduler) use
// this to decide whether a not-yet-terminal IAP can still be bound to a
// new request or must be treated as BUSY until it settles.
func (s State) IsTearingDown() bool { return s.isDownState() }

// isRestartState reports whether s is one of the three RESTART_SCRIPTS
// states.
func (s State) isRestartState() bool {
	return s == IPRestartScripts || s == LinkPreRestartScripts || s == LinkRestartScripts
}

// isDownState reports whether s is part of the tear-down or restart walk,
// used by the tear-down dispatch table's "any _DOWN or RESTART state:
// no-op" row.
func (s State) isDownState() bool {
	switch s {
	case ConnectedDown, SrvDown, IPDown, LinkPreDown, LinkDown, ScriptPostDown:
		return true
	default:
		return s.isRestartState()
	}
}
