package iap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sebas/icd/internal/events"
	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/idletimer"
	"github.com/sebas/icd/internal/module"
	"github.com/sebas/icd/internal/script"
)

// ScriptLauncher is the subset of *script.Runner the state machine needs;
// an interface so tests can substitute a deterministic fake.
type ScriptLauncher interface {
	Run(ctx context.Context, phase script.Phase, path string, args []string, env module.EnvBag, userData any, cb script.ExitCallback) (int, error)
	Cancel(pid int) error
}

// Deps wires the state machine to its collaborators. Scripts is required.
// The rest may be left zero: SaveTimeout 0 disables SAVING's timeout
// fallback, a nil CheckCollision disables the OK_NEW_IAP collision check,
// a nil Post runs callbacks directly, and a nil ScriptPath, Idle, Bus,
// AnyOtherConnected or CancelSaveDialog is skipped.
type Deps struct {
	Scripts ScriptLauncher
	// ScriptPath resolves the executable (and argv) a given phase should
	// run for this IAP. An empty path means "no script configured"; the
	// phase completes immediately.
	ScriptPath func(phase script.Phase, a *IAP) (path string, args []string)
	Idle       *idletimer.Timer
	Bus        *events.Bus
	// Post hands a callback back to the single event-loop goroutine
	// (spec.md §5). Production wiring passes eventloop.Loop.Post; tests
	// may pass a direct call for synchronous execution.
	Post func(func())
	// AnyOtherConnected reports whether some IAP other than a is
	// currently CONNECTED, driving the pre-down REMOVE_PROXIES flag.
	AnyOtherConnected func(a *IAP) bool
	// CheckCollision reports whether newID collides (by identity
	// equality) with another live IAP, used on OK_NEW_IAP refinement.
	CheckCollision func(a *IAP, newID identity.Identity) bool
	SaveTimeout    time.Duration
	// CancelSaveDialog notifies the UI Companion (C9) that an in-flight
	// save dialog is no longer relevant (tear-down raced it).
	CancelSaveDialog func(a *IAP)
}

type upEntry struct {
	moduleIndex int
	layer       module.Layer
}

// IAP is one in-memory connection attempt: spec.md §3's IAP record plus
// the bring-up/tear-down cursor state needed to drive it.
type IAP struct {
	Name        string
	Identity    identity.Identity
	IDIsLocal   bool
	NetworkType string
	State       State

	Chain         []module.Module
	InterfaceName string
	ErrTag        string

	RestartLayer *module.Layer
	RestartState State

	LimitedConn bool
	ScriptEnv   module.EnvBag

	// ConnectedAt records when this attempt last reached CONNECTED, for
	// the Client API's GetStatistics (spec.md §6); the zero value means
	// "never connected this attempt".
	ConnectedAt time.Time

	// WantSave marks that bring-up should pause in SAVING before
	// CONNECTED, giving the UI a chance to rename a temporary IAP.
	WantSave bool
	SaveDlg  bool

	// OnCreated/OnEnded are the Request Scheduler's completion hooks
	// (spec.md §4.8's CREATED/DISCONNECTED/FAILED callbacks). OnCreated
	// fires each time the IAP enters CONNECTED (again after a restart);
	// OnEnded fires exactly once when the IAP reaches DISCONNECTED.
	OnCreated func(a *IAP)
	OnEnded   func(a *IAP, errTag string)

	moduleIndex     int
	layerCursor     module.Layer
	upStack         []upEntry
	pendingDownEntry upEntry
	scriptsInFlight int
	scriptPIDs      map[int]bool
	onScriptsDrained func()
	inFlightLayer   *module.Layer
	inFlightModule  module.Module
	preempted       bool
	tokenSeq        module.Token
	saveTimer       *time.Timer

	deps Deps
}

// New creates an IAP in state DISCONNECTED, ready for Connect.
func New(name string, id identity.Identity, networkType string, chain []module.Module, deps Deps) *IAP {
	if deps.Post == nil {
		deps.Post = func(fn func()) { fn() }
	}
	return &IAP{
		Name:        name,
		Identity:    id,
		NetworkType: networkType,
		State:       Disconnected,
		Chain:       chain,
		scriptPIDs:  make(map[int]bool),
		deps:        deps,
	}
}

func (a *IAP) nextToken() module.Token {
	a.tokenSeq++
	return a.tokenSeq
}

func (a *IAP) publishStateChanged() {
	if a.deps.Bus == nil {
		return
	}
	a.deps.Bus.Publish(events.IAPSubject(a.Name, events.SuffixStateChanged), a.State.String())
}

func (a *IAP) publishLimitedChanged() {
	if a.deps.Bus == nil {
		return
	}
	a.deps.Bus.Publish(events.IAPSubject(a.Name, events.SuffixLimitedChanged), a.LimitedConn)
}

// Connect begins bring-up from DISCONNECTED.
func (a *IAP) Connect() {
	if a.State != Disconnected {
		slog.Warn("iap: Connect called while not DISCONNECTED", "iap", a.Name, "state", a.State)
		return
	}
	a.State = ScriptPreUp
	a.publishStateChanged()
	a.launchPhase(script.PhasePreUp, nil, func() { a.stepUp() })
}

// stepUp advances the bring-up cursor to the next implemented layer,
// across module boundaries, or completes the module walk.
func (a *IAP) stepUp() {
	for a.moduleIndex < len(a.Chain) {
		m := a.Chain[a.moduleIndex]
		for a.layerCursor <= module.LayerService {
			layer := a.layerCursor
			if m.Implements().Has(layer) {
				a.invokeUp(m, layer)
				return
			}
			a.layerCursor++
		}
		a.moduleIndex++
		a.layerCursor = module.LayerLink
	}
	a.enterScriptPostUp()
}

func upStateFor(layer module.Layer) State {
	switch layer {
	case module.LayerLink:
		return LinkUp
	case module.LayerLinkPost:
		return LinkPostUp
	case module.LayerIP:
		return IPUp
	case module.LayerService:
		return SrvUp
	default:
		return Disconnected
	}
}

func downStateFor(layer module.Layer) State {
	switch layer {
	case module.LayerLink:
		return LinkDown
	case module.LayerLinkPost:
		return LinkPreDown
	case module.LayerIP:
		return IPDown
	case module.LayerService:
		return SrvDown
	default:
		return Disconnected
	}
}

func (a *IAP) invokeUp(m module.Module, layer module.Layer) {
	a.State = upStateFor(layer)
	layerCopy := layer
	a.inFlightLayer = &layerCopy
	a.inFlightModule = m
	a.preempted = false
	a.publishStateChanged()

	token := a.nextToken()
	cb := module.Callback(func(status module.Status, newID identity.Identity, newIface string, env module.EnvBag, errTag string) {
		a.deps.Post(func() { a.onUpCallback(m, layer, status, newID, newIface, env, errTag) })
	})

	ctx := context.Background()
	switch layer {
	case module.LayerLink:
		m.LinkUp(ctx, a.Identity, token, cb)
	case module.LayerLinkPost:
		m.LinkPostUp(ctx, a.Identity, a.InterfaceName, token, cb)
	case module.LayerIP:
		m.IPUp(ctx, a.Identity, a.InterfaceName, token, cb)
	case module.LayerService:
		m.ServiceUp(ctx, a.Identity, a.InterfaceName, token, cb)
	}
}

func (a *IAP) onUpCallback(m module.Module, layer module.Layer, status module.Status, newID identity.Identity, newIface string, env module.EnvBag, errTag string) {
	expected := upStateFor(layer)
	stale := a.State != expected

	if stale {
		if a.preempted {
			// Disconnect/Restart already invoked this layer's down call
			// in response to cancellation; this late arrival changes
			// nothing.
			return
		}
		if status == module.StatusOK || status == module.StatusOKNewIAP {
			a.invokeDown(m, layer)
		} else {
			a.continueDownWalk()
		}
		return
	}

	switch status {
	case module.StatusOK, module.StatusOKNewIAP:
		if !newID.IsZero() {
			if status == module.StatusOKNewIAP && a.deps.CheckCollision != nil && a.deps.CheckCollision(a, newID) {
				// The layer did bring up a real resource under newID; tear
				// it back down rather than abandoning it, same as any
				// other post-bring-up failure.
				a.ErrTag = "identity_collision"
				a.Identity = newID
				a.invokeDown(m, layer)
				return
			}
			a.Identity = newID
		}
		if newIface != "" {
			a.InterfaceName = newIface
		}
		if len(env) > 0 {
			merged := append(module.EnvBag{}, env...)
			a.ScriptEnv = append(merged, a.ScriptEnv...)
		}
		a.upStack = append(a.upStack, upEntry{moduleIndex: a.moduleIndex, layer: layer})
		a.layerCursor = layer + 1
		a.stepUp()
	case module.StatusError:
		a.ErrTag = errTag
		a.continueDownWalk()
	case module.StatusRestart:
		if err := a.Restart(layer); err != nil {
			slog.Error("iap: module requested restart but it was rejected", "iap", a.Name, "layer", layer, "error", err)
		}
	default:
		slog.Error("iap: unknown layer callback status dropped", "iap", a.Name, "layer", layer, "status", status)
	}
}

func (a *IAP) enterScriptPostUp() {
	a.State = ScriptPostUp
	a.publishStateChanged()
	a.launchPhase(script.PhasePostUp, nil, func() {
		if a.WantSave {
			a.enterSaving()
			return
		}
		a.hasConnected()
	})
}

func (a *IAP) hasConnected() {
	if a.saveTimer != nil {
		a.saveTimer.Stop()
		a.saveTimer = nil
	}
	a.State = Connected
	a.ConnectedAt = time.Now()
	a.publishStateChanged()
	if a.deps.Idle != nil {
		a.deps.Idle.Arm(a.Name, a.NetworkType)
	}
	if a.deps.Bus != nil {
		a.deps.Bus.Publish(events.IAPSubject(a.Name, events.SuffixConnected), nil)
	}
	if a.OnCreated != nil {
		a.OnCreated(a)
	}
}

// String renders the IAP for logging.
func (a *IAP) String() string {
	return fmt.Sprintf("iap(%s, %s, state=%s)", a.Name, a.Identity, a.State)
}
