package iap

import (
	"context"
	"log/slog"
	"time"

	"github.com/sebas/icd/internal/events"
	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/module"
	"github.com/sebas/icd/internal/script"
)

// Disconnect implements the tear-down entry dispatch table of spec.md
// §4.7. errTag is empty for a user/idle-timer cancellation.
func (a *IAP) Disconnect(errTag string) {
	switch {
	case a.State == Disconnected:
		slog.Warn("iap: Disconnect on already-DISCONNECTED IAP", "iap", a.Name)
		return

	case a.State.isDownState():
		// Already tearing down (or restarting); no-op.
		return

	case a.State == ScriptPreUp:
		a.ErrTag = errTag
		a.onScriptsDrained = func() { a.continueDownWalk() }
		a.cancelOutstandingScripts()
		if len(a.scriptPIDs) == 0 {
			drain := a.onScriptsDrained
			a.onScriptsDrained = nil
			drain()
		}

	case a.State == LinkUp, a.State == LinkPostUp, a.State == IPUp, a.State == SrvUp:
		a.ErrTag = errTag
		layer := *a.inFlightLayer
		m := a.inFlightModule
		a.preempted = true
		a.invokeDown(m, layer)

	case a.State == Saving:
		a.cancelSaveDialog()
		a.beginConnectedDown(errTag)

	case a.State == ScriptPostUp, a.State == Connected:
		a.beginConnectedDown(errTag)

	default:
		slog.Error("iap: disconnect from unexpected state dropped", "iap", a.Name, "state", a.State)
	}
}

func (a *IAP) beginConnectedDown(errTag string) {
	a.ErrTag = errTag
	a.State = ConnectedDown
	a.publishStateChanged()
	if a.deps.Idle != nil {
		a.deps.Idle.Disarm(a.Name)
	}
	a.cancelOutstandingScripts()

	removeProxies := a.deps.AnyOtherConnected == nil || !a.deps.AnyOtherConnected(a)
	extraEnv := module.EnvBag{{Name: "REMOVE_PROXIES", Value: boolEnv(removeProxies)}}
	a.launchPhase(script.PhasePreDown, extraEnv, func() { a.continueDownWalk() })
}

func boolEnv(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// invokeDown invokes the down-side function for layer on module m,
// transitioning state first so a racing in-flight up-callback for the
// same layer is recognized as stale.
func (a *IAP) invokeDown(m module.Module, layer module.Layer) {
	a.State = downStateFor(layer)
	a.publishStateChanged()
	// layer is no longer the in-flight up-attempt once its down-call has
	// been issued; clearing here (rather than as soon as onUpCallback
	// observes its result) keeps these fields valid for the whole window
	// Disconnect's up-state branch may need to read them, including when
	// a StatusRestart callback drives Disconnect before returning.
	a.inFlightLayer = nil
	a.inFlightModule = nil

	if layer == module.LayerService {
		a.LimitedConn = false
		a.publishLimitedChanged()
	}

	token := a.nextToken()
	cb := module.Callback(func(status module.Status, _ identity.Identity, _ string, _ module.EnvBag, errTag string) {
		if errTag != "" {
			slog.Warn("iap: down callback reported error (teardown continues)", "iap", a.Name, "layer", layer, "error", errTag)
		}
		a.deps.Post(func() { a.onDownCallback(layer) })
	})

	ctx := context.Background()
	switch layer {
	case module.LayerLink:
		m.LinkDown(ctx, a.Identity, a.InterfaceName, token, cb)
	case module.LayerLinkPost:
		m.LinkPreDown(ctx, a.Identity, a.InterfaceName, token, cb)
	case module.LayerIP:
		m.IPDown(ctx, a.Identity, a.InterfaceName, token, cb)
	case module.LayerService:
		m.ServiceDown(ctx, a.Identity, a.InterfaceName, token, cb)
	}
}

func (a *IAP) onDownCallback(layer module.Layer) {
	if a.RestartLayer != nil && *a.RestartLayer == layer {
		a.moduleIndex = a.pendingDownEntry.moduleIndex
		a.layerCursor = layer
		a.enterRestartScripts(layer)
		return
	}
	a.continueDownWalk()
}

// continueDownWalk pops the next already-up layer and tears it down, tail
// to head of the module chain, head not-withstanding the layer order
// within a module (service, ip, link_post, link). When the stack is
// empty, every brought-up layer of this attempt has been torn down.
func (a *IAP) continueDownWalk() {
	if len(a.upStack) == 0 {
		a.enterScriptPostDown()
		return
	}
	top := a.upStack[len(a.upStack)-1]
	a.upStack = a.upStack[:len(a.upStack)-1]
	a.pendingDownEntry = top
	m := a.Chain[top.moduleIndex]
	a.invokeDown(m, top.layer)
}

func (a *IAP) enterScriptPostDown() {
	a.State = ScriptPostDown
	a.publishStateChanged()
	a.launchPhase(script.PhasePostDown, nil, func() { a.finish() })
}

func (a *IAP) finish() {
	a.State = Disconnected
	a.moduleIndex = 0
	a.layerCursor = module.LayerLink
	a.ConnectedAt = time.Time{}
	a.publishStateChanged()

	if a.ErrTag != "" && a.deps.Bus != nil {
		a.deps.Bus.Publish(events.IAPSubject(a.Name, events.SuffixFailed), a.ErrTag)
	} else if a.deps.Bus != nil {
		a.deps.Bus.Publish(events.IAPSubject(a.Name, events.SuffixDisconnected), nil)
	}

	if a.OnEnded != nil {
		a.OnEnded(a, a.ErrTag)
	}
}
