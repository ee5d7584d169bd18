package iap

import (
	"fmt"

	"github.com/sebas/icd/internal/module"
	"github.com/sebas/icd/internal/script"
)

func restartStateFor(layer module.Layer) (State, error) {
	switch layer {
	case module.LayerIP:
		return IPRestartScripts, nil
	case module.LayerLinkPost:
		return LinkPreRestartScripts, nil
	case module.LayerLink:
		return LinkRestartScripts, nil
	default:
		return Disconnected, fmt.Errorf("iap: no restart state for layer %s", layer)
	}
}

func restartPhaseFor(layer module.Layer) script.Phase {
	switch layer {
	case module.LayerIP:
		return script.PhaseIPRestart
	case module.LayerLinkPost:
		return script.PhaseLinkPreRestart
	default:
		return script.PhaseLinkRestart
	}
}

// Restart requests a restart-at-layer: tear down through layer, run that
// layer's restart scripts, then resume bring-up from layer with the same
// module cursor. Accepted iff the IAP is at or below CONNECTED in the
// bring-up ordering, or already mid-restart (spec.md §4.7 "Restart
// protocol").
func (a *IAP) Restart(layer module.Layer) error {
	if !(a.State <= Connected || a.State.isRestartState()) {
		return fmt.Errorf("iap: restart rejected in state %s", a.State)
	}
	if _, err := restartStateFor(layer); err != nil {
		return err
	}

	l := layer
	a.RestartLayer = &l
	a.RestartState = a.State
	a.Disconnect("")
	return nil
}

func (a *IAP) enterRestartScripts(layer module.Layer) {
	state, err := restartStateFor(layer)
	if err != nil {
		// Unreachable in practice: Restart() already validated layer.
		state = Disconnected
	}
	a.State = state
	a.publishStateChanged()

	a.launchPhase(restartPhaseFor(layer), nil, func() {
		a.RestartLayer = nil
		a.stepUp()
	})
}
