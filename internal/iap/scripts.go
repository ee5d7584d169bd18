package iap

import (
	"context"
	"log/slog"

	"github.com/sebas/icd/internal/module"
	"github.com/sebas/icd/internal/script"
)

// launchPhase runs the script configured for phase (if any) and calls
// onDrain once every process it started has exited. extraEnv, when
// non-nil, is prepended ahead of the accumulated ScriptEnv (used for the
// pre-down REMOVE_PROXIES flag).
func (a *IAP) launchPhase(phase script.Phase, extraEnv module.EnvBag, onDrain func()) {
	var path string
	var args []string
	if a.deps.ScriptPath != nil {
		path, args = a.deps.ScriptPath(phase, a)
	}
	if path == "" {
		onDrain()
		return
	}

	env := a.ScriptEnv
	if len(extraEnv) > 0 {
		merged := append(append(module.EnvBag{}, extraEnv...), a.ScriptEnv...)
		env = merged
	}

	// scriptsInFlight is incremented before Run is called (not after it
	// returns) so a launcher whose callback fires before Run hands back
	// its pid — the fake launcher in tests does this synchronously, and
	// nothing in script.Runner's contract rules it out for a real one —
	// can't make onScriptExit under-count and drain the phase early.
	a.onScriptsDrained = onDrain
	a.scriptsInFlight++
	pid, err := a.deps.Scripts.Run(context.Background(), phase, path, args, env, nil, func(pid int, exitValue int, _ any) {
		a.deps.Post(func() { a.onScriptExit(pid, exitValue) })
	})
	if err != nil {
		slog.Error("iap: failed to launch script", "iap", a.Name, "phase", phase, "error", err)
		a.scriptsInFlight--
		drain := a.onScriptsDrained
		a.onScriptsDrained = nil
		drain()
		return
	}
	a.scriptPIDs[pid] = true
}

func (a *IAP) onScriptExit(pid int, exitValue int) {
	delete(a.scriptPIDs, pid)
	a.scriptsInFlight--
	if exitValue != 0 {
		slog.Warn("iap: script exited non-zero (soft failure)", "iap", a.Name, "pid", pid, "exit", exitValue)
	}
	if a.scriptsInFlight <= 0 && a.onScriptsDrained != nil {
		drain := a.onScriptsDrained
		a.onScriptsDrained = nil
		drain()
	}
}

// cancelOutstandingScripts requests early termination of every script
// this IAP has in flight; each still fires its exit callback exactly
// once (script.Runner's contract), which drives onScriptExit as usual.
func (a *IAP) cancelOutstandingScripts() {
	for pid := range a.scriptPIDs {
		if err := a.deps.Scripts.Cancel(pid); err != nil {
			slog.Warn("iap: cancel script failed", "iap", a.Name, "pid", pid, "error", err)
		}
	}
}
