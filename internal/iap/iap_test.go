package iap_test

import (
	"context"
	"testing"

	"github.com/sebas/icd/internal/events"
	"github.com/sebas/icd/internal/iap"
	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/module"
	"github.com/sebas/icd/internal/script"
)

// fakeModule is a single-network-type module whose layer responses are
// scripted per-call. By default every implemented layer answers
// immediately with StatusOK; a test can override a layer to instead park
// its callback (for later manual firing, simulating a race with
// Disconnect/Restart).
type fakeModule struct {
	module.Base
	name   string
	layers module.LayerSet

	pending map[module.Layer]module.Callback
	downs   []module.Layer
	ups     []module.Layer
}

func newFakeModule(name string, layers ...module.Layer) *fakeModule {
	return &fakeModule{name: name, layers: module.NewLayerSet(layers...), pending: make(map[module.Layer]module.Callback)}
}

func (m *fakeModule) Name() string             { return m.name }
func (m *fakeModule) Implements() module.LayerSet { return m.layers }

func (m *fakeModule) park(layer module.Layer, cb module.Callback) {
	m.pending[layer] = cb
}

// fire invokes a previously parked callback for layer, simulating the
// late arrival of an async response.
func (m *fakeModule) fire(layer module.Layer, status module.Status, newID identity.Identity, iface string, env module.EnvBag, errTag string) {
	cb := m.pending[layer]
	delete(m.pending, layer)
	cb(status, newID, iface, env, errTag)
}

func (m *fakeModule) LinkUp(_ context.Context, _ identity.Identity, _ module.Token, cb module.Callback) {
	m.ups = append(m.ups, module.LayerLink)
	cb(module.StatusOK, identity.Identity{}, "", nil, "")
}
func (m *fakeModule) LinkDown(_ context.Context, _ identity.Identity, _ string, _ module.Token, cb module.Callback) {
	m.downs = append(m.downs, module.LayerLink)
	cb(module.StatusOK, identity.Identity{}, "", nil, "")
}
func (m *fakeModule) LinkPostUp(_ context.Context, _ identity.Identity, _ string, _ module.Token, cb module.Callback) {
	m.ups = append(m.ups, module.LayerLinkPost)
	cb(module.StatusOK, identity.Identity{}, "", nil, "")
}
func (m *fakeModule) LinkPreDown(_ context.Context, _ identity.Identity, _ string, _ module.Token, cb module.Callback) {
	m.downs = append(m.downs, module.LayerLinkPost)
	cb(module.StatusOK, identity.Identity{}, "", nil, "")
}
func (m *fakeModule) IPUp(_ context.Context, _ identity.Identity, _ string, _ module.Token, cb module.Callback) {
	m.ups = append(m.ups, module.LayerIP)
	cb(module.StatusOK, identity.Identity{}, "ppp0", nil, "")
}
func (m *fakeModule) IPDown(_ context.Context, _ identity.Identity, _ string, _ module.Token, cb module.Callback) {
	m.downs = append(m.downs, module.LayerIP)
	cb(module.StatusOK, identity.Identity{}, "", nil, "")
}
func (m *fakeModule) ServiceUp(_ context.Context, _ identity.Identity, _ string, _ module.Token, cb module.Callback) {
	m.ups = append(m.ups, module.LayerService)
	cb(module.StatusOK, identity.Identity{}, "", nil, "")
}
func (m *fakeModule) ServiceDown(_ context.Context, _ identity.Identity, _ string, _ module.Token, cb module.Callback) {
	m.downs = append(m.downs, module.LayerService)
	cb(module.StatusOK, identity.Identity{}, "", nil, "")
}

// parkingLinkUp overrides LinkUp to park its callback instead of firing
// it, so a test can interleave a Disconnect before the response arrives.
type parkingLinkUp struct{ *fakeModule }

func (m parkingLinkUp) LinkUp(_ context.Context, _ identity.Identity, _ module.Token, cb module.Callback) {
	m.park(module.LayerLink, cb)
}

// fakeScripts is a deterministic script.Runner substitute: Run completes
// synchronously (calling cb before returning) unless told to park.
type fakeScripts struct {
	nextPID int
	exit    int
	parked  map[int]script.ExitCallback
	runs    []script.Phase
	cancels []int
	onRun   func(phase script.Phase, env module.EnvBag)
}

func newFakeScripts() *fakeScripts { return &fakeScripts{parked: make(map[int]script.ExitCallback)} }

func (s *fakeScripts) Run(_ context.Context, phase script.Phase, _ string, _ []string, env module.EnvBag, _ any, cb script.ExitCallback) (int, error) {
	s.nextPID++
	pid := s.nextPID
	s.runs = append(s.runs, phase)
	if s.onRun != nil {
		s.onRun(phase, env)
	}
	cb(pid, s.exit, nil)
	return pid, nil
}

func (s *fakeScripts) Cancel(pid int) error {
	s.cancels = append(s.cancels, pid)
	if cb, ok := s.parked[pid]; ok {
		delete(s.parked, pid)
		cb(pid, -1, nil)
	}
	return nil
}

func noScripts(script.Phase, *iap.IAP) (string, []string) { return "", nil }

func withScript(script.Phase, *iap.IAP) (string, []string) { return "/bin/sh", []string{"-c", "true"} }

func newTestIAP(chain []module.Module, scripts iap.ScriptLauncher) *iap.IAP {
	deps := iap.Deps{
		Scripts:    scripts,
		ScriptPath: noScripts,
		Bus:        events.NewBus(),
	}
	return iap.New("iap0", identity.Identity{Type: "WLAN_INFRA", ID: "home"}, "WLAN_INFRA", chain, deps)
}

func TestConnectSingleModuleReachesConnected(t *testing.T) {
	m := newFakeModule("wlan", module.LayerLink, module.LayerIP, module.LayerService)
	a := newTestIAP([]module.Module{m}, newFakeScripts())

	a.Connect()

	if a.State != iap.Connected {
		t.Fatalf("expected CONNECTED, got %s", a.State)
	}
	if a.InterfaceName != "ppp0" {
		t.Fatalf("expected interface ppp0, got %q", a.InterfaceName)
	}
	want := []module.Layer{module.LayerLink, module.LayerIP, module.LayerService}
	if len(m.ups) != len(want) {
		t.Fatalf("expected ups %v, got %v", want, m.ups)
	}
}

func TestConnectMultiModuleChainWalksEachModule(t *testing.T) {
	link := newFakeModule("wlan-link", module.LayerLink)
	rest := newFakeModule("wlan-rest", module.LayerIP, module.LayerService)
	a := newTestIAP([]module.Module{link, rest}, newFakeScripts())

	a.Connect()

	if a.State != iap.Connected {
		t.Fatalf("expected CONNECTED, got %s", a.State)
	}
	if len(link.ups) != 1 || link.ups[0] != module.LayerLink {
		t.Fatalf("expected link module to bring up LINK only, got %v", link.ups)
	}
	if len(rest.ups) != 2 {
		t.Fatalf("expected second module to bring up IP+SERVICE, got %v", rest.ups)
	}
}

func TestConnectRunsPreUpAndPostUpScripts(t *testing.T) {
	m := newFakeModule("wlan", module.LayerLink)
	scripts := newFakeScripts()
	deps := iap.Deps{Scripts: scripts, ScriptPath: withScript, Bus: events.NewBus()}
	a := iap.New("iap0", identity.Identity{Type: "WLAN_INFRA", ID: "home"}, "WLAN_INFRA", []module.Module{m}, deps)

	a.Connect()

	if a.State != iap.Connected {
		t.Fatalf("expected CONNECTED, got %s", a.State)
	}
	if len(scripts.runs) != 2 || scripts.runs[0] != script.PhasePreUp || scripts.runs[1] != script.PhasePostUp {
		t.Fatalf("expected pre_up then post_up, got %v", scripts.runs)
	}
}

func TestDisconnectFromConnectedRunsTeardownInReverse(t *testing.T) {
	m := newFakeModule("wlan", module.LayerLink, module.LayerIP, module.LayerService)
	scripts := newFakeScripts()
	deps := iap.Deps{Scripts: scripts, ScriptPath: withScript, Bus: events.NewBus()}
	a := iap.New("iap0", identity.Identity{Type: "WLAN_INFRA", ID: "home"}, "WLAN_INFRA", []module.Module{m}, deps)
	a.Connect()

	a.Disconnect("user_request")

	if a.State != iap.Disconnected {
		t.Fatalf("expected DISCONNECTED, got %s", a.State)
	}
	want := []module.Layer{module.LayerService, module.LayerIP, module.LayerLink}
	if len(m.downs) != len(want) {
		t.Fatalf("expected teardown order %v, got %v", want, m.downs)
	}
	for i, l := range want {
		if m.downs[i] != l {
			t.Fatalf("teardown step %d: expected %s, got %s", i, l, m.downs[i])
		}
	}
}

func TestDisconnectSetsRemoveProxiesWhenNoOtherIAPConnected(t *testing.T) {
	m := newFakeModule("wlan", module.LayerLink)
	scripts := newFakeScripts()
	var capturedEnv module.EnvBag
	scripts.onRun = func(phase script.Phase, env module.EnvBag) {
		if phase == script.PhasePreDown {
			capturedEnv = env
		}
	}
	deps := iap.Deps{
		Scripts:           scripts,
		ScriptPath:        withScript,
		Bus:               events.NewBus(),
		AnyOtherConnected: func(*iap.IAP) bool { return false },
	}
	a := iap.New("iap0", identity.Identity{Type: "WLAN_INFRA", ID: "home"}, "WLAN_INFRA", []module.Module{m}, deps)
	a.Connect()

	a.Disconnect("")

	if a.State != iap.Disconnected {
		t.Fatalf("expected DISCONNECTED, got %s", a.State)
	}
	found := false
	for _, v := range capturedEnv {
		if v.Name == "REMOVE_PROXIES" {
			found = true
			if v.Value != "1" {
				t.Fatalf("expected REMOVE_PROXIES=1 with no other IAP connected, got %q", v.Value)
			}
		}
	}
	if !found {
		t.Fatal("expected REMOVE_PROXIES to be present in pre_down script env")
	}
}

func TestDisconnectMidBringUpCollapsesStaleCallback(t *testing.T) {
	inner := newFakeModule("wlan", module.LayerLink, module.LayerIP)
	m := parkingLinkUp{inner}
	a := newTestIAP([]module.Module{m}, newFakeScripts())

	a.Connect()
	if a.State != iap.LinkUp {
		t.Fatalf("expected to be waiting in LINK_UP, got %s", a.State)
	}

	// Every collaborator in this test responds synchronously except the
	// parked LinkUp, so Disconnect runs the whole teardown walk (LINK_DOWN
	// included) to completion within this call.
	a.Disconnect("user_request")
	if a.State != iap.Disconnected {
		t.Fatalf("expected Disconnect to run teardown to completion, got %s", a.State)
	}
	if len(inner.downs) != 1 || inner.downs[0] != module.LayerLink {
		t.Fatalf("expected LINK_DOWN to have been invoked during preemption, got %v", inner.downs)
	}

	// The module's real response now arrives late; it must be recognized
	// as stale and not resurrect bring-up.
	inner.fire(module.LayerLink, module.StatusOK, identity.Identity{}, "", nil, "")

	if a.State != iap.Disconnected {
		t.Fatalf("expected DISCONNECTED after stale callback settles, got %s", a.State)
	}
	if len(inner.ups) != 0 {
		t.Fatalf("LinkUp should not have been counted as a real bring-up step, got %v", inner.ups)
	}
}

func TestRestartAtLayerResumesBringUp(t *testing.T) {
	m := newFakeModule("wlan", module.LayerLink, module.LayerIP, module.LayerService)
	scripts := newFakeScripts()
	deps := iap.Deps{Scripts: scripts, ScriptPath: noScripts, Bus: events.NewBus()}
	a := iap.New("iap0", identity.Identity{Type: "WLAN_INFRA", ID: "home"}, "WLAN_INFRA", []module.Module{m}, deps)
	a.Connect()
	if a.State != iap.Connected {
		t.Fatalf("precondition: expected CONNECTED, got %s", a.State)
	}

	if err := a.Restart(module.LayerIP); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	if a.State != iap.Connected {
		t.Fatalf("expected restart to tear down and resume back to CONNECTED, got %s", a.State)
	}
	// IP and SERVICE torn down and re-brought-up around the restart scripts.
	downWant := []module.Layer{module.LayerService, module.LayerIP}
	if len(m.downs) != len(downWant) {
		t.Fatalf("expected teardown through IP, got %v", m.downs)
	}
	upWant := []module.Layer{module.LayerLink, module.LayerIP, module.LayerService, module.LayerIP, module.LayerService}
	if len(m.ups) != len(upWant) {
		t.Fatalf("expected bring-up to resume at IP after restart scripts, got %v", m.ups)
	}
}

// restartOnceAtIP answers the first IPUp call with StatusRestart,
// simulating a well-behaved module driving its own restart from inside the
// up-callback (spec.md §4.7 RESTART(layer)), then answers normally once
// bring-up resumes at IP.
type restartOnceAtIP struct {
	*fakeModule
	calls int
}

func (m *restartOnceAtIP) IPUp(_ context.Context, _ identity.Identity, _ string, _ module.Token, cb module.Callback) {
	m.calls++
	m.ups = append(m.ups, module.LayerIP)
	if m.calls == 1 {
		cb(module.StatusRestart, identity.Identity{}, "", nil, "")
		return
	}
	cb(module.StatusOK, identity.Identity{}, "ppp0", nil, "")
}

func TestModuleRequestedRestartAtIPDoesNotPanic(t *testing.T) {
	inner := newFakeModule("wlan", module.LayerLink, module.LayerIP, module.LayerService)
	m := &restartOnceAtIP{fakeModule: inner}
	scripts := newFakeScripts()
	deps := iap.Deps{Scripts: scripts, ScriptPath: noScripts, Bus: events.NewBus()}
	a := iap.New("iap0", identity.Identity{Type: "WLAN_INFRA", ID: "home"}, "WLAN_INFRA", []module.Module{m}, deps)

	a.Connect()

	if a.State != iap.Connected {
		t.Fatalf("expected a module-requested restart at IP to settle back at CONNECTED, got %s", a.State)
	}
	if m.calls != 2 {
		t.Fatalf("expected IPUp to be retried once after the restart, got %d calls", m.calls)
	}
	if len(inner.downs) != 1 || inner.downs[0] != module.LayerIP {
		t.Fatalf("expected teardown limited to IP, got %v", inner.downs)
	}
}

func TestSavingWaitsForRename(t *testing.T) {
	m := newFakeModule("wlan", module.LayerLink)
	deps := iap.Deps{Scripts: newFakeScripts(), ScriptPath: noScripts, Bus: events.NewBus()}
	a := iap.New("iap-temp", identity.Identity{Type: "WLAN_INFRA", ID: "home"}, "WLAN_INFRA", []module.Module{m}, deps)
	a.WantSave = true

	a.Connect()

	if a.State != iap.Saving {
		t.Fatalf("expected SAVING, got %s", a.State)
	}
	if !a.SaveDlg {
		t.Fatal("expected SaveDlg to be set while awaiting rename")
	}

	a.Rename("iap-saved")

	if a.State != iap.Connected {
		t.Fatalf("expected Rename to commit to CONNECTED, got %s", a.State)
	}
	if a.Name != "iap-saved" {
		t.Fatalf("expected name to update to iap-saved, got %s", a.Name)
	}
	if a.SaveDlg {
		t.Fatal("expected SaveDlg cleared after rename")
	}
}

func TestDisconnectDuringSavingCancelsDialog(t *testing.T) {
	m := newFakeModule("wlan", module.LayerLink)
	var canceled bool
	deps := iap.Deps{
		Scripts:          newFakeScripts(),
		ScriptPath:       noScripts,
		Bus:              events.NewBus(),
		CancelSaveDialog: func(*iap.IAP) { canceled = true },
	}
	a := iap.New("iap-temp", identity.Identity{Type: "WLAN_INFRA", ID: "home"}, "WLAN_INFRA", []module.Module{m}, deps)
	a.WantSave = true
	a.Connect()

	a.Disconnect("user_request")

	if !canceled {
		t.Fatal("expected CancelSaveDialog to be invoked")
	}
	if a.State != iap.Disconnected {
		t.Fatalf("expected DISCONNECTED, got %s", a.State)
	}
}

func TestScriptNonZeroExitIsSoftFailure(t *testing.T) {
	m := newFakeModule("wlan", module.LayerLink)
	scripts := newFakeScripts()
	scripts.exit = 1
	deps := iap.Deps{Scripts: scripts, ScriptPath: withScript, Bus: events.NewBus()}
	a := iap.New("iap0", identity.Identity{Type: "WLAN_INFRA", ID: "home"}, "WLAN_INFRA", []module.Module{m}, deps)

	a.Connect()

	if a.State != iap.Connected {
		t.Fatalf("expected bring-up to continue despite non-zero script exit, got %s", a.State)
	}
}

func TestCreatedCallbackFiresOnceOnConnect(t *testing.T) {
	m := newFakeModule("wlan", module.LayerLink)
	var created int
	deps := iap.Deps{Scripts: newFakeScripts(), ScriptPath: noScripts, Bus: events.NewBus()}
	a := iap.New("iap0", identity.Identity{Type: "WLAN_INFRA", ID: "home"}, "WLAN_INFRA", []module.Module{m}, deps)
	a.OnCreated = func(*iap.IAP) { created++ }

	a.Connect()

	if created != 1 {
		t.Fatalf("expected OnCreated exactly once, got %d", created)
	}
}

func TestEndedCallbackFiresWithErrTagOnFailure(t *testing.T) {
	m := newFakeModule("wlan", module.LayerLink)
	var endedTag string
	var ended int
	deps := iap.Deps{Scripts: newFakeScripts(), ScriptPath: noScripts, Bus: events.NewBus()}
	a := iap.New("iap0", identity.Identity{Type: "WLAN_INFRA", ID: "home"}, "WLAN_INFRA", []module.Module{m}, deps)
	a.OnEnded = func(_ *iap.IAP, errTag string) { ended++; endedTag = errTag }
	a.Connect()

	a.Disconnect("link_lost")

	if ended != 1 {
		t.Fatalf("expected OnEnded exactly once, got %d", ended)
	}
	if endedTag != "link_lost" {
		t.Fatalf("expected errTag link_lost, got %q", endedTag)
	}
}
