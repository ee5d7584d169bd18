package ui_test

import (
	"testing"

	"github.com/sebas/icd/internal/events"
	"github.com/sebas/icd/internal/iap"
	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/module"
	"github.com/sebas/icd/internal/module/modtest"
	"github.com/sebas/icd/internal/script"
	"github.com/sebas/icd/internal/ui"
)

type fakeScheduler struct {
	headOrigin   string
	headReqID    string
	hasHead      bool
	canceled     []string
	cancelErr    error
	iaps         map[string]*iap.IAP
}

func (f *fakeScheduler) FindHeadByOrigin(origin string) (string, bool) {
	if origin == f.headOrigin && f.hasHead {
		return f.headReqID, true
	}
	return "", false
}

func (f *fakeScheduler) Cancel(reqID string) error {
	f.canceled = append(f.canceled, reqID)
	return f.cancelErr
}

func (f *fakeScheduler) IAPByName(name string) (*iap.IAP, bool) {
	a, ok := f.iaps[name]
	return a, ok
}

func newSavingIAP(t *testing.T, name string) *iap.IAP {
	t.Helper()
	m := modtest.New("fake", module.NewLayerSet(module.LayerLink))
	a := iap.New(name, identity.Identity{Type: "WLAN_INFRA", ID: name}, "WLAN_INFRA", []module.Module{m}, iap.Deps{
		ScriptPath: func(script.Phase, *iap.IAP) (string, []string) { return "", nil },
	})
	a.WantSave = true
	a.Connect()
	if a.State != iap.Saving {
		t.Fatalf("expected SAVING, got %s", a.State)
	}
	return a
}

func TestDisconnectPressedCancelsHeadCONNUIRequest(t *testing.T) {
	sched := &fakeScheduler{headOrigin: ui.OriginUI, headReqID: "req-1", hasHead: true}
	c := ui.New(sched, nil)

	c.Disconnect(true)

	if len(sched.canceled) != 1 || sched.canceled[0] != "req-1" {
		t.Fatalf("expected req-1 canceled, got %v", sched.canceled)
	}
}

func TestDisconnectNotPressedIsNoOp(t *testing.T) {
	sched := &fakeScheduler{headOrigin: ui.OriginUI, headReqID: "req-1", hasHead: true}
	c := ui.New(sched, nil)

	c.Disconnect(false)

	if len(sched.canceled) != 0 {
		t.Fatalf("expected no cancellation, got %v", sched.canceled)
	}
}

func TestDisconnectPressedWithNoPendingRequestIsNoOp(t *testing.T) {
	sched := &fakeScheduler{hasHead: false}
	c := ui.New(sched, nil)

	c.Disconnect(true)

	if len(sched.canceled) != 0 {
		t.Fatalf("expected no cancellation when nothing is pending, got %v", sched.canceled)
	}
}

func TestSaveCommitsRenameOnIAPInSaving(t *testing.T) {
	a := newSavingIAP(t, "temp123")
	sched := &fakeScheduler{iaps: map[string]*iap.IAP{"temp123": a}}
	c := ui.New(sched, nil)

	c.Save("temp123", "MyHome")

	if a.State != iap.Connected {
		t.Fatalf("expected CONNECTED after save, got %s", a.State)
	}
	if a.Name != "MyHome" {
		t.Fatalf("expected renamed to MyHome, got %s", a.Name)
	}
}

func TestSaveForUnknownIAPIsNoOp(t *testing.T) {
	sched := &fakeScheduler{iaps: map[string]*iap.IAP{}}
	c := ui.New(sched, nil)

	c.Save("nonexistent", "whatever")
}

func TestCancelSaveDialogPublishesEvent(t *testing.T) {
	bus := events.NewBus()
	ch, unsub := bus.Subscribe("icd.iap.*.save_cancelled")
	defer unsub()

	c := ui.New(&fakeScheduler{}, bus)
	a := newSavingIAP(t, "temp123")

	c.CancelSaveDialog(a)

	select {
	case evt := <-ch:
		if evt.Subject != "icd.iap.temp123.save_cancelled" {
			t.Fatalf("unexpected subject %s", evt.Subject)
		}
	default:
		t.Fatal("expected a save_cancelled event to be published")
	}
}
