package iap

import "time"

// enterSaving pauses bring-up in SAVING, giving the UI a chance to rename
// a temporary IAP before CONNECTED is published. If no save timeout is
// configured, a save dialog is expected never to time out on its own and
// only an explicit Rename commits the transition.
func (a *IAP) enterSaving() {
	a.State = Saving
	a.SaveDlg = true
	a.publishStateChanged()

	if a.deps.SaveTimeout <= 0 {
		return
	}
	a.saveTimer = time.AfterFunc(a.deps.SaveTimeout, func() {
		a.deps.Post(func() {
			if a.State != Saving {
				return
			}
			a.SaveDlg = false
			a.hasConnected()
		})
	})
}

// Rename commits a pending SAVING transition under the given (possibly
// new) settings name. The settings-tree move itself is the Settings
// Facade's job (C3); this only updates the IAP's local correlate and
// advances the state machine.
func (a *IAP) Rename(newName string) {
	if a.State != Saving {
		return
	}
	if newName != "" {
		a.Name = newName
	}
	a.SaveDlg = false
	a.hasConnected()
}

// cancelSaveDialog tells the UI Companion an outstanding save dialog is
// moot because tear-down is starting (spec.md §4.9's save-cancel race).
func (a *IAP) cancelSaveDialog() {
	if !a.SaveDlg {
		return
	}
	a.SaveDlg = false
	if a.deps.CancelSaveDialog != nil {
		a.deps.CancelSaveDialog(a)
	}
}
