package events

import "fmt"

// Subject naming conventions, grounded on the teacher's
// internal/signaling/events/subjects.go hierarchy.
//
//	icd.iap.<iap_id>.<suffix>       - per-IAP lifecycle events
//	icd.requests.<request_id>.<suffix> - per-request lifecycle events
//	icd.registry.<name>.deleted     - settings deletion notifications
//
// Wildcard subscriptions:
//
//	icd.iap.>                       - all IAP events
//	icd.iap.*.state_changed          - all IAP state_changed events
const (
	SubjectPrefix = "icd"

	SubjectIAPs          = SubjectPrefix + ".iap"
	SuffixStateChanged   = "state_changed"
	SuffixConnected      = "connected"
	SuffixDisconnected   = "disconnected"
	SuffixFailed         = "failed"
	SuffixLimitedChanged = "limited_changed"
	SuffixSaveCancelled  = "save_cancelled"

	SubjectRequests  = SubjectPrefix + ".requests"
	SuffixCreated    = "created"
	SuffixBusy       = "busy"
	SuffixRequestEnd = "ended"

	SubjectRegistry     = SubjectPrefix + ".registry"
	SuffixEntryDeleted  = "deleted"
	SubjectScanCache    = SubjectPrefix + ".scancache"
	SuffixEvicted       = "evicted"
)

// IAPSubject builds a subject for a specific IAP event.
func IAPSubject(iapID, suffix string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectIAPs, iapID, suffix)
}

// RequestSubject builds a subject for a specific request event.
func RequestSubject(requestID, suffix string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectRequests, requestID, suffix)
}

// RegistrySubject builds a subject for a settings-tree deletion.
func RegistrySubject(name, suffix string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectRegistry, name, suffix)
}
