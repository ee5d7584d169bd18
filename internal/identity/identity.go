// Package identity defines the NetworkIdentity value type shared by every
// layer of the connection daemon: module chain resolution, policy ranking,
// the IAP state machine, and the settings facade all key off it.
package identity

import "fmt"

// Attrs is the identity attribute bitmask. The low-order bits carry the
// "locality" field; AttrIAPName marks that ID refers to a persisted
// settings name rather than an ad-hoc local identifier.
type Attrs uint32

const (
	// AttrLocalMask covers the locality field (low byte).
	AttrLocalMask Attrs = 0x000000FF
	// AttrIAPName marks ID as a persisted settings name.
	AttrIAPName Attrs = 0x00000100
)

// Local reports whether the identity carries any locality bits.
func (a Attrs) Local() bool { return a&AttrLocalMask != 0 }

// IsIAPName reports whether ID names a persisted settings entry.
func (a Attrs) IsIAPName() bool { return a&AttrIAPName != 0 }

// Identity is the (type, attrs, id) triple spec.md calls NetworkIdentity.
// Modules may refine Type/Attrs/ID as bring-up progresses (OK_NEW_IAP).
type Identity struct {
	Type  string
	Attrs Attrs
	ID    string
}

// String renders the identity for logging.
func (n Identity) String() string {
	return fmt.Sprintf("%s/%s(attrs=%#x)", n.Type, n.ID, uint32(n.Attrs))
}

// Equal implements the spec's NULL-safe identity-equality rule: type match,
// AND id match, AND (locality bits match OR both sides agree on the
// IAPNAME flag — set on both, or unset on both; icd_iap_find compares the
// flag bit for equality, not for "both set").
func (n Identity) Equal(other Identity) bool {
	if n.Type != other.Type {
		return false
	}
	if n.ID != other.ID {
		return false
	}
	localityMatch := n.Attrs&AttrLocalMask == other.Attrs&AttrLocalMask
	iapNameMatch := n.Attrs.IsIAPName() == other.Attrs.IsIAPName()
	return localityMatch || iapNameMatch
}

// IsZero reports whether the identity is the unset value.
func (n Identity) IsZero() bool {
	return n.Type == "" && n.ID == "" && n.Attrs == 0
}
