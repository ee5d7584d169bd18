package remote

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/module"
)

// Host adapts a local module.Module into a ModuleServer, letting an
// out-of-process module host reuse the same Module implementations this
// daemon would otherwise load in-process. It exists primarily so the
// client half of this package can be exercised end-to-end in tests
// without a real external process.
type Host struct {
	m module.Module
}

// NewHost wraps m for serving over gRPC.
func NewHost(m module.Module) *Host {
	return &Host{m: m}
}

// InvokeLayer implements ModuleServer by dispatching the decoded request to
// the matching layer method and blocking until its callback fires.
func (h *Host) InvokeLayer(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}

	id := identity.Identity{Type: req.Type, Attrs: identity.Attrs(req.Attrs), ID: req.ID}
	token := module.Token(req.Token)

	ch := make(chan struct{})
	var (
		status   module.Status
		newID    identity.Identity
		newIface string
		env      module.EnvBag
		errTag   string
	)
	cb := module.Callback(func(s module.Status, ni identity.Identity, nif string, e module.EnvBag, et string) {
		status, newID, newIface, env, errTag = s, ni, nif, e, et
		close(ch)
	})

	switch req.Op {
	case opLinkUp:
		h.m.LinkUp(ctx, id, token, cb)
	case opLinkDown:
		h.m.LinkDown(ctx, id, req.Interface, token, cb)
	case opLinkPostUp:
		h.m.LinkPostUp(ctx, id, req.Interface, token, cb)
	case opLinkPreDown:
		h.m.LinkPreDown(ctx, id, req.Interface, token, cb)
	case opIPUp:
		h.m.IPUp(ctx, id, req.Interface, token, cb)
	case opIPDown:
		h.m.IPDown(ctx, id, req.Interface, token, cb)
	case opServiceUp:
		h.m.ServiceUp(ctx, id, req.Interface, token, cb)
	case opServiceDown:
		h.m.ServiceDown(ctx, id, req.Interface, token, cb)
	default:
		return nil, fmt.Errorf("module/remote: unknown op %q", req.Op)
	}

	select {
	case <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return encodeResponse(status, newID, newIface, env, errTag)
}
