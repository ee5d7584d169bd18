package module

import (
	"context"

	"github.com/sebas/icd/internal/identity"
)

// Base provides no-op implementations of every layer function so a
// concrete module only needs to override the ones it actually implements.
// The dispatcher consults Implements() before calling into a layer, so the
// Base methods of undeclared layers are never reached. A layer that is
// declared in Implements() but only partly overridden does reach the Base
// no-op, which never invokes its callback.
type Base struct{}

func (Base) LinkUp(context.Context, identity.Identity, Token, Callback)                     {}
func (Base) LinkDown(context.Context, identity.Identity, string, Token, Callback)            {}
func (Base) LinkPostUp(context.Context, identity.Identity, string, Token, Callback)          {}
func (Base) LinkPreDown(context.Context, identity.Identity, string, Token, Callback)         {}
func (Base) IPUp(context.Context, identity.Identity, string, Token, Callback)                {}
func (Base) IPDown(context.Context, identity.Identity, string, Token, Callback)              {}
func (Base) ServiceUp(context.Context, identity.Identity, string, Token, Callback)            {}
func (Base) ServiceDown(context.Context, identity.Identity, string, Token, Callback)          {}
func (Base) NextLayer() (string, bool)                                                        { return "", false }
