// Package remote implements an out-of-process Module (spec.md §6
// "Network-module ABI") reached over gRPC, pooled and health-checked in
// the same shape as the teacher's internal/signaling/mediaclient.Pool for
// its RTP Manager fleet (see DESIGN.md). The wire envelope uses real
// generated protobuf well-known types (wrapperspb.BytesValue) carrying a
// JSON-encoded request/response instead of a hand-authored .pb.go file:
// the teacher's own generated rtpmanager/v1 package was not part of the
// retrieval pack, so there is no generated code to adapt, and hand-faking
// one would fabricate a dependency rather than reuse one.
package remote

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/module"
)

// op identifies which layer method the remote host should invoke.
type op string

const (
	opLinkUp      op = "link_up"
	opLinkDown    op = "link_down"
	opLinkPostUp  op = "link_post_up"
	opLinkPreDown op = "link_pre_down"
	opIPUp        op = "ip_up"
	opIPDown      op = "ip_down"
	opServiceUp   op = "service_up"
	opServiceDown op = "service_down"
)

// wireRequest is the JSON envelope carried inside a BytesValue request.
type wireRequest struct {
	Op        op                `json:"op"`
	Type      string            `json:"type"`
	Attrs     uint32            `json:"attrs"`
	ID        string            `json:"id"`
	Interface string            `json:"interface,omitempty"`
	Token     uint64            `json:"token"`
}

// wireResponse is the JSON envelope carried inside a BytesValue response.
type wireResponse struct {
	Status    int               `json:"status"`
	Type      string            `json:"type,omitempty"`
	Attrs     uint32            `json:"attrs,omitempty"`
	ID        string            `json:"id,omitempty"`
	Interface string            `json:"interface,omitempty"`
	Env       []module.EnvVar   `json:"env,omitempty"`
	ErrTag    string            `json:"err_tag,omitempty"`
}

func encodeRequest(o op, id identity.Identity, iface string, token module.Token) (*wrapperspb.BytesValue, error) {
	req := wireRequest{
		Op:        o,
		Type:      id.Type,
		Attrs:     uint32(id.Attrs),
		ID:        id.ID,
		Interface: iface,
		Token:     uint64(token),
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("remote: encode request: %w", err)
	}
	return wrapperspb.Bytes(b), nil
}

func decodeRequest(in *wrapperspb.BytesValue) (wireRequest, error) {
	var req wireRequest
	if in == nil {
		return req, fmt.Errorf("remote: nil request")
	}
	if err := json.Unmarshal(in.GetValue(), &req); err != nil {
		return req, fmt.Errorf("remote: decode request: %w", err)
	}
	return req, nil
}

func encodeResponse(status module.Status, newID identity.Identity, newIface string, env module.EnvBag, errTag string) (*wrapperspb.BytesValue, error) {
	resp := wireResponse{
		Status:    int(status),
		Type:      newID.Type,
		Attrs:     uint32(newID.Attrs),
		ID:        newID.ID,
		Interface: newIface,
		Env:       []module.EnvVar(env),
		ErrTag:    errTag,
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("remote: encode response: %w", err)
	}
	return wrapperspb.Bytes(b), nil
}

func decodeResponse(out *wrapperspb.BytesValue) (module.Status, identity.Identity, string, module.EnvBag, string, error) {
	var resp wireResponse
	if out == nil {
		return 0, identity.Identity{}, "", nil, "", fmt.Errorf("remote: nil response")
	}
	if err := json.Unmarshal(out.GetValue(), &resp); err != nil {
		return 0, identity.Identity{}, "", nil, "", fmt.Errorf("remote: decode response: %w", err)
	}
	newID := identity.Identity{Type: resp.Type, Attrs: identity.Attrs(resp.Attrs), ID: resp.ID}
	return module.Status(resp.Status), newID, resp.Interface, module.EnvBag(resp.Env), resp.ErrTag, nil
}
