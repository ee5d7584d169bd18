package remote

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/module"
	"github.com/sebas/icd/internal/module/modtest"
)

// dialBufconn stands up an in-process gRPC server hosting srv and returns a
// client connection to it, used to exercise the wire round-trip without a
// real external module host process.
func dialBufconn(t *testing.T, srv ModuleServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)

	s := grpc.NewServer()
	RegisterModuleServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestModuleLinkUpRoundTrip(t *testing.T) {
	stub := modtest.New("wlan-remote", module.NewLayerSet(module.LayerLink))
	stub.Scripts[module.LayerLink] = func(id identity.Identity) (module.Status, identity.Identity, string, module.EnvBag, string) {
		return module.StatusOK, identity.Identity{}, "wlan0", module.EnvBag{{Name: "IF", Value: "wlan0"}}, ""
	}

	conn := dialBufconn(t, NewHost(stub))

	pool := &Pool{
		byType:    map[string][]*poolMember{"WLAN_INFRA": {{address: "bufnet", client: NewModuleServiceClient(conn)}}},
		nextIndex: map[string]*atomic.Uint64{"WLAN_INFRA": new(atomic.Uint64)},
		stopCh:    make(chan struct{}),
	}
	pool.byType["WLAN_INFRA"][0].healthy.Store(true)

	m := NewModule("wlan-remote", "WLAN_INFRA", module.NewLayerSet(module.LayerLink), pool)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	var gotIface string
	var gotStatus module.Status
	m.LinkUp(ctx, identity.Identity{Type: "WLAN_INFRA", ID: "home"}, 1, func(status module.Status, _ identity.Identity, iface string, _ module.EnvBag, _ string) {
		gotStatus, gotIface = status, iface
		close(done)
	})

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("timed out waiting for callback")
	}

	if gotStatus != module.StatusOK {
		t.Fatalf("expected StatusOK, got %v", gotStatus)
	}
	if gotIface != "wlan0" {
		t.Fatalf("expected iface wlan0, got %q", gotIface)
	}
}

func TestModuleNoHealthyHost(t *testing.T) {
	pool := &Pool{
		byType:    map[string][]*poolMember{"GPRS": {{address: "down:1"}}},
		nextIndex: map[string]*atomic.Uint64{"GPRS": new(atomic.Uint64)},
		stopCh:    make(chan struct{}),
	}

	m := NewModule("gprs-remote", "GPRS", module.NewLayerSet(module.LayerLink), pool)

	var gotErrTag string
	done := make(chan struct{})
	m.LinkUp(context.Background(), identity.Identity{Type: "GPRS", ID: "x"}, 1, func(status module.Status, _ identity.Identity, _ string, _ module.EnvBag, errTag string) {
		gotErrTag = errTag
		close(done)
	})
	<-done

	if gotErrTag == "" {
		t.Fatal("expected non-empty errTag when no healthy host is available")
	}
}
