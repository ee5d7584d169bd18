package module_test

import (
	"testing"

	"github.com/sebas/icd/internal/module"
	"github.com/sebas/icd/internal/module/modtest"
)

func TestChainForSingleModule(t *testing.T) {
	r := module.NewRegistry()
	link := modtest.New("wlan-link", module.NewLayerSet(module.LayerLink, module.LayerIP))
	if err := r.Register("WLAN_INFRA", link); err != nil {
		t.Fatal(err)
	}

	chain, err := r.ChainFor("WLAN_INFRA")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 1 || chain[0].Name() != "wlan-link" {
		t.Fatalf("unexpected chain: %+v", chain)
	}
}

func TestChainForFollowsNextLayer(t *testing.T) {
	r := module.NewRegistry()
	link := modtest.New("gprs-link", module.NewLayerSet(module.LayerLink)).Chain("PPP")
	ppp := modtest.New("ppp-ip", module.NewLayerSet(module.LayerIP))

	if err := r.Register("GPRS", link); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("PPP", ppp); err != nil {
		t.Fatal(err)
	}

	chain, err := r.ChainFor("GPRS")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 2 || chain[0].Name() != "gprs-link" || chain[1].Name() != "ppp-ip" {
		t.Fatalf("unexpected chain: %+v", chain)
	}
}

func TestChainForUnregisteredType(t *testing.T) {
	r := module.NewRegistry()
	if _, err := r.ChainFor("UNKNOWN"); err == nil {
		t.Fatal("expected error for unregistered network type")
	}
}

func TestChainForCycleDetected(t *testing.T) {
	r := module.NewRegistry()
	a := modtest.New("a", module.NewLayerSet(module.LayerLink)).Chain("B")
	b := modtest.New("b", module.NewLayerSet(module.LayerLink)).Chain("A")

	_ = r.Register("A", a)
	_ = r.Register("B", b)

	if _, err := r.ChainFor("A"); err == nil {
		t.Fatal("expected cycle detection error")
	}
}

func TestForEachVisitsAllModules(t *testing.T) {
	r := module.NewRegistry()
	_ = r.Register("A", modtest.New("a", 0))
	_ = r.Register("B", modtest.New("b", 0))

	seen := map[string]bool{}
	r.ForEach(func(networkType string, m module.Module) {
		seen[networkType] = true
	})
	if len(seen) != 2 {
		t.Fatalf("expected 2 visited types, got %d", len(seen))
	}
}
