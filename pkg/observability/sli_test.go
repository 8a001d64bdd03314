package observability

import (
	"testing"
)

func TestSLIRegister(t *testing.T) {
	r := NewSLIRegistry()
	err := r.Register(&SLI{
		SLIID:             "sli-wilson-gate",
		Name:              "Wilson Gate latency",
		Operation:         "wilson_gate",
		EssentialVariable: "hard_stop_latency",
		Source:            SLISourceMetric,
		Unit:              "ms",
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1, got %d", r.Count())
	}
}

func TestSLIRegisterMissingFields(t *testing.T) {
	r := NewSLIRegistry()
	err := r.Register(&SLI{SLIID: "sli-1"})
	if err == nil {
		t.Fatal("expected error for missing fields")
	}
}

func TestSLIByOperation(t *testing.T) {
	r := NewSLIRegistry()
	r.Register(&SLI{SLIID: "s1", Name: "classifier success rate", Operation: "classifier", Source: SLISourceMetric})
	r.Register(&SLI{SLIID: "s2", Name: "classifier latency", Operation: "classifier", Source: SLISourceTrace})
	r.Register(&SLI{SLIID: "s3", Name: "linker success rate", Operation: "linker", Source: SLISourceLog})

	classifierSLIs := r.ByOperation("classifier")
	if len(classifierSLIs) != 2 {
		t.Fatalf("expected 2 classifier SLIs, got %d", len(classifierSLIs))
	}
}

func TestSLILinkToSLO(t *testing.T) {
	r := NewSLIRegistry()
	r.Register(&SLI{SLIID: "sli-wilson-gate", Name: "Wilson Gate latency", Operation: "wilson_gate"})

	err := r.LinkToSLO("sli-wilson-gate", "slo-wilson-gate")
	if err != nil {
		t.Fatal(err)
	}

	sli, _ := r.Get("sli-wilson-gate")
	if sli.LinkedSLOID != "slo-wilson-gate" {
		t.Fatal("expected linked SLO")
	}
}

func TestSLIGetNotFound(t *testing.T) {
	r := NewSLIRegistry()
	_, err := r.Get("nonexistent")
	if err == nil {
		t.Fatal("expected error")
	}
}
