package observability

import (
	"testing"
	"time"
)

func TestSLOSetTarget(t *testing.T) {
	tracker := NewSLOTracker()
	tracker.SetTarget(&SLOTarget{
		SLOID:       "slo-wilson-gate",
		Operation:   "wilson_gate",
		LatencyP99:  2 * time.Second,
		SuccessRate: 0.999,
		WindowHours: 24,
	})

	status, err := tracker.Status("wilson_gate")
	if err != nil {
		t.Fatal(err)
	}
	if !status.InCompliance {
		t.Fatal("expected compliance with no observations")
	}
}

func TestSLOInCompliance(t *testing.T) {
	tracker := NewSLOTracker()
	tracker.SetTarget(&SLOTarget{
		SLOID:       "slo-classifier",
		Operation:   "classifier",
		LatencyP99:  1000 * time.Millisecond,
		SuccessRate: 0.95,
		WindowHours: 1,
	})

	// 100 successful classifier calls under the latency target
	for i := 0; i < 100; i++ {
		tracker.Record(SLOObservation{Operation: "classifier", Latency: 100 * time.Millisecond, Success: true})
	}

	status, _ := tracker.Status("classifier")
	if !status.InCompliance {
		t.Fatal("expected in compliance")
	}
	if status.CurrentSuccess != 1.0 {
		t.Fatalf("expected 100%% success rate, got %.2f", status.CurrentSuccess)
	}
}

func TestSLOOutOfCompliance(t *testing.T) {
	tracker := NewSLOTracker()
	tracker.SetTarget(&SLOTarget{
		SLOID:       "slo-extraction",
		Operation:   "extraction",
		LatencyP99:  500 * time.Millisecond,
		SuccessRate: 0.95,
		WindowHours: 1,
	})

	// 90 successful extractions + 10 oracle failures = 90% (below the 95% target)
	for i := 0; i < 90; i++ {
		tracker.Record(SLOObservation{Operation: "extraction", Latency: 100 * time.Millisecond, Success: true})
	}
	for i := 0; i < 10; i++ {
		tracker.Record(SLOObservation{Operation: "extraction", Latency: 100 * time.Millisecond, Success: false})
	}

	status, _ := tracker.Status("extraction")
	if status.InCompliance {
		t.Fatal("expected out of compliance")
	}
}

func TestSLOBurnRate(t *testing.T) {
	tracker := NewSLOTracker()
	tracker.SetTarget(&SLOTarget{
		SLOID:       "slo-linker",
		Operation:   "linker",
		LatencyP99:  1000 * time.Millisecond,
		SuccessRate: 0.99, // 1% error budget
		WindowHours: 1,
	})

	// 5% error rate against a 1% budget → burn rate = 5x
	for i := 0; i < 95; i++ {
		tracker.Record(SLOObservation{Operation: "linker", Latency: 10 * time.Millisecond, Success: true})
	}
	for i := 0; i < 5; i++ {
		tracker.Record(SLOObservation{Operation: "linker", Latency: 10 * time.Millisecond, Success: false})
	}

	status, _ := tracker.Status("linker")
	if status.BurnRate < 4.0 {
		t.Fatalf("expected high burn rate, got %.2f", status.BurnRate)
	}
}

func TestSLONoTarget(t *testing.T) {
	tracker := NewSLOTracker()
	_, err := tracker.Status("nonexistent")
	if err == nil {
		t.Fatal("expected error for missing target")
	}
}
