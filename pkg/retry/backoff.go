// Package retry computes the exponential backoff delays used by the Agent
// Harness when retrying a failed oracle call.
package retry

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// Params identifies one retry attempt for jitter seeding.
type Params struct {
	StageName    string
	TipID        string
	AttemptIndex int
}

// Policy bounds the backoff curve. The Agent Harness contract fixes
// BaseMs=2000, MaxAttempts=3; MaxMs and MaxJitterMs are tuning knobs kept
// out of that contract.
type Policy struct {
	BaseMs      int64
	MaxMs       int64
	MaxJitterMs int64
	MaxAttempts int
}

// DefaultPolicy is the Agent Harness's retry policy: base 2s, 3 attempts.
var DefaultPolicy = Policy{
	BaseMs:      2000,
	MaxMs:       30000,
	MaxJitterMs: 500,
	MaxAttempts: 3,
}

// ComputeBackoff returns the delay before the given attempt, combining
// exponential growth with jitter deterministically seeded from the
// attempt's identity — so replaying the same failed attempt against the
// same tip always produces the same wait, which keeps harness retries
// reproducible in tests.
func ComputeBackoff(params Params, policy Policy) time.Duration {
	factor := int64(1)
	if params.AttemptIndex > 0 {
		if params.AttemptIndex > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << params.AttemptIndex
		}
	}

	baseDelay := policy.BaseMs * factor
	if baseDelay > policy.MaxMs {
		baseDelay = policy.MaxMs
	}

	jitter := ComputeDeterministicJitter(params, policy)
	return time.Duration(baseDelay+jitter) * time.Millisecond
}

// ComputeDeterministicJitter derives a jitter value in [0, MaxJitterMs) from
// a SHA-256 PRF seeded by the attempt's identity.
func ComputeDeterministicJitter(params Params, policy Policy) int64 {
	if policy.MaxJitterMs == 0 {
		return 0
	}
	seed := fmt.Sprintf("%s:%s:%d", params.StageName, params.TipID, params.AttemptIndex)
	hash := sha256.Sum256([]byte(seed))
	basis := binary.BigEndian.Uint64(hash[:8])
	return int64(basis % uint64(policy.MaxJitterMs)) //nolint:gosec // MaxJitterMs always positive
}
