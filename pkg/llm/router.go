package llm

import (
	"context"
	"fmt"
)

// RoleBand selects which oracle tier handles a call. The Agent Harness
// contract fixes this per stage rather than inferring it: "high" is
// mandatory for Wilson-Gate and Classifier stages, "fast" is used for
// Intake normalization.
type RoleBand string

const (
	RoleFast RoleBand = "fast"
	RoleHigh RoleBand = "high"
)

// Router dispatches a chat call to the fast or high-capability client
// based on an explicit role band.
type Router struct {
	fastClient Client
	highClient Client
}

// NewRouter wires the two oracle tiers.
func NewRouter(fast, high Client) *Router {
	return &Router{fastClient: fast, highClient: high}
}

// Chat dispatches to the client matching role.
func (r *Router) Chat(ctx context.Context, role RoleBand, msgs []Message, tools []ToolDefinition, options *SamplingOptions) (*Response, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("router: messages must not be empty")
	}
	switch role {
	case RoleHigh:
		if r.highClient == nil {
			return nil, fmt.Errorf("router: no high-capability client configured")
		}
		return r.highClient.Chat(ctx, msgs, tools, options)
	case RoleFast:
		if r.fastClient == nil {
			return nil, fmt.Errorf("router: no fast client configured")
		}
		return r.fastClient.Chat(ctx, msgs, tools, options)
	default:
		return nil, fmt.Errorf("router: unknown role band %q", role)
	}
}

// ModelID reports the model identifier backing role's client, if that
// client implements ModelIdentifier. Returns "" for an unconfigured role
// or a client (such as a test stub) that doesn't report one.
func (r *Router) ModelID(role RoleBand) string {
	var c Client
	switch role {
	case RoleHigh:
		c = r.highClient
	case RoleFast:
		c = r.fastClient
	}
	if namer, ok := c.(ModelIdentifier); ok {
		return namer.ModelID()
	}
	return ""
}
