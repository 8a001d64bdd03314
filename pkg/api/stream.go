package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cybertip/triage/pkg/orchestrator"
)

const sseHeartbeatInterval = 25 * time.Second

// handleStream implements GET /api/tips/{id}/stream: SSE stage events per
// spec.md §6/§4.1. The stream opens with a synthetic "connected" event,
// then forwards every stage transition for tipID until the pipeline emits
// step ∈ {complete, blocked} or the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	tipID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternal(w, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, map[string]string{"type": "connected", "tip_id": tipID})
	flusher.Flush()

	ch := make(chan orchestrator.Event, 32)
	s.Events.Subscribe(tipID, ch)
	defer s.Events.Unsubscribe(tipID, ch)

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
			if ev.Step == orchestrator.StepComplete {
				return
			}
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
}
