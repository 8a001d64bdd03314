package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrStoreNotConfigured = errors.New("audit: store not configured (fail-closed)")
	ErrInvalidTimeRange   = errors.New("audit: since must be before until")
)

// ExportRequest defines the bounds of an evidence-pack export.
type ExportRequest struct {
	Supervisor string
	TipID      string
	Since      time.Time
	Until      time.Time
}

// Exporter builds zip evidence packs from the audit Store.
type Exporter struct {
	store *Store
}

// NewExporter wraps an audit Store for evidence-pack generation.
func NewExporter(s *Store) *Exporter {
	return &Exporter{store: s}
}

// GeneratePack produces a zip containing the matching audit entries, a
// manifest recording the chain head at export time, and a checksum of the
// zip contents. Used by GET /api/audit/export.
func (e *Exporter) GeneratePack(ctx context.Context, req ExportRequest) ([]byte, string, error) {
	if e.store == nil {
		return nil, "", ErrStoreNotConfigured
	}
	if !req.Since.IsZero() && !req.Until.IsZero() && req.Since.After(req.Until) {
		return nil, "", ErrInvalidTimeRange
	}

	filter := Filter{TipID: req.TipID}
	if !req.Since.IsZero() {
		filter.Since = &req.Since
	}
	if !req.Until.IsZero() {
		filter.Until = &req.Until
	}
	records := e.store.Query(filter)

	entriesJSON, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: marshal entries: %w", err)
	}

	manifest := map[string]any{
		"supervisor":   req.Supervisor,
		"tip_id":       req.TipID,
		"generated_at": time.Now().UTC(),
		"entry_count":  len(records),
		"chain_head":   e.store.ChainHead(),
		"period": map[string]any{
			"since": req.Since,
			"until": req.Until,
		},
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	f, err := w.Create("entries.json")
	if err != nil {
		return nil, "", err
	}
	if _, err := f.Write(entriesJSON); err != nil {
		return nil, "", err
	}

	f, err = w.Create("manifest.json")
	if err != nil {
		return nil, "", err
	}
	if _, err := f.Write(manifestJSON); err != nil {
		return nil, "", err
	}

	f, err = w.Create("README.txt")
	if err != nil {
		return nil, "", err
	}
	if _, err := fmt.Fprintf(f, "Audit evidence pack\nGenerated at %s\n", time.Now().UTC()); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	hash := sha256.Sum256(zipBytes)
	return zipBytes, hex.EncodeToString(hash[:]), nil
}
