package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/repository"
)

// ClusterScanResult is the response shape for POST /api/jobs/cluster-scan.
type ClusterScanResult struct {
	ScanID      string   `json:"scan_id"`
	Clusters    int      `json:"clusters"`
	Escalations int      `json:"escalations"`
	DurationMS  int64    `json:"duration_ms"`
	Errors      []string `json:"errors,omitempty"`
}

// clusterableTip is the slice of a tip's identifying fields the scan keys
// on. Extracting this up front keeps the matching loop below free of
// nil-pointer checks into ExtractedEntities/HashMatches.
type clusterableTip struct {
	tipID     string
	subjects  []string
	hashes    []string
	usernames []string
	ips       []string
}

func identifiersOf(t model.Tip) clusterableTip {
	c := clusterableTip{tipID: t.TipID}
	if t.Extracted != nil {
		c.usernames = t.Extracted.Usernames
		c.ips = t.Extracted.IPAddresses
	}
	for _, f := range t.Files {
		if f.Hashes.SHA256 != "" {
			c.hashes = append(c.hashes, f.Hashes.SHA256)
		}
		if f.Hashes.PhotoDNA != "" {
			c.hashes = append(c.hashes, f.Hashes.PhotoDNA)
		}
	}
	if t.NCMECTipNumber != "" {
		c.subjects = append(c.subjects, t.NCMECTipNumber)
	}
	return c
}

// ClusterScanner periodically (or on demand, via POST /api/jobs/cluster-scan)
// clusters tips received within a bounded time window by shared identifiers
// (subject, hash, username, IP), per §4.5's background-scan requirement.
type ClusterScanner struct {
	repo   repository.Repository
	window time.Duration
}

// NewClusterScanner builds a scanner that only considers tips received
// within window of the scan's start time.
func NewClusterScanner(repo repository.Repository, window time.Duration) *ClusterScanner {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return &ClusterScanner{repo: repo, window: window}
}

// Scan lists recently received tips, groups them by any shared identifier,
// and appends a ClusterFlag to every member of a group with 2+ tips. A
// cluster containing an active deconfliction match escalates — callers
// are expected to re-run Priority for escalated tips.
func (s *ClusterScanner) Scan(ctx context.Context) (ClusterScanResult, error) {
	start := time.Now()
	result := ClusterScanResult{ScanID: uuid.NewString()}

	listing, err := s.repo.List(ctx, repository.ListFilter{Limit: 5000})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list tips: %v", err))
		result.DurationMS = time.Since(start).Milliseconds()
		return result, err
	}

	cutoff := start.Add(-s.window)
	groups := map[string][]string{} // shared identifier -> tip IDs
	identifiersByTip := map[string]clusterableTip{}

	for _, t := range listing.Tips {
		if t.ReceivedAt.Before(cutoff) {
			continue
		}
		ids := identifiersOf(t)
		identifiersByTip[t.TipID] = ids
		for _, v := range append(append(append([]string{}, ids.subjects...), ids.hashes...), append(ids.usernames, ids.ips...)...) {
			if v == "" {
				continue
			}
			groups[v] = append(groups[v], t.TipID)
		}
	}

	clusterIndex := map[string]*model.ClusterFlag{} // tipID -> flag being built
	clusterCount := 0
	for sharedValue, tipIDs := range groups {
		if len(tipIDs) < 2 {
			continue
		}
		clusterCount++
		clusterID := fmt.Sprintf("cluster-%d", clusterCount)
		sharedOn := sharedKindOf(sharedValue, identifiersByTip, tipIDs[0])
		for _, id := range tipIDs {
			flag, ok := clusterIndex[id]
			if !ok {
				flag = &model.ClusterFlag{ClusterID: clusterID, TipIDs: tipIDs}
				clusterIndex[id] = flag
			}
			flag.SharedOn = appendUnique(flag.SharedOn, sharedOn)
		}
	}

	escalations := 0
	for tipID, flag := range clusterIndex {
		tip, err := s.repo.Get(ctx, tipID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("get %s: %v", tipID, err))
			continue
		}
		if tip.Links == nil {
			tip.Links = &model.Links{}
		}
		tip.Links.ClusterFlags = append(tip.Links.ClusterFlags, *flag)
		for _, m := range tip.Links.DeconflictionMatches {
			if m.ActiveInvestigation {
				escalations++
				break
			}
		}
		if err := s.repo.Upsert(ctx, tip); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("upsert %s: %v", tipID, err))
		}
	}

	result.Clusters = clusterCount
	result.Escalations = escalations
	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

func sharedKindOf(value string, byTip map[string]clusterableTip, sampleTipID string) string {
	c := byTip[sampleTipID]
	for _, v := range c.subjects {
		if v == value {
			return "subject"
		}
	}
	for _, v := range c.hashes {
		if v == value {
			return "hash"
		}
	}
	for _, v := range c.usernames {
		if v == value {
			return "username"
		}
	}
	for _, v := range c.ips {
		if v == value {
			return "ip"
		}
	}
	return "unknown"
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
