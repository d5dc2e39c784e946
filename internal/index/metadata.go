// Package index keeps workspace bookkeeping next to the store: the collect
// lock and metadata about the last collection.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// MetadataVersion is the current version of the metadata format.
	MetadataVersion = 1

	metadataFile = "collect-meta.json"

	// staleAfter is how old a collection may get before it is reported stale.
	staleAfter = 24 * time.Hour
)

// CollectMeta describes the last collect run.
type CollectMeta struct {
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	Duration        string    `json:"duration"`
	Units           int       `json:"units"`
	FailedUnits     []string  `json:"failedUnits,omitempty"`
	Symbols         int       `json:"symbols"`
	Locations       int       `json:"locations"`
	CompileCommands string    `json:"compileCommands,omitempty"`
	Tool            string    `json:"tool"`
	ToolVersion     string    `json:"toolVersion"`
	Args            []string  `json:"args,omitempty"`
}

// FreshnessResult describes collection freshness.
type FreshnessResult struct {
	Fresh  bool
	Reason string
	Age    time.Duration
}

// LoadMeta loads metadata from dataDir. It returns nil without error when no
// metadata exists or it was written by an incompatible version.
func LoadMeta(dataDir string) (*CollectMeta, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading collect metadata: %w", err)
	}

	var meta CollectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing collect metadata: %w", err)
	}
	if meta.Version != MetadataVersion {
		return nil, nil
	}
	return &meta, nil
}

// Save writes the metadata to dataDir.
func (m *CollectMeta) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	m.Version = MetadataVersion
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling collect metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, metadataFile), data, 0644); err != nil {
		return fmt.Errorf("writing collect metadata: %w", err)
	}
	return nil
}

// CheckFreshness reports whether the last collection is recent enough to
// trust. Per-unit staleness is answered by the incremental tracker.
func (m *CollectMeta) CheckFreshness(now time.Time) FreshnessResult {
	if m == nil {
		return FreshnessResult{Reason: "no collect metadata found"}
	}
	age := now.Sub(m.CreatedAt)
	if age > staleAfter {
		return FreshnessResult{Age: age, Reason: fmt.Sprintf("collection is %s old", humanDuration(age))}
	}
	if len(m.FailedUnits) > 0 {
		return FreshnessResult{Age: age, Reason: fmt.Sprintf("%d unit(s) failed in the last collection", len(m.FailedUnits))}
	}
	return FreshnessResult{Fresh: true, Age: age}
}

// humanDuration formats a duration in human-readable form.
func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
