package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pg_entity_sync/plan"
)

// ScriptRecord describes a stored sync script on disk.
type ScriptRecord struct {
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Operations   int       `json:"operations"`
	ForwardFile  string    `json:"forward_file"`
	RollbackFile string    `json:"rollback_file"`
	PlanFile     string    `json:"plan_file"`
	CreatedAt    time.Time `json:"created_at"`
	Checksum     string    `json:"checksum"`
}

// EnsureBase makes sure the storage root exists.
func EnsureBase(base string) error {
	return os.MkdirAll(filepath.Join(base, "scripts"), 0o755)
}

// StorePlan renders a plan's forward and rollback SQL into storage so the
// run can be replayed or reversed later without reconnecting to the source
// state. The plan's operations are kept alongside as plan.json.
func StorePlan(base, name string, p *plan.Plan, description string) (ScriptRecord, error) {
	if name == "" {
		return ScriptRecord{}, fmt.Errorf("script name is required")
	}
	dir := filepath.Join(base, "scripts", safeName(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ScriptRecord{}, err
	}
	manifestPath := filepath.Join(dir, "manifest.json")
	if _, err := os.Stat(manifestPath); err == nil {
		return ScriptRecord{}, fmt.Errorf("script %s already exists", name)
	}

	forwardBytes := renderSQL(p.RenderUp())
	forwardTarget := filepath.Join(dir, "forward.sql")
	if err := os.WriteFile(forwardTarget, forwardBytes, 0o644); err != nil {
		return ScriptRecord{}, fmt.Errorf("write forward script: %w", err)
	}

	rollbackBytes := renderSQL(p.RenderDown())
	rollbackTarget := filepath.Join(dir, "rollback.sql")
	if err := os.WriteFile(rollbackTarget, rollbackBytes, 0o644); err != nil {
		return ScriptRecord{}, fmt.Errorf("write rollback script: %w", err)
	}

	planTarget := filepath.Join(dir, "plan.json")
	if err := writeJSON(planTarget, p.Operations); err != nil {
		return ScriptRecord{}, fmt.Errorf("write plan: %w", err)
	}

	record := ScriptRecord{
		Name:         name,
		Description:  description,
		Operations:   len(p.Operations),
		ForwardFile:  forwardTarget,
		RollbackFile: rollbackTarget,
		PlanFile:     planTarget,
		CreatedAt:    time.Now().UTC(),
		Checksum:     computeChecksum(forwardBytes, rollbackBytes),
	}
	if err := writeJSON(manifestPath, record); err != nil {
		return ScriptRecord{}, err
	}
	return record, nil
}

// LoadScript reads a stored script record and both SQL bodies.
func LoadScript(base, name string) (ScriptRecord, string, string, error) {
	record, err := LoadManifest(base, name)
	if err != nil {
		return record, "", "", err
	}

	forwardBytes, err := os.ReadFile(record.ForwardFile)
	if err != nil {
		return record, "", "", fmt.Errorf("read forward script: %w", err)
	}
	rollbackBytes, err := os.ReadFile(record.RollbackFile)
	if err != nil {
		return record, "", "", fmt.Errorf("read rollback script: %w", err)
	}
	if got := computeChecksum(forwardBytes, rollbackBytes); got != record.Checksum {
		return record, "", "", fmt.Errorf("script %s checksum mismatch: stored %s, computed %s", name, record.Checksum, got)
	}
	return record, string(forwardBytes), string(rollbackBytes), nil
}

// LoadManifest reads metadata without loading script bodies.
func LoadManifest(base, name string) (ScriptRecord, error) {
	manifestPath := filepath.Join(base, "scripts", safeName(name), "manifest.json")
	var record ScriptRecord
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return record, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("parse manifest: %w", err)
	}
	return record, nil
}

// ListScripts returns stored script names.
func ListScripts(base string) ([]string, error) {
	dir := filepath.Join(base, "scripts")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ListScriptRecords returns manifest details for every stored script.
func ListScriptRecords(base string) ([]ScriptRecord, error) {
	names, err := ListScripts(base)
	if err != nil {
		return nil, err
	}
	records := make([]ScriptRecord, 0, len(names))
	for _, name := range names {
		rec, err := LoadManifest(base, name)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func renderSQL(statements []string) []byte {
	var b strings.Builder
	for _, s := range statements {
		b.WriteString(s)
		b.WriteString(";\n\n")
	}
	return []byte(b.String())
}

func safeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

func computeChecksum(blobs ...[]byte) string {
	h := sha256.New()
	for _, b := range blobs {
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
