// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kb-engine/pkg/types"
)

// WriteManifest writes the stack record as YAML next to the registry
// database, one file per knowledge base. The manifest duplicates what
// the database holds so the stack layout can be inspected or versioned
// without the sqlite tooling.
func WriteManifest(workspaceDir string, rec *types.StackRecord) (string, error) {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshaling stack manifest: %w", err)
	}

	path := filepath.Join(workspaceDir, rec.KnowledgeBaseName+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing stack manifest: %w", err)
	}
	return path, nil
}

// ReadManifest loads a stack record from a YAML manifest file.
func ReadManifest(path string) (*types.StackRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stack manifest: %w", err)
	}
	var rec types.StackRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing stack manifest %s: %w", path, err)
	}
	return &rec, nil
}
