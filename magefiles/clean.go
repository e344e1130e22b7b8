//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// Clean removes build output and the local resource registry. Provisioned
// AWS resources are untouched; use "kb-engine teardown" for those.
func Clean() error {
	for _, path := range []string{binDir, filepath.Join(".kb-engine", "registry.db")} {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("removing %s: %w", path, err)
		}
		fmt.Println("removed", path)
	}
	return nil
}
