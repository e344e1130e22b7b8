// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec := sampleStack("bedrock-kb-0101234", "0101234")

	path, err := WriteManifest(dir, rec)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "bedrock-kb-0101234.yaml") {
		t.Errorf("manifest path = %s", path)
	}

	got, err := ReadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("round-trip mismatch:\ngot  %+v\nwant %+v", got, rec)
	}
}

func TestWriteManifestIsReadable(t *testing.T) {
	dir := t.TempDir()
	rec := sampleStack("bedrock-kb-0101234", "0101234")

	path, err := WriteManifest(dir, rec)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Spot-check a few fields survive as plain YAML keys.
	for _, want := range []string{"knowledge_base_name: bedrock-kb-0101234", "region: us-west-2"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("manifest missing %q:\n%s", want, data)
		}
	}
}

func TestReadManifestErrors(t *testing.T) {
	if _, err := ReadManifest(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("{not yaml: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadManifest(bad); err == nil {
		t.Error("expected error for malformed manifest")
	}
}
