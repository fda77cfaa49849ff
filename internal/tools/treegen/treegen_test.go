package treegen

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/louisbranch/sortition/internal/merkle"
)

func TestGenerateManifest(t *testing.T) {
	t.Parallel()

	reader := bytes.NewReader(bytes.Repeat([]byte{7}, 32*8))
	manifest, err := GenerateManifest(4, 2, reader)
	if err != nil {
		t.Fatalf("generate manifest: %v", err)
	}
	if len(manifest.Leaves) != 4 {
		t.Fatalf("expected 4 leaves, got %d", len(manifest.Leaves))
	}
	winners := 0
	for _, leaf := range manifest.Leaves {
		if leaf.Win {
			winners++
		}
	}
	if winners != 2 {
		t.Fatalf("expected 2 winners, got %d", winners)
	}

	if _, err := GenerateManifest(0, 0, reader); err == nil {
		t.Fatal("expected error for zero leaves")
	}
	if _, err := GenerateManifest(2, 3, reader); err == nil {
		t.Fatal("expected error for too many winners")
	}
}

func TestBuildPackProofsVerify(t *testing.T) {
	t.Parallel()

	reader := bytes.NewReader(bytes.Repeat([]byte{9}, 32*10))
	manifest, err := GenerateManifest(5, 2, reader)
	if err != nil {
		t.Fatalf("generate manifest: %v", err)
	}
	pack, err := BuildPack(manifest)
	if err != nil {
		t.Fatalf("build pack: %v", err)
	}
	if pack.TotalLeaves != 5 {
		t.Fatalf("expected 5 leaves, got %d", pack.TotalLeaves)
	}

	root, err := merkle.DigestFromHex(pack.Root)
	if err != nil {
		t.Fatalf("decode root: %v", err)
	}
	for i, leaf := range pack.Leaves {
		serial, err := merkle.DigestFromHex(leaf.SerialID)
		if err != nil {
			t.Fatalf("leaf %d serial: %v", i, err)
		}
		secret, err := merkle.DigestFromHex(leaf.Secret)
		if err != nil {
			t.Fatalf("leaf %d secret: %v", i, err)
		}
		proof := make([]merkle.Digest, 0, len(leaf.Proof))
		for _, sibling := range leaf.Proof {
			decoded, err := merkle.DigestFromHex(sibling)
			if err != nil {
				t.Fatalf("leaf %d proof: %v", i, err)
			}
			proof = append(proof, decoded)
		}
		if !merkle.Verify(root, merkle.LeafDigest(serial, secret, leaf.Win), proof) {
			t.Fatalf("leaf %d proof does not verify", i)
		}
		// Flipping the win flag must break verification.
		if merkle.Verify(root, merkle.LeafDigest(serial, secret, !leaf.Win), proof) {
			t.Fatalf("leaf %d verifies with flipped win flag", i)
		}
	}
}

func TestBuildPackRejectsBadManifest(t *testing.T) {
	t.Parallel()

	if _, err := BuildPack(Manifest{}); err == nil {
		t.Fatal("expected error for empty manifest")
	}
	_, err := BuildPack(Manifest{Leaves: []ManifestLeaf{{SerialID: "zz", Secret: "zz"}}})
	if err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestRunGenerateWritesFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")
	packPath := filepath.Join(dir, "pack.json")

	var stdout bytes.Buffer
	err := Run(Config{
		ManifestPath: manifestPath,
		OutPath:      packPath,
		Generate:     3,
		Winners:      1,
	}, &stdout)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	raw, err := os.ReadFile(packPath)
	if err != nil {
		t.Fatalf("read pack: %v", err)
	}
	var pack ProofPack
	if err := json.Unmarshal(raw, &pack); err != nil {
		t.Fatalf("decode pack: %v", err)
	}
	if pack.TotalLeaves != 3 {
		t.Fatalf("expected 3 leaves, got %d", pack.TotalLeaves)
	}

	// The written manifest rebuilds to the same root.
	rawManifest, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(rawManifest, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	rebuilt, err := BuildPack(manifest)
	if err != nil {
		t.Fatalf("rebuild pack: %v", err)
	}
	if rebuilt.Root != pack.Root {
		t.Fatalf("root mismatch: %s vs %s", rebuilt.Root, pack.Root)
	}
}

func TestRunReadsManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")
	manifest, err := GenerateManifest(2, 1, bytes.NewReader(bytes.Repeat([]byte{3}, 32*4)))
	if err != nil {
		t.Fatalf("generate manifest: %v", err)
	}
	encoded, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("encode manifest: %v", err)
	}
	if err := os.WriteFile(manifestPath, encoded, 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	var stdout bytes.Buffer
	if err := Run(Config{ManifestPath: manifestPath}, &stdout); err != nil {
		t.Fatalf("run: %v", err)
	}
	var pack ProofPack
	if err := json.Unmarshal(stdout.Bytes(), &pack); err != nil {
		t.Fatalf("decode stdout pack: %v", err)
	}
	if pack.TotalLeaves != 2 {
		t.Fatalf("expected 2 leaves, got %d", pack.TotalLeaves)
	}
}
