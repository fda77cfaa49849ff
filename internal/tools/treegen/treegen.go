// Package treegen builds campaign commitment trees offline. The campaign
// owner feeds it the private serial/secret/win manifest; it emits the
// root to publish and the per-serial proof pack participants later use
// to settle.
package treegen

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/louisbranch/sortition/internal/merkle"
)

// ManifestLeaf is one private leaf entry: the opaque serial id, the
// secret disclosed at settlement, and the win flag.
type ManifestLeaf struct {
	SerialID string `json:"serial_id"`
	Secret   string `json:"secret"`
	Win      bool   `json:"win"`
}

// Manifest is the campaign owner's private leaf listing. It never leaves
// the owner's machine; only the derived root is published.
type Manifest struct {
	Leaves []ManifestLeaf `json:"leaves"`
}

// ProofLeaf pairs one serial id with its settlement proof path.
type ProofLeaf struct {
	SerialID string   `json:"serial_id"`
	Secret   string   `json:"secret"`
	Win      bool     `json:"win"`
	Proof    []string `json:"proof"`
}

// ProofPack is the treegen output: the committed root plus every leaf's
// reveal material.
type ProofPack struct {
	Root        string      `json:"root"`
	TotalLeaves int         `json:"total_leaves"`
	Leaves      []ProofLeaf `json:"leaves"`
}

// GenerateManifest creates a random manifest with the given number of
// leaves, the first winners of them marked winning.
func GenerateManifest(count, winners int, reader io.Reader) (Manifest, error) {
	if count <= 0 {
		return Manifest{}, errors.New("leaf count must be positive")
	}
	if winners < 0 || winners > count {
		return Manifest{}, fmt.Errorf("winner count %d out of range [0, %d]", winners, count)
	}
	if reader == nil {
		reader = rand.Reader
	}

	manifest := Manifest{Leaves: make([]ManifestLeaf, 0, count)}
	for i := 0; i < count; i++ {
		serial, err := randomDigest(reader)
		if err != nil {
			return Manifest{}, fmt.Errorf("generate serial id: %w", err)
		}
		secret, err := randomDigest(reader)
		if err != nil {
			return Manifest{}, fmt.Errorf("generate secret: %w", err)
		}
		manifest.Leaves = append(manifest.Leaves, ManifestLeaf{
			SerialID: serial.Hex(),
			Secret:   secret.Hex(),
			Win:      i < winners,
		})
	}
	return manifest, nil
}

// BuildPack constructs the commitment tree over the manifest and returns
// the root with per-leaf proofs.
func BuildPack(manifest Manifest) (ProofPack, error) {
	if len(manifest.Leaves) == 0 {
		return ProofPack{}, errors.New("manifest has no leaves")
	}

	leaves := make([]merkle.Digest, 0, len(manifest.Leaves))
	for i, leaf := range manifest.Leaves {
		serial, err := merkle.DigestFromHex(leaf.SerialID)
		if err != nil {
			return ProofPack{}, fmt.Errorf("leaf %d serial id: %w", i, err)
		}
		secret, err := merkle.DigestFromHex(leaf.Secret)
		if err != nil {
			return ProofPack{}, fmt.Errorf("leaf %d secret: %w", i, err)
		}
		leaves = append(leaves, merkle.LeafDigest(serial, secret, leaf.Win))
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return ProofPack{}, err
	}

	pack := ProofPack{
		Root:        tree.Root().Hex(),
		TotalLeaves: tree.LeafCount(),
		Leaves:      make([]ProofLeaf, 0, len(manifest.Leaves)),
	}
	for i, leaf := range manifest.Leaves {
		proof, err := tree.Proof(i)
		if err != nil {
			return ProofPack{}, fmt.Errorf("leaf %d proof: %w", i, err)
		}
		hexProof := make([]string, 0, len(proof))
		for _, sibling := range proof {
			hexProof = append(hexProof, sibling.Hex())
		}
		pack.Leaves = append(pack.Leaves, ProofLeaf{
			SerialID: leaf.SerialID,
			Secret:   leaf.Secret,
			Win:      leaf.Win,
			Proof:    hexProof,
		})
	}
	return pack, nil
}

// Config holds treegen command configuration.
type Config struct {
	// ManifestPath is the manifest to read, or to write in generate mode.
	ManifestPath string
	// OutPath receives the proof pack JSON; empty writes to stdout.
	OutPath string
	// Generate, when positive, creates a fresh random manifest with this
	// many leaves instead of reading one.
	Generate int
	// Winners is the number of winning leaves in generate mode.
	Winners int
}

// Run executes treegen: read or generate a manifest, build the pack, and
// write the result.
func Run(cfg Config, stdout io.Writer) error {
	if stdout == nil {
		return errors.New("output is required")
	}

	var manifest Manifest
	if cfg.Generate > 0 {
		generated, err := GenerateManifest(cfg.Generate, cfg.Winners, nil)
		if err != nil {
			return err
		}
		manifest = generated
		if cfg.ManifestPath != "" {
			if err := writeJSON(cfg.ManifestPath, manifest); err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}
		}
	} else {
		if cfg.ManifestPath == "" {
			return errors.New("manifest path is required")
		}
		raw, err := os.ReadFile(cfg.ManifestPath)
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}
		if err := json.Unmarshal(raw, &manifest); err != nil {
			return fmt.Errorf("decode manifest: %w", err)
		}
	}

	pack, err := BuildPack(manifest)
	if err != nil {
		return err
	}

	if cfg.OutPath != "" {
		if err := writeJSON(cfg.OutPath, pack); err != nil {
			return fmt.Errorf("write proof pack: %w", err)
		}
		_, err := fmt.Fprintf(stdout, "root %s (%d leaves) -> %s\n", pack.Root, pack.TotalLeaves, cfg.OutPath)
		return err
	}

	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(pack)
}

func randomDigest(reader io.Reader) (merkle.Digest, error) {
	var buf [32]byte
	if _, err := io.ReadFull(reader, buf[:]); err != nil {
		return merkle.Digest{}, err
	}
	return merkle.Digest(buf), nil
}

func writeJSON(path string, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o600)
}
