// Package merkle implements the commitment scheme used by raffle campaigns.
//
// A campaign owner commits to a fixed set of outcomes by publishing the
// root of a Merkle tree whose leaves hash (serial id, secret, win flag)
// triples. Settlement later verifies a revealed triple against that root
// using the proof emitted at tree-build time.
//
// The scheme is deliberately rigid, because the dominant failure mode for
// commit-reveal systems is two implementations disagreeing on byte-level
// encoding:
//
//   - leaf = sha256(serial ‖ secret ‖ winByte), all fields fixed-width,
//     winByte is a single 0x01/0x00 byte;
//   - parent = sha256(min(left,right) ‖ max(left,right)), so verification
//     never tracks left/right positions;
//   - a level with an odd node count pairs its last node with itself, and
//     proofs emit that duplicated digest as the sibling.
//
// A tree builder using positional (unsorted) concatenation is incompatible
// with this verifier and will reject every valid proof.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DigestSize is the byte length of every digest, serial id, and secret.
const DigestSize = sha256.Size

// Digest is a fixed-width value in the commitment tree: a node hash, a
// serial id, or a reveal secret.
type Digest [DigestSize]byte

// DigestFromBytes converts a byte slice into a Digest.
func DigestFromBytes(value []byte) (Digest, error) {
	var d Digest
	if len(value) != DigestSize {
		return Digest{}, fmt.Errorf("digest must be %d bytes, got %d", DigestSize, len(value))
	}
	copy(d[:], value)
	return d, nil
}

// DigestFromHex parses a 64-character hex string into a Digest.
func DigestFromHex(value string) (Digest, error) {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return Digest{}, fmt.Errorf("decode digest hex: %w", err)
	}
	return DigestFromBytes(raw)
}

// Hex returns the lowercase hex encoding of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is all zero bytes.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// LeafDigest computes the canonical leaf hash for one committed outcome.
//
// Every field is fixed-width so the concatenation is unambiguous without
// length prefixes. The win flag is encoded as exactly one byte.
func LeafDigest(serialID, secret Digest, win bool) Digest {
	var winByte byte
	if win {
		winByte = 0x01
	}
	h := sha256.New()
	h.Write(serialID[:])
	h.Write(secret[:])
	h.Write([]byte{winByte})
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// combine hashes an internal node from its two children in value-sorted
// order. Sorting makes the operation commutative, which is what lets
// Verify fold a proof without sidedness markers.
func combine(a, b Digest) Digest {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Verify folds leaf up through the ordered sibling digests and reports
// whether the result equals root. It is a pure function and safe to call
// from read-only contexts.
func Verify(root, leaf Digest, proof []Digest) bool {
	current := leaf
	for _, sibling := range proof {
		current = combine(current, sibling)
	}
	return current == root
}
