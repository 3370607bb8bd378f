// Package hashing maps configured algorithm names to hash constructors.
package hashing

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrUnknownAlgorithm is returned for names not in the registry.
var ErrUnknownAlgorithm = errors.New("hashing: unknown algorithm")

var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
	"xxh64":  func() hash.Hash { return xxhash.New() },
}

// Normalize lowercases name. "none" and "" both mean disabled and
// normalize to "".
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "none" {
		return ""
	}
	return name
}

// New returns a fresh hash for the named algorithm.
func New(name string) (hash.Hash, error) {
	fn, ok := algorithms[Normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return fn(), nil
}

// Supported returns the sorted algorithm names.
func Supported() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hasher computes hex digests with a fixed algorithm.
type Hasher struct {
	name string
	new  func() hash.Hash
}

// NewHasher returns a Hasher for name.
func NewHasher(name string) (*Hasher, error) {
	name = Normalize(name)
	fn, ok := algorithms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return &Hasher{name: name, new: fn}, nil
}

// Name returns the algorithm name, also used as the output column name.
func (h *Hasher) Name() string {
	return h.name
}

// Sum returns the hex digest of data.
func (h *Hasher) Sum(data []byte) string {
	d := h.new()
	d.Write(data)
	return hex.EncodeToString(d.Sum(nil))
}

// SumReader returns the hex digest of everything read from r.
func (h *Hasher) SumReader(r io.Reader) (string, error) {
	d := h.new()
	if _, err := io.Copy(d, r); err != nil {
		return "", fmt.Errorf("hashing: %w", err)
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}
