// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

// Package capability decides which plugin sources are trusted enough to be
// compiled and have their entry symbol called in-process.
//
// Calling a plugin's entry symbol is unchecked: the host cannot verify the
// exported function's signature. A Policy is the one place that decision is
// made. Sources are matched by logical name against allow patterns and, when a
// digest is pinned for that name, by the SHA-256 of the source file.
//
// Pattern matching uses gobwas/glob with '.' as the segment separator:
//   - '*' matches a single segment (does not cross '.')
//   - '**' matches zero or more segments (crosses '.')
//
// Examples:
//   - "core.*" matches "core.chat" but NOT "core.chat.filters"
//   - "core.**" matches both
//   - "**" matches any name
package capability

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// CodeNotTrusted is the error code for a source the policy rejects.
const CodeNotTrusted = "PLUGIN_NOT_TRUSTED"

// Reasons reported in the "reason" context of a rejection.
const (
	ReasonNotAllowed     = "not_allowed"
	ReasonDigestMismatch = "digest_mismatch"
	ReasonDigestFailed   = "digest_unreadable"
)

// AllowAllPattern matches every logical name.
const AllowAllPattern = "**"

// compiledPattern holds a pattern and its compiled glob for efficient matching.
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Policy is safe for concurrent use.
type Policy struct {
	mu      sync.RWMutex
	allow   []compiledPattern
	digests map[string]string // logical name -> lowercase hex sha256
}

// NewPolicy compiles allow patterns and pinned digests.
// Returns an error if any pattern is empty or invalid, or any digest is not
// 64 hex characters. No patterns means nothing is trusted.
func NewPolicy(allow []string, digests map[string]string) (*Policy, error) {
	p := &Policy{digests: make(map[string]string, len(digests))}

	p.allow = make([]compiledPattern, len(allow))
	for i, pattern := range allow {
		if pattern == "" {
			return nil, oops.Code("TRUST_PATTERN_INVALID").With("index", i).Errorf("empty allow pattern")
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, oops.Code("TRUST_PATTERN_INVALID").With("index", i, "pattern", pattern).Wrap(err)
		}
		p.allow[i] = compiledPattern{pattern: pattern, glob: g}
	}

	for name, digest := range digests {
		if err := p.pin(name, digest); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AllowAll returns a policy that trusts every source.
func AllowAll() *Policy {
	p, err := NewPolicy([]string{AllowAllPattern}, nil)
	if err != nil {
		panic(err)
	}
	return p
}

// Pin requires the source for name to hash to digest (hex SHA-256).
// Pinning a name again replaces the previous digest.
func (p *Policy) Pin(name, digest string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pin(name, digest)
}

func (p *Policy) pin(name, digest string) error {
	if name == "" {
		return oops.Code("TRUST_DIGEST_INVALID").Errorf("digest pinned for empty plugin name")
	}
	d := strings.ToLower(strings.TrimSpace(digest))
	if b, err := hex.DecodeString(d); err != nil || len(b) != sha256.Size {
		return oops.Code("TRUST_DIGEST_INVALID").With("plugin", name).
			Errorf("digest for %q must be %d hex characters", name, sha256.Size*2)
	}
	p.digests[name] = d
	return nil
}

// Patterns returns a copy of the allow patterns.
func (p *Policy) Patterns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, len(p.allow))
	for i, c := range p.allow {
		out[i] = c.pattern
	}
	return out
}

// Allowed reports whether name matches an allow pattern.
// Returns false for an empty name.
func (p *Policy) Allowed(name string) bool {
	if name == "" {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, c := range p.allow {
		if c.glob.Match(name) {
			return true
		}
	}
	return false
}

// Check returns nil if the source at path may be loaded as plugin name.
func (p *Policy) Check(name, path string) error {
	if !p.Allowed(name) {
		return oops.Code(CodeNotTrusted).
			With("plugin", name, "reason", ReasonNotAllowed).
			Errorf("plugin %q is not in the allow list", name)
	}

	p.mu.RLock()
	want, pinned := p.digests[name]
	p.mu.RUnlock()
	if !pinned {
		return nil
	}

	got, err := Digest(path)
	if err != nil {
		return oops.Code(CodeNotTrusted).
			With("plugin", name, "reason", ReasonDigestFailed).
			Wrap(err)
	}
	if got != want {
		return oops.Code(CodeNotTrusted).
			With("plugin", name, "reason", ReasonDigestMismatch, "want", want, "got", got).
			Errorf("plugin %q source digest does not match the pinned digest", name)
	}
	return nil
}

// Digest returns the lowercase hex SHA-256 of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the plugin directory listing
	if err != nil {
		return "", oops.With("path", path).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", oops.With("path", path).Wrap(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
