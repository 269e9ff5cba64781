// Package id provides centralized ID generation for the plugin host.
//
// This package offers type-safe ULID generation with:
//   - Lexicographic sortability: Enables efficient time-based queries
//   - Prefixed types: Type-specific prefixes for debugging (panel_*, conn_*, tok_*)
//   - Type safety: Separate types prevent ID misuse
//
// Plugin IDs are not generated here: a plugin's identifier is declared in
// its manifest and owned by the discovery collaborator. Request tokens
// created inside a sandbox use github.com/google/uuid instead, since they
// only need collision resistance, not sortability.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// PanelID identifies an open panel surface
type PanelID string

// ConnectionID identifies a remote connection
type ConnectionID string

// SurfaceToken is the one-time token a panel surface must present when
// attaching its channel
type SurfaceToken string

// WindowID identifies a plugin-created window
type WindowID string

// ID prefixes (for debugging and type identification)
const (
	PanelPrefix  = "panel"
	ConnPrefix   = "conn"
	TokenPrefix  = "tok"
	WindowPrefix = "win"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewPanelID generates a new panel surface ID
func NewPanelID() PanelID {
	return PanelID(Default().GenerateWithPrefix(PanelPrefix))
}

// NewConnectionID generates a new remote connection ID
func NewConnectionID() ConnectionID {
	return ConnectionID(Default().GenerateWithPrefix(ConnPrefix))
}

// NewSurfaceToken generates a new one-time surface token
func NewSurfaceToken() SurfaceToken {
	return SurfaceToken(Default().GenerateWithPrefix(TokenPrefix))
}

// NewWindowID generates a new window ID
func NewWindowID() WindowID {
	return WindowID(Default().GenerateWithPrefix(WindowPrefix))
}

// String methods for ID types
func (id PanelID) String() string      { return string(id) }
func (id ConnectionID) String() string { return string(id) }
func (id SurfaceToken) String() string { return string(id) }
func (id WindowID) String() string     { return string(id) }
