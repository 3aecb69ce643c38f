// Package id mints the identifiers the agent hands out.
//
// Two families are provided:
//   - Trace identifiers: TaskID (20 random bytes) and OpID (8 random bytes),
//     hex encoded, drawn from an entropy allocator such as entropy.Pool
//   - Event identifiers: prefixed ULIDs used to label diagnostics events;
//     a Generator accepts any io.Reader as its entropy, the pool included
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Trace Identifiers
// ============================================================================

const (
	// TaskIDSize is the byte length of a trace identifier.
	TaskIDSize = 20
	// OpIDSize is the byte length of a span identifier.
	OpIDSize = 8
)

// Allocator fills dst[offset:offset+size] with random bytes.
type Allocator interface {
	Allocate(dst []byte, offset, size int)
}

// TaskID identifies a trace
type TaskID string

// OpID identifies an operation within a trace
type OpID string

// NewTaskID draws a trace identifier from src.
func NewTaskID(src Allocator) TaskID {
	return TaskID(mint(src, TaskIDSize))
}

// NewOpID draws an operation identifier from src.
func NewOpID(src Allocator) OpID {
	return OpID(mint(src, OpIDSize))
}

func mint(src Allocator, size int) string {
	buf := make([]byte, size)
	src.Allocate(buf, 0, size)
	return hex.EncodeToString(buf)
}

func (id TaskID) String() string { return string(id) }
func (id OpID) String() string   { return string(id) }

// Bytes decodes the identifier.
func (id TaskID) Bytes() ([]byte, error) { return decode(string(id), TaskIDSize) }

// Bytes decodes the identifier.
func (id OpID) Bytes() ([]byte, error) { return decode(string(id), OpIDSize) }

func decode(s string, size int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("id: want %d bytes, got %d", size, len(b))
	}
	return b, nil
}

// ============================================================================
// ULID Generator
// ============================================================================

// EventID identifies a diagnostics event
type EventID string

// EventPrefix tags event identifiers in logs and streams.
const EventPrefix = "evt"

func (id EventID) String() string { return string(id) }

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator backed by crypto/rand.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a ULID generator using crypto/rand.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator reading from entropy.
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
	return prefix + "_" + g.GenerateString()
}

// NewEventID generates an event identifier.
func (g *Generator) NewEventID() EventID {
	return EventID(g.GenerateWithPrefix(EventPrefix))
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
