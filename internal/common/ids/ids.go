// Package ids provides id and token generation for TaskFlow entities.
// Generation is behind an interface so tests can supply deterministic ids.
package ids

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator mints ids for the entities the stores create.
type Generator interface {
	NewSectionID() string
	NewTaskID() string
	NewUserID() string
	NewToken() string
}

// UUIDGenerator is the production Generator backed by google/uuid.
type UUIDGenerator struct{}

var _ Generator = (*UUIDGenerator)(nil)

// NewUUIDGenerator creates the default uuid-backed generator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) NewSectionID() string { return "section-" + uuid.New().String() }
func (g *UUIDGenerator) NewTaskID() string    { return "task-" + uuid.New().String() }
func (g *UUIDGenerator) NewUserID() string    { return "user-" + uuid.New().String() }
func (g *UUIDGenerator) NewToken() string     { return "token-" + uuid.New().String() }

// SequenceGenerator mints predictable ids for tests.
type SequenceGenerator struct {
	sections atomic.Uint64
	tasks    atomic.Uint64
	users    atomic.Uint64
	tokens   atomic.Uint64
}

var _ Generator = (*SequenceGenerator)(nil)

// NewSequenceGenerator creates a deterministic generator starting at 1.
func NewSequenceGenerator() *SequenceGenerator {
	return &SequenceGenerator{}
}

func (g *SequenceGenerator) NewSectionID() string {
	return fmt.Sprintf("section-%d", g.sections.Add(1))
}

func (g *SequenceGenerator) NewTaskID() string {
	return fmt.Sprintf("task-%d", g.tasks.Add(1))
}

func (g *SequenceGenerator) NewUserID() string {
	return fmt.Sprintf("user-%d", g.users.Add(1))
}

func (g *SequenceGenerator) NewToken() string {
	return fmt.Sprintf("token-%d", g.tokens.Add(1))
}
