// Package store owns the in-memory board state. Every transition is a
// synchronous, atomic update applied under the store lock; persistence and
// delays live in the dispatch layer, never here.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taskflow/taskflow/internal/board/models"
	"github.com/taskflow/taskflow/internal/common/errors"
)

// Flags carries the in-flight indication the sequencer maintains around
// each request/success/failure pair.
type Flags struct {
	IsLoading bool   `json:"isLoading"`
	IsSaving  bool   `json:"isSaving"`
	Error     string `json:"error,omitempty"`
}

// TaskUpdates is a partial task update. Nil fields are left untouched.
// Favoriting is not a distinct operation: callers toggle IsFavorite here.
type TaskUpdates struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	IsFavorite  *bool   `json:"isFavorite,omitempty"`
}

// Store is the Board Store: the ordered section collection and the mapping
// from section id to its ordered task list.
type Store struct {
	mu          sync.RWMutex
	board       *models.Board
	flags       Flags
	searchQuery string
}

// NewStore creates an empty board store. State arrives via Load.
func NewStore() *Store {
	return &Store{
		board: &models.Board{Sections: []models.Section{}, Tasks: map[string][]models.Task{}},
	}
}

// Load replaces the entire board, used at startup after the persistence read.
func (s *Store) Load(board *models.Board) error {
	if err := board.Validate(); err != nil {
		return errors.Wrap(err, "invalid board")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = board.Clone()
	s.flags.IsLoading = false
	return nil
}

// BeginLoad marks the load operation pending and clears any previous error.
func (s *Store) BeginLoad() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.IsLoading = true
	s.flags.Error = ""
}

// FailLoad records a load failure.
func (s *Store) FailLoad(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.IsLoading = false
	s.flags.Error = message
}

// BeginSave marks a mutation pending.
func (s *Store) BeginSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.IsSaving = true
}

// CompleteSave clears the pending flag after a successful mutation.
func (s *Store) CompleteSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.IsSaving = false
}

// FailSave clears the pending flag and records the failure message.
func (s *Store) FailSave(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.IsSaving = false
	s.flags.Error = message
}

// AddSection appends a section and creates its empty task list.
func (s *Store) AddSection(section models.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board.HasSection(section.ID) {
		return errors.Conflict("section id already exists: " + section.ID)
	}
	s.board.Sections = append(s.board.Sections, section)
	s.board.Tasks[section.ID] = []models.Task{}
	return nil
}

// RenameSection updates a section title in place.
func (s *Store) RenameSection(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.board.Sections {
		if s.board.Sections[i].ID == id {
			s.board.Sections[i].Title = title
			return nil
		}
	}
	return errors.NotFound("section", id)
}

// DeleteSection removes the section and its task list together. Tasks
// belonging to the section are discarded.
func (s *Store) DeleteSection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.board.Sections {
		if s.board.Sections[i].ID == id {
			s.board.Sections = append(s.board.Sections[:i], s.board.Sections[i+1:]...)
			delete(s.board.Tasks, id)
			return nil
		}
	}
	return errors.NotFound("section", id)
}

// ReorderSections wholesale-replaces the section collection. The new list
// must be an id-permutation of the current one.
func (s *Store) ReorderSections(sections []models.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(sections) != len(s.board.Sections) {
		return errors.Bounds("reordered section list has wrong length")
	}
	seen := make(map[string]bool, len(sections))
	for _, sec := range sections {
		if !s.board.HasSection(sec.ID) || seen[sec.ID] {
			return errors.Bounds("reordered section list is not a permutation of the board")
		}
		seen[sec.ID] = true
	}
	s.board.Sections = append([]models.Section(nil), sections...)
	return nil
}

// AddTask appends a task to the end of the section's list.
func (s *Store) AddTask(sectionID string, task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.board.HasSection(sectionID) {
		return errors.NotFound("section", sectionID)
	}
	task.Status = sectionID
	s.board.Tasks[sectionID] = append(s.board.Tasks[sectionID], task)
	return nil
}

// UpdateTask shallow-merges updates into the matching task and refreshes
// UpdatedAt. A missing task is a no-op: the returned bool reports whether
// anything was applied.
func (s *Store) UpdateTask(sectionID, taskID string, updates TaskUpdates, now time.Time) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.board.Tasks[sectionID]
	for i := range list {
		if list[i].ID != taskID {
			continue
		}
		if updates.Title != nil {
			list[i].Title = *updates.Title
		}
		if updates.Description != nil {
			list[i].Description = *updates.Description
		}
		if updates.IsFavorite != nil {
			list[i].IsFavorite = *updates.IsFavorite
		}
		list[i].UpdatedAt = now
		return list[i], true
	}
	return models.Task{}, false
}

// DeleteTask removes a task by id from the section's list. A missing task
// is a no-op: the returned bool reports whether anything was removed.
func (s *Store) DeleteTask(sectionID, taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.board.Tasks[sectionID]
	for i := range list {
		if list[i].ID == taskID {
			s.board.Tasks[sectionID] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// MoveTask removes the task at sourceIndex from the source list, rewrites
// its status, and inserts it at destIndex in the destination list. The
// source index is bounds-checked strictly; the destination index is clamped
// to [0, len]. Same-section moves are remove-then-insert on one list.
func (s *Store) MoveTask(sourceSectionID, destSectionID string, sourceIndex, destIndex int) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.board.HasSection(sourceSectionID) {
		return models.Task{}, errors.NotFound("section", sourceSectionID)
	}
	if !s.board.HasSection(destSectionID) {
		return models.Task{}, errors.NotFound("section", destSectionID)
	}

	source := s.board.Tasks[sourceSectionID]
	if sourceIndex < 0 || sourceIndex >= len(source) {
		return models.Task{}, errors.Bounds("source index out of range")
	}

	task := source[sourceIndex]
	source = append(source[:sourceIndex], source[sourceIndex+1:]...)
	s.board.Tasks[sourceSectionID] = source

	task.Status = destSectionID
	dest := s.board.Tasks[destSectionID]
	if destIndex < 0 {
		destIndex = 0
	}
	if destIndex > len(dest) {
		destIndex = len(dest)
	}
	dest = append(dest, models.Task{})
	copy(dest[destIndex+1:], dest[destIndex:])
	dest[destIndex] = task
	s.board.Tasks[destSectionID] = dest

	return task, nil
}

// ReorderTasks wholesale-replaces one section's task list. The new list
// must be an id-permutation of the current one.
func (s *Store) ReorderTasks(sectionID string, tasks []models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.board.Tasks[sectionID]
	if !ok {
		return errors.NotFound("section", sectionID)
	}
	if len(tasks) != len(current) {
		return errors.Bounds("reordered task list has wrong length")
	}
	existing := make(map[string]bool, len(current))
	for _, t := range current {
		existing[t.ID] = true
	}
	replacement := make([]models.Task, len(tasks))
	for i, t := range tasks {
		if !existing[t.ID] {
			return errors.Bounds("reordered task list is not a permutation of the section")
		}
		delete(existing, t.ID)
		t.Status = sectionID
		replacement[i] = t
	}
	s.board.Tasks[sectionID] = replacement
	return nil
}

// Snapshot returns a deep copy of the board plus the current flags.
func (s *Store) Snapshot() (*models.Board, Flags) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.board.Clone(), s.flags
}

// SetSearchQuery stores the view layer's current filter text. It does not
// round-trip the effect layer.
func (s *Store) SetSearchQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchQuery = q
}

// SearchQuery returns the current filter text.
func (s *Store) SearchQuery() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchQuery
}

// AllTasks returns every task on the board, ordered by section order and
// then list position.
func (s *Store) AllTasks() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(models.Task) bool { return true })
}

// Favorites returns every favorited task in board order.
func (s *Store) Favorites() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(t models.Task) bool { return t.IsFavorite })
}

// TasksOn returns tasks created on the given calendar day (in day's location).
func (s *Store) TasksOn(day time.Time) []models.Task {
	y, m, d := day.Date()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(t models.Task) bool {
		ty, tm, td := t.CreatedAt.In(day.Location()).Date()
		return ty == y && tm == m && td == d
	})
}

// Search returns tasks whose title or description contains the query,
// case-insensitively. An empty query matches everything.
func (s *Store) Search(query string) []models.Task {
	q := strings.ToLower(query)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(t models.Task) bool {
		return q == "" ||
			strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.Description), q)
	})
}

// collect walks sections in display order and filters tasks. Callers hold
// the read lock.
func (s *Store) collect(keep func(models.Task) bool) []models.Task {
	sections := append([]models.Section(nil), s.board.Sections...)
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Order < sections[j].Order
	})

	result := []models.Task{}
	for _, sec := range sections {
		for _, t := range s.board.Tasks[sec.ID] {
			if keep(t) {
				result = append(result, t)
			}
		}
	}
	return result
}
