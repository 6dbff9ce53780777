// Package models defines the board data model: sections and their ordered
// task lists. The JSON shape matches the persisted taskflow_kanban record.
package models

import (
	"fmt"
	"time"
)

// Section is a named, ordered column of the board.
// Identity is immutable once created.
type Section struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Order int64  `json:"order"`
}

// Task is a unit of work belonging to exactly one section at a time.
// Status always equals the id of the section whose list contains the task.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsFavorite  bool      `json:"isFavorite"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Board is the full board snapshot: the ordered section collection plus a
// mapping from section id to that section's ordered task list.
type Board struct {
	Sections []Section         `json:"sections"`
	Tasks    map[string][]Task `json:"tasks"`
}

// NewTask creates a task in the given section with both timestamps set to now.
func NewTask(id, sectionID, title, description string, now time.Time) Task {
	return Task{
		ID:          id,
		Title:       title,
		Description: description,
		Status:      sectionID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DefaultBoard returns the three-section starter board used when nothing is
// stored yet: To Do / In Progress / Done, all empty.
func DefaultBoard() *Board {
	return &Board{
		Sections: []Section{
			{ID: "section-1", Title: "To Do", Order: 0},
			{ID: "section-2", Title: "In Progress", Order: 1},
			{ID: "section-3", Title: "Done", Order: 2},
		},
		Tasks: map[string][]Task{
			"section-1": {},
			"section-2": {},
			"section-3": {},
		},
	}
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	c := &Board{
		Sections: make([]Section, len(b.Sections)),
		Tasks:    make(map[string][]Task, len(b.Tasks)),
	}
	copy(c.Sections, b.Sections)
	for id, list := range b.Tasks {
		tasks := make([]Task, len(list))
		copy(tasks, list)
		c.Tasks[id] = tasks
	}
	return c
}

// TaskCount returns the total number of tasks across all sections.
func (b *Board) TaskCount() int {
	n := 0
	for _, list := range b.Tasks {
		n += len(list)
	}
	return n
}

// HasSection reports whether the board contains a section with the given id.
func (b *Board) HasSection(id string) bool {
	for _, s := range b.Sections {
		if s.ID == id {
			return true
		}
	}
	return false
}

// NextOrder returns the order value for a newly appended section.
func (b *Board) NextOrder() int64 {
	var next int64
	for _, s := range b.Sections {
		if s.Order >= next {
			next = s.Order + 1
		}
	}
	return next
}

// Validate verifies the board invariants:
//   - section ids are unique and task list keys match sections one-to-one
//   - task ids are unique across the board
//   - every task's Status equals the id of the section holding it
func (b *Board) Validate() error {
	sectionIDs := make(map[string]bool, len(b.Sections))
	for _, s := range b.Sections {
		if s.ID == "" {
			return fmt.Errorf("section with empty id")
		}
		if sectionIDs[s.ID] {
			return fmt.Errorf("duplicate section id %q", s.ID)
		}
		sectionIDs[s.ID] = true
		if _, ok := b.Tasks[s.ID]; !ok {
			return fmt.Errorf("section %q has no task list", s.ID)
		}
	}
	if len(b.Tasks) != len(b.Sections) {
		for id := range b.Tasks {
			if !sectionIDs[id] {
				return fmt.Errorf("orphaned task list for section %q", id)
			}
		}
	}

	taskIDs := make(map[string]bool)
	for sectionID, list := range b.Tasks {
		for _, t := range list {
			if taskIDs[t.ID] {
				return fmt.Errorf("duplicate task id %q", t.ID)
			}
			taskIDs[t.ID] = true
			if t.Status != sectionID {
				return fmt.Errorf("task %q has status %q but lives in section %q", t.ID, t.Status, sectionID)
			}
		}
	}
	return nil
}
