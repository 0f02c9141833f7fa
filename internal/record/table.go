package record

import (
	"errors"
	"strconv"
)

// Sentinel errors returned by Table operations (spec §4.A).
var (
	ErrNameTaken = errors.New("name already taken")
	ErrIDTaken   = errors.New("id already taken")
	ErrNotFound  = errors.New("no such record")
)

// Table is the authoritative in-memory process table: keyed lookup by id
// and by name, both constant time, with insertion-order enumeration.
//
// Table is not safe for concurrent use by multiple goroutines. Spec §5
// requires the table to have a single owning goroutine (the supervisor
// loop); Table enforces that by being a plain, unlocked map pair rather
// than synchronizing internally.
type Table struct {
	byID   map[int]*Record
	byName map[string]*Record
	order  []int // insertion order, for Iter

	nextID int // monotonically incremented; never reused within a lifetime
}

// New returns an empty table.
func New() *Table {
	return &Table{
		byID:   make(map[int]*Record),
		byName: make(map[string]*Record),
	}
}

// NextID returns the id that the next Insert would assign, without
// allocating it.
func (t *Table) NextID() int {
	return t.nextID
}

// Insert adds rec to the table, assigning it the next monotonically
// increasing id (rec.ID is overwritten). Fails with ErrNameTaken without
// mutating the table.
func (t *Table) Insert(rec *Record) error {
	if rec.Name == "" {
		return errors.New("record name required")
	}
	if _, taken := t.byName[rec.Name]; taken {
		return ErrNameTaken
	}

	rec.ID = t.nextID
	t.insert(rec)
	return nil
}

// Restore adds rec to the table under its own rec.ID, as read back from a
// dumpfile. Fails with ErrNameTaken or ErrIDTaken without mutating the
// table; the caller (persist.RestoreInto) is expected to skip the offending
// entry and continue with the rest (spec §4.F).
func (t *Table) Restore(rec *Record) error {
	if rec.Name == "" {
		return errors.New("record name required")
	}
	if _, taken := t.byName[rec.Name]; taken {
		return ErrNameTaken
	}
	if _, taken := t.byID[rec.ID]; taken {
		return ErrIDTaken
	}
	t.insert(rec)
	return nil
}

func (t *Table) insert(rec *Record) {
	t.byID[rec.ID] = rec
	t.byName[rec.Name] = rec
	t.order = append(t.order, rec.ID)
	if rec.ID >= t.nextID {
		t.nextID = rec.ID + 1
	}
}

// GetByRef resolves ref — a decimal id or a name — to a record. A ref that
// parses as a decimal integer is looked up by id first; if no such id
// exists it falls back to being treated as a literal name (ids take
// priority on ambiguity, per spec §4.A).
func (t *Table) GetByRef(ref string) (*Record, bool) {
	if id, err := strconv.Atoi(ref); err == nil {
		if rec, ok := t.byID[id]; ok {
			return rec, true
		}
	}
	rec, ok := t.byName[ref]
	return rec, ok
}

// GetByID looks up a record by its exact id.
func (t *Table) GetByID(id int) (*Record, bool) {
	rec, ok := t.byID[id]
	return rec, ok
}

// Rename changes rec's name atomically: either both index entries are
// updated together, or neither is (on ErrNameTaken). Callers must hold the
// record (e.g. via GetByRef) before calling.
func (t *Table) Rename(rec *Record, newName string) error {
	if newName == rec.Name {
		return nil
	}
	if _, taken := t.byName[newName]; taken {
		return ErrNameTaken
	}
	delete(t.byName, rec.Name)
	rec.Name = newName
	t.byName[newName] = rec
	return nil
}

// Remove deletes the record identified by ref from the table.
func (t *Table) Remove(ref string) bool {
	rec, ok := t.GetByRef(ref)
	if !ok {
		return false
	}
	delete(t.byID, rec.ID)
	delete(t.byName, rec.Name)
	for i, id := range t.order {
		if id == rec.ID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Iter returns all records in insertion order. The slice is a snapshot;
// mutating the table afterward does not affect it.
func (t *Table) Iter() []*Record {
	out := make([]*Record, 0, len(t.order))
	for _, id := range t.order {
		if rec, ok := t.byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// Len reports the number of records currently in the table.
func (t *Table) Len() int {
	return len(t.byID)
}

// Reset reinitializes the id counter to zero. Fails unless the table is
// empty (spec §4.I `reset`, §9 "require the in-memory table to be empty").
func (t *Table) Reset() error {
	if len(t.byID) > 0 {
		return errors.New("cannot reset: table is not empty")
	}
	t.nextID = 0
	return nil
}
