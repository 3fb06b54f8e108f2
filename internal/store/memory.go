package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"academy/internal/model"
)

// Memory is an in-process repository for tests and local development. It
// mirrors the Postgres repository, including legacy instrument columns.
type Memory struct {
	mu         sync.RWMutex
	students   map[string]memStudent
	staff      map[string]model.Staff
	entries    map[string]memEntry
	seq        int64
	rangeIndex bool
	now        func() time.Time

	// FailInsert, when set, is returned by InsertEntry.
	FailInsert error
}

type memStudent struct {
	model.Student
	legacy string
	raw    []string
	seq    int64
}

type memEntry struct {
	model.Entry
	seq int64
}

// NewMemory creates an empty store with the range index provisioned.
func NewMemory() *Memory {
	return &Memory{
		students:   make(map[string]memStudent),
		staff:      make(map[string]model.Staff),
		entries:    make(map[string]memEntry),
		rangeIndex: true,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// DropRangeIndex simulates a database where the createdAt index is missing.
func (m *Memory) DropRangeIndex() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rangeIndex = false
}

// ImportLegacyStudent stores a student in its raw historical shape, as
// records created before the instruments list existed look.
func (m *Memory) ImportLegacyStudent(id, name, phone, instrument string, instruments []string, status string) model.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	s := memStudent{
		Student: model.Student{
			ID:        id,
			Name:      name,
			Phone:     phone,
			Status:    model.ParseStatus(status),
			CreatedAt: m.now(),
		},
		legacy: instrument,
		raw:    append([]string(nil), instruments...),
		seq:    m.seq,
	}
	m.students[id] = s
	return s.normalized()
}

func (s memStudent) normalized() model.Student {
	out := s.Student
	out.Instruments = model.NormalizeInstruments(s.legacy, s.raw)
	return out
}

func (m *Memory) CreateStudent(_ context.Context, s model.Student) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, ok := m.students[s.ID]; ok {
		return model.Student{}, fmt.Errorf("create student: %w: duplicate id %s", model.ErrInvalidInput, s.ID)
	}
	m.seq++
	s.CreatedAt = m.now()
	rec := memStudent{Student: s, raw: model.SubjectStrings(s.Instruments), seq: m.seq}
	m.students[s.ID] = rec
	return rec.normalized(), nil
}

func (m *Memory) GetStudent(_ context.Context, id string) (model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return model.Student{}, fmt.Errorf("get student: %w", model.ErrNotFound)
	}
	return s.normalized(), nil
}

func (m *Memory) UpdateStudent(_ context.Context, s model.Student) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.students[s.ID]
	if !ok {
		return model.Student{}, fmt.Errorf("update student: %w", model.ErrNotFound)
	}
	cur.Name = s.Name
	cur.Phone = s.Phone
	cur.Status = s.Status
	cur.legacy = ""
	cur.raw = model.SubjectStrings(s.Instruments)
	m.students[s.ID] = cur
	return cur.normalized(), nil
}

func (m *Memory) DeleteStudent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[id]; !ok {
		return fmt.Errorf("delete student: %w", model.ErrNotFound)
	}
	delete(m.students, id)
	return nil
}

func (m *Memory) ListStudents(_ context.Context) ([]model.Student, error) {
	m.mu.RLock()
	recs := make([]memStudent, 0, len(m.students))
	for _, s := range m.students {
		recs = append(recs, s)
	}
	m.mu.RUnlock()
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].seq > recs[j].seq
	})
	out := make([]model.Student, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.normalized())
	}
	return out, nil
}

func (m *Memory) CreateStaff(_ context.Context, s model.Staff) (model.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	for _, existing := range m.staff {
		if strings.EqualFold(existing.Email, s.Email) {
			return model.Staff{}, fmt.Errorf("create staff: %w: email %s already registered", model.ErrInvalidInput, s.Email)
		}
	}
	s.CreatedAt = m.now()
	m.staff[s.ID] = s
	return s, nil
}

func (m *Memory) GetStaff(_ context.Context, id string) (model.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.staff[id]
	if !ok {
		return model.Staff{}, fmt.Errorf("get staff: %w", model.ErrNotFound)
	}
	return s, nil
}

func (m *Memory) GetStaffByEmail(_ context.Context, email string) (model.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.staff {
		if strings.EqualFold(s.Email, email) {
			return s, nil
		}
	}
	return model.Staff{}, fmt.Errorf("get staff by email: %w", model.ErrNotFound)
}

func (m *Memory) UpdateStaff(_ context.Context, s model.Staff) (model.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.staff[s.ID]
	if !ok {
		return model.Staff{}, fmt.Errorf("update staff: %w", model.ErrNotFound)
	}
	s.CreatedAt = cur.CreatedAt
	m.staff[s.ID] = s
	return s, nil
}

func (m *Memory) DeleteStaff(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staff[id]; !ok {
		return fmt.Errorf("delete staff: %w", model.ErrNotFound)
	}
	delete(m.staff, id)
	return nil
}

func (m *Memory) ListStaff(_ context.Context, role model.Role) ([]model.Staff, error) {
	m.mu.RLock()
	out := make([]model.Staff, 0, len(m.staff))
	for _, s := range m.staff {
		if role == "" || s.Role == role {
			out = append(out, s)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) InsertEntry(_ context.Context, e model.Entry) (model.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsert != nil {
		return model.Entry{}, fmt.Errorf("insert entry: %w", m.FailInsert)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Media != nil {
		media := *e.Media
		e.Media = &media
	}
	m.seq++
	e.CreatedAt = m.now()
	m.entries[e.ID] = memEntry{Entry: e, seq: m.seq}
	return e, nil
}

func (m *Memory) GetEntry(_ context.Context, studentID, entryID string) (model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[entryID]
	if !ok || e.StudentID != studentID {
		return model.Entry{}, fmt.Errorf("get entry: %w", model.ErrNotFound)
	}
	return e.Entry, nil
}

func (m *Memory) DeleteEntry(_ context.Context, studentID, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryID]
	if !ok || e.StudentID != studentID {
		return fmt.Errorf("delete entry: %w", model.ErrNotFound)
	}
	delete(m.entries, entryID)
	return nil
}

func (m *Memory) ListEntries(_ context.Context, studentID string) ([]model.Entry, error) {
	return m.selectEntries(func(e model.Entry) bool { return e.StudentID == studentID }), nil
}

func (m *Memory) ListEntriesBetween(ctx context.Context, start, end time.Time) ([]model.Entry, error) {
	if err := m.CheckRangeIndex(ctx); err != nil {
		return nil, err
	}
	return m.selectEntries(func(e model.Entry) bool {
		return !e.CreatedAt.Before(start) && e.CreatedAt.Before(end)
	}), nil
}

func (m *Memory) CheckRangeIndex(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.rangeIndex {
		return &model.IndexMissingError{Index: RangeIndex, Remediation: RangeIndexDDL}
	}
	return nil
}

func (m *Memory) InstrumentLabels(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int)
	for _, s := range m.students {
		if s.legacy != "" {
			out[s.legacy]++
		}
		for _, l := range s.raw {
			out[l]++
		}
	}
	return out, nil
}

func (m *Memory) CanonicalizeInstruments(_ context.Context, dryRun bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for id, s := range m.students {
		canonical := storedSubjects(s.normalized().Instruments)
		if s.legacy == "" && equalStrings(canonical, s.raw) {
			continue
		}
		changed++
		if dryRun {
			continue
		}
		s.legacy = ""
		s.raw = canonical
		m.students[id] = s
	}
	return changed, nil
}

func (m *Memory) selectEntries(keep func(model.Entry) bool) []model.Entry {
	m.mu.RLock()
	recs := make([]memEntry, 0)
	for _, e := range m.entries {
		if keep(e.Entry) {
			recs = append(recs, e)
		}
	}
	m.mu.RUnlock()
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].seq > recs[j].seq
	})
	out := make([]model.Entry, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Entry)
	}
	return out
}
