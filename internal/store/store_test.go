package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academy/internal/model"
)

func TestMemoryStudentsNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	m.SetClock(func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) })

	a, err := m.CreateStudent(ctx, model.Student{Name: "A", Phone: "010-1", Instruments: []model.Subject{model.SubjectPiano}})
	require.NoError(t, err)
	b, err := m.CreateStudent(ctx, model.Student{Name: "B", Phone: "010-2", Instruments: []model.Subject{model.SubjectViolin}})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)

	list, err := m.ListStudents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
}

func TestMemoryLegacyStudentNormalized(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.ImportLegacyStudent("s1", "Kim", "010-1111-2222", "어린이 피아노 취미", nil, "등록")
	m.ImportLegacyStudent("s2", "Lee", "010-3333-4444", "", nil, "")

	got, err := m.GetStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []model.Subject{model.SubjectPiano}, got.Instruments)
	assert.Equal(t, model.StatusRegistered, got.Status)

	empty, err := m.GetStudent(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, []model.Subject{model.SubjectUnassigned}, empty.Instruments)

	labels, err := m.InstrumentLabels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, labels["어린이 피아노 취미"])

	n, err := m.CanonicalizeInstruments(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = m.CanonicalizeInstruments(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = m.CanonicalizeInstruments(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	labels, err = m.InstrumentLabels(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"piano": 1}, labels)
}

func TestCanonicalizeNeverStoresPlaceholder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.ImportLegacyStudent("s1", "Kim", "010-1111-2222", "", nil, "")
	m.ImportLegacyStudent("s2", "Lee", "010-3333-4444", "", []string{"unassigned"}, "")

	n, err := m.CanonicalizeInstruments(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	labels, err := m.InstrumentLabels(ctx)
	require.NoError(t, err)
	assert.Empty(t, labels)

	for _, id := range []string{"s1", "s2"} {
		st, err := m.GetStudent(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []model.Subject{model.SubjectUnassigned}, st.Instruments)
	}
	assert.Equal(t, []string{"piano", "violin"}, storedSubjects([]model.Subject{model.SubjectPiano, model.SubjectUnassigned, model.SubjectViolin}))
}

func TestMemoryEntriesRange(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	times := []time.Time{day.Add(-time.Hour), day.Add(2 * time.Hour), day.Add(5 * time.Hour), day.Add(30 * time.Hour)}
	i := 0
	m.SetClock(func() time.Time { ts := times[i]; i++; return ts })

	for _, sid := range []string{"s1", "s2", "s1", "s2"} {
		_, err := m.InsertEntry(ctx, model.Entry{StudentID: sid, Progress: "p"})
		require.NoError(t, err)
	}

	got, err := m.ListEntriesBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))

	m.DropRangeIndex()
	_, err = m.ListEntriesBetween(ctx, day, day.Add(24*time.Hour))
	var idx *model.IndexMissingError
	require.ErrorAs(t, err, &idx)
	assert.Equal(t, RangeIndex, idx.Index)
	assert.ErrorIs(t, err, model.ErrMisconfigured)
}

func TestMemoryEntryScopedToStudent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	e, err := m.InsertEntry(ctx, model.Entry{StudentID: "s1", Feedback: "good"})
	require.NoError(t, err)

	_, err = m.GetEntry(ctx, "s2", e.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, m.DeleteEntry(ctx, "s2", e.ID), model.ErrNotFound)
	assert.NoError(t, m.DeleteEntry(ctx, "s1", e.ID))
}

func TestMemoryStaffEmailUnique(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.CreateStaff(ctx, model.Staff{Email: "t@academy.kr", Role: model.RoleTeacher, Subject: model.SubjectPiano})
	require.NoError(t, err)
	_, err = m.CreateStaff(ctx, model.Staff{Email: "T@academy.kr", Role: model.RoleAdmin})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	got, err := m.GetStaffByEmail(ctx, "T@ACADEMY.KR")
	require.NoError(t, err)
	assert.Equal(t, model.SubjectPiano, got.Subject)
}

func TestDetectIndexError(t *testing.T) {
	err := errors.New("FAILED_PRECONDITION: The query requires an index. You can create it here: https://console.firebase.google.com/project/x/firestore/indexes?create_composite=abc")
	idx, ok := DetectIndexError(err)
	require.True(t, ok)
	assert.Equal(t, "https://console.firebase.google.com/project/x/firestore/indexes?create_composite=abc", idx.Remediation)
	assert.ErrorIs(t, idx, model.ErrMisconfigured)

	_, ok = DetectIndexError(errors.New("connection refused"))
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify("get", sql.ErrNoRows), model.ErrNotFound)
	assert.Nil(t, classify("get", nil))
}
