package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"academy/internal/model"
)

// Postgres persists the directory and the learning log.
type Postgres struct {
	db         *sqlx.DB
	indexReady atomic.Bool
}

// NewPostgres creates a repository over an open connection.
func NewPostgres(db *DB) *Postgres {
	return &Postgres{db: db.Client}
}

type studentRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Phone       string         `db:"phone"`
	Instrument  sql.NullString `db:"instrument"`
	Instruments pq.StringArray `db:"instruments"`
	Status      string         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r studentRow) toModel() model.Student {
	return model.Student{
		ID:          r.ID,
		Name:        r.Name,
		Phone:       r.Phone,
		Instruments: model.NormalizeInstruments(r.Instrument.String, r.Instruments),
		Status:      model.ParseStatus(r.Status),
		CreatedAt:   r.CreatedAt,
	}
}

type staffRow struct {
	ID        string         `db:"id"`
	Email     string         `db:"email"`
	Name      string         `db:"name"`
	Role      string         `db:"role"`
	Subject   sql.NullString `db:"subject"`
	Phone     sql.NullString `db:"phone"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r staffRow) toModel() model.Staff {
	return model.Staff{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		Role:      model.Role(r.Role),
		Subject:   model.ParseSubject(r.Subject.String),
		Phone:     r.Phone.String,
		CreatedAt: r.CreatedAt,
	}
}

type entryRow struct {
	ID          string         `db:"id"`
	StudentID   string         `db:"student_id"`
	StudentName string         `db:"student_name"`
	Instrument  string         `db:"instrument"`
	Progress    string         `db:"progress"`
	Level       string         `db:"level"`
	Feedback    string         `db:"feedback"`
	AuthorID    string         `db:"author_id"`
	AuthorName  string         `db:"author_name"`
	CreatedAt   time.Time      `db:"created_at"`
	MediaURL    sql.NullString `db:"media_url"`
	MediaPath   sql.NullString `db:"media_path"`
	MediaType   sql.NullString `db:"media_type"`
	MediaTitle  sql.NullString `db:"media_title"`
}

func (r entryRow) toModel() model.Entry {
	e := model.Entry{
		ID:          r.ID,
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		Instrument:  model.ParseSubject(r.Instrument),
		Progress:    r.Progress,
		Level:       r.Level,
		Feedback:    r.Feedback,
		AuthorID:    r.AuthorID,
		AuthorName:  r.AuthorName,
		CreatedAt:   r.CreatedAt,
	}
	if r.MediaURL.Valid && r.MediaURL.String != "" {
		e.Media = &model.Media{
			URL:         r.MediaURL.String,
			StoragePath: r.MediaPath.String,
			Type:        model.MediaType(r.MediaType.String),
			Title:       r.MediaTitle.String,
		}
	}
	return e
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const studentColumns = `id, name, phone, instrument, instruments, status, created_at`

// CreateStudent inserts a student; the id and createdAt are assigned here.
func (p *Postgres) CreateStudent(ctx context.Context, s model.Student) (model.Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := p.db.QueryRowxContext(ctx, `
		INSERT INTO students (id, name, phone, instruments, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, s.ID, s.Name, s.Phone, pq.Array(model.SubjectStrings(s.Instruments)), string(s.Status))
	if err := row.Scan(&s.CreatedAt); err != nil {
		return model.Student{}, classify("create student", err)
	}
	return s, nil
}

// GetStudent returns a single student by id.
func (p *Postgres) GetStudent(ctx context.Context, id string) (model.Student, error) {
	var row studentRow
	if err := p.db.GetContext(ctx, &row, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		return model.Student{}, classify("get student", err)
	}
	return row.toModel(), nil
}

// UpdateStudent overwrites the mutable fields. The legacy scalar column is
// cleared so the list becomes the single source of truth.
func (p *Postgres) UpdateStudent(ctx context.Context, s model.Student) (model.Student, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE students
		SET name = $2, phone = $3, instrument = NULL, instruments = $4, status = $5
		WHERE id = $1
	`, s.ID, s.Name, s.Phone, pq.Array(model.SubjectStrings(s.Instruments)), string(s.Status))
	if err != nil {
		return model.Student{}, classify("update student", err)
	}
	if err := requireRow("update student", res); err != nil {
		return model.Student{}, err
	}
	return p.GetStudent(ctx, s.ID)
}

// DeleteStudent removes the student record only; entries are purged by the caller.
func (p *Postgres) DeleteStudent(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return classify("delete student", err)
	}
	return requireRow("delete student", res)
}

// ListStudents returns students newest first.
func (p *Postgres) ListStudents(ctx context.Context) ([]model.Student, error) {
	var rows []studentRow
	if err := p.db.SelectContext(ctx, &rows, `SELECT `+studentColumns+` FROM students ORDER BY created_at DESC, id`); err != nil {
		return nil, classify("list students", err)
	}
	out := make([]model.Student, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

const staffColumns = `id, email, name, role, subject, phone, created_at`

// CreateStaff inserts a staff record.
func (p *Postgres) CreateStaff(ctx context.Context, s model.Staff) (model.Staff, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := p.db.QueryRowxContext(ctx, `
		INSERT INTO staff (id, email, name, role, subject, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, s.ID, s.Email, s.Name, string(s.Role), nullString(string(s.Subject)), nullString(s.Phone))
	if err := row.Scan(&s.CreatedAt); err != nil {
		return model.Staff{}, classify("create staff", err)
	}
	return s, nil
}

// GetStaff returns a staff member by id.
func (p *Postgres) GetStaff(ctx context.Context, id string) (model.Staff, error) {
	var row staffRow
	if err := p.db.GetContext(ctx, &row, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id); err != nil {
		return model.Staff{}, classify("get staff", err)
	}
	return row.toModel(), nil
}

// GetStaffByEmail returns a staff member by email, case-insensitively.
func (p *Postgres) GetStaffByEmail(ctx context.Context, email string) (model.Staff, error) {
	var row staffRow
	if err := p.db.GetContext(ctx, &row, `SELECT `+staffColumns+` FROM staff WHERE lower(email) = lower($1)`, email); err != nil {
		return model.Staff{}, classify("get staff by email", err)
	}
	return row.toModel(), nil
}

// UpdateStaff overwrites the mutable fields of a staff record.
func (p *Postgres) UpdateStaff(ctx context.Context, s model.Staff) (model.Staff, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE staff SET email = $2, name = $3, role = $4, subject = $5, phone = $6
		WHERE id = $1
	`, s.ID, s.Email, s.Name, string(s.Role), nullString(string(s.Subject)), nullString(s.Phone))
	if err != nil {
		return model.Staff{}, classify("update staff", err)
	}
	if err := requireRow("update staff", res); err != nil {
		return model.Staff{}, err
	}
	return p.GetStaff(ctx, s.ID)
}

// DeleteStaff removes a staff record.
func (p *Postgres) DeleteStaff(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM staff WHERE id = $1`, id)
	if err != nil {
		return classify("delete staff", err)
	}
	return requireRow("delete staff", res)
}

// ListStaff returns staff newest first, optionally filtered by role.
func (p *Postgres) ListStaff(ctx context.Context, role model.Role) ([]model.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff`
	var args []any
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, string(role))
	}
	query += ` ORDER BY created_at DESC, id`
	var rows []staffRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify("list staff", err)
	}
	out := make([]model.Staff, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

const entryColumns = `id, student_id, student_name, instrument, progress, level, feedback,
	author_id, author_name, created_at, media_url, media_path, media_type, media_title`

// InsertEntry appends an entry. Entries are never updated in place.
func (p *Postgres) InsertEntry(ctx context.Context, e model.Entry) (model.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var m model.Media
	if e.Media != nil {
		m = *e.Media
	}
	row := p.db.QueryRowxContext(ctx, `
		INSERT INTO log_entries (id, student_id, student_name, instrument, progress, level, feedback,
			author_id, author_name, media_url, media_path, media_type, media_title)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at
	`, e.ID, e.StudentID, e.StudentName, string(e.Instrument), e.Progress, e.Level, e.Feedback,
		e.AuthorID, e.AuthorName, nullString(m.URL), nullString(m.StoragePath), nullString(string(m.Type)), nullString(m.Title))
	if err := row.Scan(&e.CreatedAt); err != nil {
		return model.Entry{}, classify("insert entry", err)
	}
	return e, nil
}

// GetEntry returns an entry of a student.
func (p *Postgres) GetEntry(ctx context.Context, studentID, entryID string) (model.Entry, error) {
	var row entryRow
	if err := p.db.GetContext(ctx, &row, `SELECT `+entryColumns+` FROM log_entries WHERE student_id = $1 AND id = $2`, studentID, entryID); err != nil {
		return model.Entry{}, classify("get entry", err)
	}
	return row.toModel(), nil
}

// DeleteEntry removes an entry record.
func (p *Postgres) DeleteEntry(ctx context.Context, studentID, entryID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM log_entries WHERE student_id = $1 AND id = $2`, studentID, entryID)
	if err != nil {
		return classify("delete entry", err)
	}
	return requireRow("delete entry", res)
}

// ListEntries returns the entries of one student, newest first.
func (p *Postgres) ListEntries(ctx context.Context, studentID string) ([]model.Entry, error) {
	var rows []entryRow
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT `+entryColumns+` FROM log_entries
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
	`, studentID); err != nil {
		return nil, classify("list entries", err)
	}
	return entryModels(rows), nil
}

// ListEntriesBetween returns entries of all students with start <= createdAt
// < end, newest first. It refuses to run without the createdAt index.
func (p *Postgres) ListEntriesBetween(ctx context.Context, start, end time.Time) ([]model.Entry, error) {
	if err := p.CheckRangeIndex(ctx); err != nil {
		return nil, err
	}
	var rows []entryRow
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT `+entryColumns+` FROM log_entries
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
	`, start, end); err != nil {
		return nil, classify("list entries between", err)
	}
	return entryModels(rows), nil
}

// CheckRangeIndex reports an IndexMissingError when the createdAt index has
// not been provisioned. A positive result is cached.
func (p *Postgres) CheckRangeIndex(ctx context.Context) error {
	if p.indexReady.Load() {
		return nil
	}
	var exists bool
	if err := p.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE tablename = 'log_entries' AND indexname = $1)
	`, RangeIndex); err != nil {
		return classify("check index", err)
	}
	if !exists {
		return &model.IndexMissingError{Index: RangeIndex, Remediation: RangeIndexDDL + " (or run `academyctl migrate`)"}
	}
	p.indexReady.Store(true)
	return nil
}

// InstrumentLabels counts the raw stored instrument labels, legacy scalar
// values included, before canonicalization.
func (p *Postgres) InstrumentLabels(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Label string `db:"label"`
		N     int    `db:"n"`
	}
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT label, COUNT(*) AS n FROM (
			SELECT instrument AS label FROM students WHERE instrument IS NOT NULL AND instrument <> ''
			UNION ALL
			SELECT unnest(instruments) AS label FROM students
		) labels
		GROUP BY label
		ORDER BY n DESC, label
	`); err != nil {
		return nil, classify("instrument labels", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Label] = r.N
	}
	return out, nil
}

// CanonicalizeInstruments rewrites every student whose stored instrument data
// differs from its canonical form. It returns the number of rewritten rows.
func (p *Postgres) CanonicalizeInstruments(ctx context.Context, dryRun bool) (int, error) {
	var rows []studentRow
	if err := p.db.SelectContext(ctx, &rows, `SELECT `+studentColumns+` FROM students`); err != nil {
		return 0, classify("canonicalize instruments", err)
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, classify("canonicalize instruments", err)
	}
	defer tx.Rollback() //nolint:errcheck

	changed := 0
	for _, r := range rows {
		canonical := storedSubjects(r.toModel().Instruments)
		if !r.Instrument.Valid && equalStrings(canonical, r.Instruments) {
			continue
		}
		changed++
		if dryRun {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE students SET instrument = NULL, instruments = $2 WHERE id = $1`, r.ID, pq.Array(canonical)); err != nil {
			return 0, classify("canonicalize instruments", err)
		}
	}
	if dryRun {
		return changed, nil
	}
	if err := tx.Commit(); err != nil {
		return 0, classify("canonicalize instruments", err)
	}
	return changed, nil
}

func entryModels(rows []entryRow) []model.Entry {
	out := make([]model.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

func requireRow(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return nil
}

// storedSubjects is the persisted form of a normalized subject list. The
// unassigned placeholder is a read-side value and is never written.
func storedSubjects(subjects []model.Subject) []string {
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if s != model.SubjectUnassigned {
			out = append(out, string(s))
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
