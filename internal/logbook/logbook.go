package logbook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"academy/internal/blob"
	"academy/internal/errreport"
	"academy/internal/live"
	"academy/internal/media"
	"academy/internal/metrics"
	"academy/internal/model"
	"academy/internal/notify"
	"academy/internal/queue"
	"academy/internal/visibility"
)

// Repository persists entries and resolves the student they belong to.
type Repository interface {
	GetStudent(ctx context.Context, id string) (model.Student, error)
	InsertEntry(ctx context.Context, e model.Entry) (model.Entry, error)
	GetEntry(ctx context.Context, studentID, entryID string) (model.Entry, error)
	DeleteEntry(ctx context.Context, studentID, entryID string) error
	ListEntries(ctx context.Context, studentID string) ([]model.Entry, error)
	ListEntriesBetween(ctx context.Context, start, end time.Time) ([]model.Entry, error)
}

// Notifier tells a guardian about a new entry.
type Notifier interface {
	NotifyGuardian(ctx context.Context, phone, templateID string, p notify.Params) error
}

// Stage is a step of entry creation.
type Stage string

const (
	StageDrafting  Stage = "DRAFTING"
	StageUploading Stage = "UPLOADING"
	StageWriting   Stage = "WRITING"
	StageCommitted Stage = "COMMITTED"
	StageFailed    Stage = "FAILED"
)

// ProgressFunc observes stage changes and upload progress (0..100).
type ProgressFunc func(stage Stage, percent int)

// Deps are the collaborators of the learning log. Repo and Blobs are
// required; the rest may be nil.
type Deps struct {
	Repo     Repository
	Blobs    blob.Store
	Notifier Notifier
	Hub      live.Hub
	Orphans  queue.Queue
	Images   media.Downscaler
	Metrics  *metrics.Metrics
	Reporter errreport.Reporter
}

// Options tune the learning log.
type Options struct {
	MaxMediaBytes     int64
	TemplateID        string
	NotifyByDefault   bool
	PublicBaseURL     string
	Location          *time.Location
	OrphanMaxAttempts int
	OrphanBackoff     time.Duration
}

// Service is the append-only learning log.
type Service struct {
	repo     Repository
	blobs    blob.Store
	notifier Notifier
	hub      live.Hub
	orphans  queue.Queue
	images   media.Downscaler
	metrics  *metrics.Metrics
	reporter errreport.Reporter
	opts     Options
	now      func() time.Time
}

// NewService wires the learning log.
func NewService(d Deps, opts Options) *Service {
	if d.Reporter == nil {
		d.Reporter = errreport.Nop{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxMediaBytes <= 0 {
		opts.MaxMediaBytes = 200 << 20
	}
	if opts.TemplateID == "" {
		opts.TemplateID = "FEEDBACK_TEMPLATE"
	}
	if opts.OrphanMaxAttempts <= 0 {
		opts.OrphanMaxAttempts = 5
	}
	return &Service{
		repo:     d.Repo,
		blobs:    d.Blobs,
		notifier: d.Notifier,
		hub:      d.Hub,
		orphans:  d.Orphans,
		images:   d.Images,
		metrics:  d.Metrics,
		reporter: d.Reporter,
		opts:     opts,
		now:      time.Now,
	}
}

// MediaUpload is an attachment submitted with an entry.
type MediaUpload struct {
	Filename    string
	ContentType string
	Title       string
	Size        int64
	Body        io.Reader
}

// AppendInput is one new entry. Instrument defaults to the student's first
// subject. Notify nil means the configured default.
type AppendInput struct {
	StudentID  string
	Author     model.Staff
	Instrument string
	Progress   string
	Level      string
	Feedback   string
	Media      *MediaUpload
	Notify     *bool
}

// AppendResult is a committed entry. Warning is set when the entry was saved
// but the guardian was not notified.
type AppendResult struct {
	Entry      model.Entry `json:"entry"`
	ReportLink string      `json:"reportLink"`
	Notified   bool        `json:"notified"`
	Warning    string      `json:"warning,omitempty"`
}

// Append validates, uploads media, writes the entry and notifies the
// guardian. The upload always finishes before the record is written.
func (s *Service) Append(ctx context.Context, in AppendInput, progress ProgressFunc) (AppendResult, error) {
	if progress == nil {
		progress = func(Stage, int) {}
	}
	s.stage(in.StudentID, StageDrafting)
	progress(StageDrafting, 0)

	entry, mediaKind, err := s.draft(ctx, in)
	if err != nil {
		s.stage(in.StudentID, StageFailed)
		progress(StageFailed, 0)
		return AppendResult{}, err
	}

	var uploaded *blob.Object
	if in.Media != nil {
		s.stage(in.StudentID, StageUploading)
		obj, err := s.upload(ctx, in.StudentID, in.Media, func(p int) { progress(StageUploading, p) })
		if err != nil {
			s.stage(in.StudentID, StageFailed)
			progress(StageFailed, 0)
			return AppendResult{}, err
		}
		uploaded = &obj
		entry.Media = &model.Media{
			URL:         obj.URL,
			StoragePath: obj.Path,
			Type:        mediaKind,
			Title:       strings.TrimSpace(in.Media.Title),
		}
	}

	s.stage(in.StudentID, StageWriting)
	progress(StageWriting, 100)
	saved, err := s.repo.InsertEntry(ctx, entry)
	if err != nil {
		s.stage(in.StudentID, StageFailed)
		progress(StageFailed, 100)
		if uploaded != nil {
			s.releaseMedia(context.WithoutCancel(ctx), in.StudentID, "", uploaded.Path)
		}
		s.reporter.Report(err, map[string]any{"op": "append entry", "student": in.StudentID})
		return AppendResult{}, fmt.Errorf("append entry: %w", err)
	}

	s.stage(in.StudentID, StageCommitted)
	progress(StageCommitted, 100)
	if s.metrics != nil {
		s.metrics.EntriesCreated.Inc()
	}
	s.publish(ctx, live.EntriesTopic(in.StudentID))
	log.Printf("logbook: entry %s committed student=%s author=%s media=%t", saved.ID, saved.StudentID, saved.AuthorID, saved.Media != nil)

	res := AppendResult{Entry: saved, ReportLink: s.ReportLink(saved.StudentID, saved.ID)}
	if s.shouldNotify(in.Notify) {
		res.Notified, res.Warning = s.notifyGuardian(ctx, saved, res.ReportLink)
	}
	return res, nil
}

// draft validates the input and builds the entry without media.
func (s *Service) draft(ctx context.Context, in AppendInput) (model.Entry, model.MediaType, error) {
	e := model.Entry{
		StudentID:  strings.TrimSpace(in.StudentID),
		Progress:   strings.TrimSpace(in.Progress),
		Level:      strings.TrimSpace(in.Level),
		Feedback:   strings.TrimSpace(in.Feedback),
		AuthorID:   in.Author.ID,
		AuthorName: in.Author.DisplayName(),
	}
	if e.StudentID == "" {
		return model.Entry{}, "", model.Invalid("studentId required")
	}
	if e.Progress == "" && e.Level == "" && e.Feedback == "" && in.Media == nil {
		return model.Entry{}, "", model.Invalid("one of progress, level, feedback or media is required")
	}

	var kind model.MediaType
	if in.Media != nil {
		var ok bool
		if kind, ok = blob.MediaType(in.Media.ContentType); !ok {
			return model.Entry{}, "", model.Invalid("media must be an image or a video, got %q", in.Media.ContentType)
		}
		if in.Media.Size > s.opts.MaxMediaBytes {
			return model.Entry{}, "", model.Invalid("media is %d bytes, limit is %d", in.Media.Size, s.opts.MaxMediaBytes)
		}
	}

	student, err := s.repo.GetStudent(ctx, e.StudentID)
	if err != nil {
		return model.Entry{}, "", err
	}
	if !visibility.CanSee(in.Author, student) {
		return model.Entry{}, "", fmt.Errorf("%w: %s may not write entries for student %s", model.ErrUnauthorized, in.Author.DisplayName(), student.ID)
	}
	e.StudentName = student.Name

	if strings.TrimSpace(in.Instrument) == "" {
		e.Instrument = student.Instruments[0]
	} else {
		e.Instrument = model.ParseSubject(in.Instrument)
		if !model.HasSubject(student.Instruments, e.Instrument) {
			return model.Entry{}, "", model.Invalid("instrument %q is not one of the student's subjects", in.Instrument)
		}
	}
	return e, kind, nil
}

func (s *Service) upload(ctx context.Context, studentID string, m *MediaUpload, progress func(int)) (blob.Object, error) {
	body := io.LimitReader(m.Body, s.opts.MaxMediaBytes+1)
	size := m.Size
	contentType := m.ContentType

	if kind, _ := blob.MediaType(contentType); kind == model.MediaImage && s.images.MaxDimension > 0 {
		raw, err := io.ReadAll(body)
		if err != nil {
			return blob.Object{}, &model.StorageError{Reason: model.StorageUnknown, Err: err}
		}
		if raw, contentType, err = s.images.Prepare(raw, contentType); err != nil {
			return blob.Object{}, &model.StorageError{Reason: model.StorageUnknown, Err: err}
		}
		body, size = bytes.NewReader(raw), int64(len(raw))
	}

	counted := &countingReader{r: body, limit: s.opts.MaxMediaBytes}
	obj, err := s.blobs.Put(ctx, blob.Upload{
		Path:        blob.EntryMediaPath(studentID, s.now(), m.Filename),
		ContentType: contentType,
		Body:        counted,
		Size:        size,
		Progress:    progress,
	})
	if counted.exceeded {
		if err == nil {
			s.releaseMedia(context.WithoutCancel(ctx), studentID, "", obj.Path)
		}
		return blob.Object{}, model.Invalid("media exceeds %d bytes", s.opts.MaxMediaBytes)
	}
	if err != nil {
		log.Printf("logbook: upload for student %s failed: %v", studentID, err)
		return blob.Object{}, err
	}
	if s.metrics != nil {
		s.metrics.MediaUploadBytes.Add(float64(counted.n))
	}
	return obj, nil
}

func (s *Service) shouldNotify(flag *bool) bool {
	if s.notifier == nil {
		return false
	}
	if flag != nil {
		return *flag
	}
	return s.opts.NotifyByDefault
}

// notifyGuardian never fails the append; problems become a warning.
func (s *Service) notifyGuardian(ctx context.Context, e model.Entry, link string) (bool, string) {
	student, err := s.repo.GetStudent(ctx, e.StudentID)
	if err != nil {
		return false, "기록은 저장되었지만 학생 정보를 찾지 못해 알림톡을 보내지 못했습니다."
	}
	err = s.notifier.NotifyGuardian(ctx, student.Phone, s.opts.TemplateID, notify.Params{
		StudentName: student.Name,
		ReportLink:  link,
	})
	switch {
	case err == nil:
		return true, ""
	case errors.Is(err, model.ErrMisconfigured):
		return false, "알림톡 설정이 없어 전송을 건너뛰었습니다 (simulated)."
	default:
		log.Printf("logbook: notify guardian for entry %s failed: %v", e.ID, err)
		return false, "기록은 저장되었지만 알림톡 전송에 실패했습니다: " + err.Error()
	}
}

// ReportLink is the guardian-facing URL of one entry.
func (s *Service) ReportLink(studentID, entryID string) string {
	return fmt.Sprintf("%s/report/%s/%s", strings.TrimRight(s.opts.PublicBaseURL, "/"), studentID, entryID)
}

func (s *Service) stage(studentID string, st Stage) {
	if s.metrics != nil {
		s.metrics.EntryStages.WithLabelValues(string(st)).Inc()
	}
	if st == StageFailed {
		log.Printf("logbook: append for student %s reached %s", studentID, st)
	}
}

func (s *Service) publish(ctx context.Context, topic string) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(context.WithoutCancel(ctx), topic); err != nil {
		log.Printf("logbook: publish %s failed: %v", topic, err)
	}
}

type countingReader struct {
	r        io.Reader
	n        int64
	limit    int64
	exceeded bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.limit {
		c.exceeded = true
		return n, errors.New("media too large")
	}
	return n, err
}
