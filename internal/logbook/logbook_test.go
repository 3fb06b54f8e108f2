package logbook

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academy/internal/blob"
	"academy/internal/live"
	"academy/internal/metrics"
	"academy/internal/model"
	"academy/internal/notify"
	"academy/internal/queue"
	"academy/internal/store"
)

type stubNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

type notifyCall struct {
	phone, template string
	params          notify.Params
}

func (n *stubNotifier) NotifyGuardian(_ context.Context, phone, templateID string, p notify.Params) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{phone, templateID, p})
	return n.err
}

type fixture struct {
	svc      *Service
	repo     *store.Memory
	blobs    *blob.Memory
	hub      *live.Memory
	orphans  *queue.InMemory
	notifier *stubNotifier
	metrics  *metrics.Metrics
	admin    model.Staff
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     store.NewMemory(),
		blobs:    blob.NewMemory(),
		hub:      live.NewMemory(),
		orphans:  queue.NewInMemory(16),
		notifier: &stubNotifier{},
		metrics:  metrics.New(),
		admin:    model.Staff{ID: "admin-1", Name: "원장", Role: model.RoleAdmin},
	}
	f.svc = NewService(Deps{
		Repo:     f.repo,
		Blobs:    f.blobs,
		Notifier: f.notifier,
		Hub:      f.hub,
		Orphans:  f.orphans,
		Metrics:  f.metrics,
	}, Options{
		TemplateID:      "FEEDBACK_TEMPLATE",
		NotifyByDefault: true,
		PublicBaseURL:   "https://academy.test/",
		OrphanBackoff:   time.Second,
	})
	return f
}

func (f *fixture) student(t *testing.T, name string, subjects ...model.Subject) model.Student {
	t.Helper()
	st, err := f.repo.CreateStudent(context.Background(), model.Student{
		Name: name, Phone: "010-1111-2222", Instruments: subjects, Status: model.StatusRegistered,
	})
	require.NoError(t, err)
	return st
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestAppendKimScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	kim := f.student(t, "Kim", model.SubjectPiano)

	res, err := f.svc.Append(ctx, AppendInput{
		StudentID:  kim.ID,
		Author:     f.admin,
		Instrument: "Piano",
		Feedback:   "good tempo",
	}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Entry.ID)
	assert.Equal(t, "Kim", res.Entry.StudentName)
	assert.Equal(t, model.SubjectPiano, res.Entry.Instrument)
	assert.Equal(t, "원장", res.Entry.AuthorName)
	assert.True(t, res.Notified)
	assert.Empty(t, res.Warning)
	assert.Equal(t, "https://academy.test/report/"+kim.ID+"/"+res.Entry.ID, res.ReportLink)

	entries, err := f.svc.ListForStudent(ctx, kim.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.Entry.ID, entries[0].ID)

	require.Len(t, f.notifier.calls, 1)
	call := f.notifier.calls[0]
	assert.Equal(t, "010-1111-2222", call.phone)
	assert.Equal(t, "FEEDBACK_TEMPLATE", call.template)
	assert.Equal(t, notify.Params{StudentName: "Kim", ReportLink: res.ReportLink}, call.params)
	assert.Equal(t, 1.0, counterValue(t, f.metrics.EntriesCreated))
}

func TestAppendRequiresContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.student(t, "Lee", model.SubjectViolin)

	_, err := f.svc.Append(ctx, AppendInput{StudentID: st.ID, Author: f.admin, Progress: "  "}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	cases := map[string]AppendInput{
		"progress": {Progress: "Suzuki 2"},
		"level":    {Level: "beginner"},
		"feedback": {Feedback: "bow hold improved"},
		"media":    {Media: &MediaUpload{Filename: "a.png", ContentType: "image/png", Size: 3, Body: strings.NewReader("png")}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			in.StudentID = st.ID
			in.Author = f.admin
			res, err := f.svc.Append(ctx, in, nil)
			require.NoError(t, err)
			assert.Equal(t, model.SubjectViolin, res.Entry.Instrument)
		})
	}
}

func TestAppendRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	piano := f.student(t, "Park", model.SubjectPiano)
	violinTeacher := model.Staff{ID: "t1", Role: model.RoleTeacher, Subject: model.SubjectViolin}

	_, err := f.svc.Append(ctx, AppendInput{StudentID: piano.ID, Author: f.admin, Instrument: "cello", Feedback: "x"}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = f.svc.Append(ctx, AppendInput{StudentID: piano.ID, Author: violinTeacher, Feedback: "x"}, nil)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = f.svc.Append(ctx, AppendInput{StudentID: "missing", Author: f.admin, Feedback: "x"}, nil)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.svc.Append(ctx, AppendInput{StudentID: piano.ID, Author: f.admin, Media: &MediaUpload{
		Filename: "score.pdf", ContentType: "application/pdf", Size: 3, Body: strings.NewReader("pdf"),
	}}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Zero(t, f.blobs.Len())
	assert.Empty(t, f.notifier.calls)
}

func TestAppendMediaLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.opts.MaxMediaBytes = 1 << 20
	st := f.student(t, "Choi", model.SubjectDrums)

	_, err := f.svc.Append(ctx, AppendInput{StudentID: st.ID, Author: f.admin, Media: &MediaUpload{
		Filename: "big.mp4", ContentType: "video/mp4", Size: 2 << 20, Body: bytes.NewReader(make([]byte, 2<<20)),
	}}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	// Size understated by the client: the stream is still capped.
	_, err = f.svc.Append(ctx, AppendInput{StudentID: st.ID, Author: f.admin, Media: &MediaUpload{
		Filename: "big.mp4", ContentType: "video/mp4", Size: 10, Body: bytes.NewReader(make([]byte, 2<<20)),
	}}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Zero(t, f.blobs.Len())
}

// orderingRepo records what the entry looked like at the moment it was written.
type orderingRepo struct {
	*store.Memory
	blobs   *blob.Memory
	written []model.Entry
	present []bool
}

func (r *orderingRepo) InsertEntry(ctx context.Context, e model.Entry) (model.Entry, error) {
	r.written = append(r.written, e)
	r.present = append(r.present, e.Media != nil && r.blobs.Has(e.Media.StoragePath))
	return r.Memory.InsertEntry(ctx, e)
}

func TestAppendUploadsMediaBeforeWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repo := &orderingRepo{Memory: f.repo, blobs: f.blobs}
	f.svc.repo = repo
	f.svc.now = func() time.Time { return time.UnixMilli(1717000000000) }
	st := f.student(t, "Jung", model.SubjectPiano)

	var stages []Stage
	var lastUpload int
	res, err := f.svc.Append(ctx, AppendInput{
		StudentID: st.ID,
		Author:    f.admin,
		Media: &MediaUpload{
			Filename:    "recital photo.jpg",
			ContentType: "image/jpeg",
			Title:       "Recital",
			Size:        10 << 20,
			Body:        bytes.NewReader(make([]byte, 10<<20)),
		},
	}, func(stage Stage, pct int) {
		if len(stages) == 0 || stages[len(stages)-1] != stage {
			stages = append(stages, stage)
		}
		if stage == StageUploading {
			lastUpload = pct
		}
	})
	require.NoError(t, err)

	require.Len(t, repo.written, 1)
	require.NotNil(t, repo.written[0].Media)
	assert.NotEmpty(t, repo.written[0].Media.URL)
	assert.True(t, repo.present[0], "blob stored before the record write")
	assert.Equal(t, []Stage{StageDrafting, StageUploading, StageWriting, StageCommitted}, stages)
	assert.Equal(t, 100, lastUpload)

	m := res.Entry.Media
	require.NotNil(t, m)
	assert.Equal(t, "logs/"+st.ID+"/1717000000000_recital_photo.jpg", m.StoragePath)
	assert.Equal(t, model.MediaImage, m.Type)
	assert.Equal(t, "Recital", m.Title)
	assert.Len(t, f.blobs.Bytes(m.StoragePath), 10<<20)
}

func TestAppendWriteFailureReleasesUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.student(t, "Han", model.SubjectGuitar)
	f.repo.FailInsert = errors.New("db unavailable")

	var final Stage
	_, err := f.svc.Append(ctx, AppendInput{StudentID: st.ID, Author: f.admin, Media: &MediaUpload{
		Filename: "clip.mp4", ContentType: "video/mp4", Size: 4, Body: strings.NewReader("clip"),
	}}, func(stage Stage, _ int) { final = stage })
	require.Error(t, err)
	assert.Equal(t, StageFailed, final)
	assert.Zero(t, f.blobs.Len())
	assert.Empty(t, f.notifier.calls)
}

func TestAppendUploadFailureIsStorageError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.student(t, "Han", model.SubjectGuitar)
	f.blobs.FailPut = errors.New("bucket gone")

	_, err := f.svc.Append(ctx, AppendInput{StudentID: st.ID, Author: f.admin, Media: &MediaUpload{
		Filename: "clip.mp4", ContentType: "video/mp4", Size: 4, Body: strings.NewReader("clip"),
	}}, nil)
	assert.ErrorIs(t, err, model.ErrStorage)
	entries, err := f.svc.ListForStudent(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppendNotificationWarnings(t *testing.T) {
	ctx := context.Background()

	t.Run("upstream failure", func(t *testing.T) {
		f := newFixture(t)
		st := f.student(t, "Kim", model.SubjectPiano)
		f.notifier.err = &model.UpstreamError{Status: 400, Message: "Invalid template"}
		res, err := f.svc.Append(ctx, AppendInput{StudentID: st.ID, Author: f.admin, Feedback: "ok"}, nil)
		require.NoError(t, err)
		assert.False(t, res.Notified)
		assert.Contains(t, res.Warning, "Invalid template")
		entries, _ := f.svc.ListForStudent(ctx, st.ID)
		assert.Len(t, entries, 1)
	})

	t.Run("keys missing", func(t *testing.T) {
		f := newFixture(t)
		st := f.student(t, "Kim", model.SubjectPiano)
		f.notifier.err = model.ErrMisconfigured
		res, err := f.svc.Append(ctx, AppendInput{StudentID: st.ID, Author: f.admin, Feedback: "ok"}, nil)
		require.NoError(t, err)
		assert.False(t, res.Notified)
		assert.Contains(t, res.Warning, "simulated")
	})

	t.Run("opted out", func(t *testing.T) {
		f := newFixture(t)
		st := f.student(t, "Kim", model.SubjectPiano)
		no := false
		res, err := f.svc.Append(ctx, AppendInput{StudentID: st.ID, Author: f.admin, Feedback: "ok", Notify: &no}, nil)
		require.NoError(t, err)
		assert.False(t, res.Notified)
		assert.Empty(t, res.Warning)
		assert.Empty(t, f.notifier.calls)
	})
}

func TestDeleteReleasesMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.student(t, "Yoon", model.SubjectCello)
	res, err := f.svc.Append(ctx, AppendInput{StudentID: st.ID, Author: f.admin, Media: &MediaUpload{
		Filename: "a.png", ContentType: "image/png", Size: 3, Body: strings.NewReader("png"),
	}}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, f.blobs.Len())

	require.NoError(t, f.svc.Delete(ctx, st.ID, res.Entry.ID))
	assert.Zero(t, f.blobs.Len())
	assert.Zero(t, f.orphans.Len())
	_, err = f.repo.GetEntry(ctx, st.ID, res.Entry.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, st.ID, res.Entry.ID), model.ErrNotFound)
}

func TestDeleteSucceedsWhenBlobDeleteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.student(t, "Yoon", model.SubjectCello)
	res, err := f.svc.Append(ctx, AppendInput{StudentID: st.ID, Author: f.admin, Media: &MediaUpload{
		Filename: "a.png", ContentType: "image/png", Size: 3, Body: strings.NewReader("png"),
	}}, nil)
	require.NoError(t, err)

	f.blobs.FailDelete = errors.New("permission denied")
	require.NoError(t, f.svc.Delete(ctx, st.ID, res.Entry.ID))

	entries, err := f.svc.ListForStudent(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, f.orphans.Len())
	assert.Equal(t, 1.0, counterValue(t, f.metrics.OrphanedMedia.WithLabelValues("queued")))
}

func TestDeleteReturnsWhenOrphanQueueIsFull(t *testing.T) {
	f := newFixture(t)
	st := f.student(t, "Yoon", model.SubjectCello)
	res, err := f.svc.Append(context.Background(), AppendInput{StudentID: st.ID, Author: f.admin, Media: &MediaUpload{
		Filename: "a.png", ContentType: "image/png", Size: 3, Body: strings.NewReader("png"),
	}}, nil)
	require.NoError(t, err)

	for {
		err := f.orphans.Publish(context.Background(), queue.Message{Type: queue.TypeMediaDelete})
		if err != nil {
			require.ErrorIs(t, err, queue.ErrFull)
			break
		}
	}
	f.blobs.FailDelete = errors.New("permission denied")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.svc.Delete(ctx, st.ID, res.Entry.ID) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("delete blocked on a full orphan queue")
	}

	_, err = f.repo.GetEntry(context.Background(), st.ID, res.Entry.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 1.0, counterValue(t, f.metrics.OrphanedMedia.WithLabelValues("lost")))
}

func TestRetryOrphan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.opts.OrphanMaxAttempts = 3
	_, err := f.blobs.Put(ctx, blob.Upload{Path: "logs/s1/1_a.png", Body: strings.NewReader("x")})
	require.NoError(t, err)

	f.blobs.FailDelete = errors.New("still failing")
	require.NoError(t, f.svc.RetryOrphan(ctx, queue.MediaDelete{Path: "logs/s1/1_a.png", Attempts: 1}))
	assert.Equal(t, 1, f.orphans.Len())

	err = f.svc.RetryOrphan(ctx, queue.MediaDelete{Path: "logs/s1/1_a.png", Attempts: 2})
	assert.Error(t, err)
	assert.Equal(t, 1.0, counterValue(t, f.metrics.OrphanedMedia.WithLabelValues("abandoned")))

	f.blobs.FailDelete = nil
	require.NoError(t, f.svc.RetryOrphan(ctx, queue.MediaDelete{Path: "logs/s1/1_a.png", Attempts: 2}))
	assert.False(t, f.blobs.Has("logs/s1/1_a.png"))
}

func TestListBetweenMissingIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repo.DropRangeIndex()

	_, err := f.svc.ListBetween(ctx, time.Now().Add(-time.Hour), time.Now())
	var idx *model.IndexMissingError
	require.ErrorAs(t, err, &idx)
	assert.NotEmpty(t, idx.Remediation)

	_, err = f.svc.ListBetween(ctx, time.Now(), time.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestCalendarAndRoster(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	f.svc.opts.Location = seoul
	st := f.student(t, "Kim", model.SubjectPiano)

	times := []time.Time{
		time.Date(2024, 5, 5, 0, 30, 0, 0, seoul), // 2024-05-04 15:30 UTC
		time.Date(2024, 5, 5, 18, 0, 0, 0, seoul),
		time.Date(2024, 5, 20, 10, 0, 0, 0, seoul),
		time.Date(2024, 6, 1, 10, 0, 0, 0, seoul),
	}
	i := 0
	f.repo.SetClock(func() time.Time { ts := times[i]; i++; return ts.UTC() })
	for range times {
		_, err := f.repo.InsertEntry(ctx, model.Entry{StudentID: st.ID, StudentName: "Kim", Feedback: "ok"})
		require.NoError(t, err)
	}

	month, err := f.svc.ParseMonth("2024-05")
	require.NoError(t, err)
	cal, err := f.svc.Calendar(ctx, month)
	require.NoError(t, err)
	assert.Equal(t, "2024-05", cal.Month)
	require.Len(t, cal.Days, 31)
	assert.Equal(t, Day{Date: "2024-05-05", Entries: 2, Holiday: "어린이날"}, cal.Days[4])
	assert.Equal(t, 1, cal.Days[19].Entries)
	assert.Zero(t, cal.Days[0].Entries)

	day, err := f.svc.ParseDay("2024-05-05")
	require.NoError(t, err)
	roster, err := f.svc.DailyRoster(ctx, day)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.True(t, roster[0].CreatedAt.After(roster[1].CreatedAt))

	_, err = f.svc.ParseMonth("May")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestReportNameFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.student(t, "Kim", model.SubjectPiano)

	named, err := f.repo.InsertEntry(ctx, model.Entry{StudentID: st.ID, StudentName: "김민지", Feedback: "a"})
	require.NoError(t, err)
	unnamed, err := f.repo.InsertEntry(ctx, model.Entry{StudentID: st.ID, Feedback: "b"})
	require.NoError(t, err)

	r, err := f.svc.Report(ctx, st.ID, named.ID)
	require.NoError(t, err)
	assert.Equal(t, "김민지", r.StudentName)

	r, err = f.svc.Report(ctx, st.ID, unnamed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kim", r.StudentName)

	require.NoError(t, f.repo.DeleteStudent(ctx, st.ID))
	r, err = f.svc.Report(ctx, st.ID, unnamed.ID)
	require.NoError(t, err)
	assert.Equal(t, "학생", r.StudentName)

	_, err = f.svc.Report(ctx, "other", named.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPurgeStudent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.student(t, "Kim", model.SubjectPiano)
	other := f.student(t, "Lee", model.SubjectPiano)
	for _, id := range []string{st.ID, st.ID, other.ID} {
		_, err := f.svc.Append(ctx, AppendInput{StudentID: id, Author: f.admin, Media: &MediaUpload{
			Filename: "a.png", ContentType: "image/png", Size: 1, Body: strings.NewReader("x"),
		}}, nil)
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.PurgeStudent(ctx, st.ID))
	left, err := f.svc.ListForStudent(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Equal(t, 1, f.blobs.Len())
}

func TestWatchStudent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.student(t, "Kim", model.SubjectPiano)

	ch, cancel, err := f.svc.WatchStudent(ctx, st.ID)
	require.NoError(t, err)
	defer cancel()
	assert.Empty(t, <-ch)

	_, err = f.svc.Append(ctx, AppendInput{StudentID: st.ID, Author: f.admin, Feedback: "new"}, nil)
	require.NoError(t, err)
	select {
	case snap := <-ch:
		require.Len(t, snap, 1)
		assert.Equal(t, "new", snap[0].Feedback)
	case <-time.After(time.Second):
		t.Fatal("no live update")
	}
}

func TestReapOrphans(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, p := range []string{"logs/s1/1_a.png", "logs/s1/2_b.png"} {
		_, err := f.blobs.Put(ctx, blob.Upload{Path: p, ContentType: "image/png", Body: strings.NewReader("x")})
		require.NoError(t, err)
	}
	msg, err := queue.NewMediaDelete(queue.MediaDelete{Path: "logs/s1/1_a.png"})
	require.NoError(t, err)
	require.NoError(t, f.orphans.Publish(ctx, msg))
	require.NoError(t, f.orphans.Publish(ctx, queue.Message{Type: "unknown"}))
	msg, err = queue.NewMediaDelete(queue.MediaDelete{Path: "logs/s1/2_b.png", NotBefore: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	require.NoError(t, f.orphans.Publish(ctx, msg))

	done := make(chan error, 1)
	go func() { done <- f.svc.ReapOrphans(ctx, f.orphans) }()

	assert.Eventually(t, func() bool { return f.blobs.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
	assert.Equal(t, 2.0, counterValue(t, f.metrics.OrphanedMedia.WithLabelValues("deleted")))
}

func TestReapOrphansDoesNotWaitBehindLaterRequests(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, p := range []string{"logs/s1/1_a.png", "logs/s1/2_b.png"} {
		_, err := f.blobs.Put(ctx, blob.Upload{Path: p, ContentType: "image/png", Body: strings.NewReader("x")})
		require.NoError(t, err)
	}
	later, err := queue.NewMediaDelete(queue.MediaDelete{Path: "logs/s1/1_a.png", NotBefore: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, f.orphans.Publish(ctx, later))
	due, err := queue.NewMediaDelete(queue.MediaDelete{Path: "logs/s1/2_b.png"})
	require.NoError(t, err)
	require.NoError(t, f.orphans.Publish(ctx, due))

	done := make(chan error, 1)
	go func() { done <- f.svc.ReapOrphans(ctx, f.orphans) }()

	assert.Eventually(t, func() bool { return !f.blobs.Has("logs/s1/2_b.png") }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.blobs.Has("logs/s1/1_a.png"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
	require.Eventually(t, func() bool { return f.orphans.Len() == 1 }, time.Second, 10*time.Millisecond)
	md, err := queue.DecodeMediaDelete(<-mustConsume(t, f.orphans))
	require.NoError(t, err)
	assert.Equal(t, "logs/s1/1_a.png", md.Path)
}

func mustConsume(t *testing.T, q *queue.InMemory) <-chan queue.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	return ch
}
