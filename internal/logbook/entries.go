package logbook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"academy/internal/live"
	"academy/internal/model"
	"academy/internal/queue"
)

// Delete removes an entry. Its media is deleted first; a failed blob delete
// is logged, counted and queued for retry but never blocks the removal.
func (s *Service) Delete(ctx context.Context, studentID, entryID string) error {
	e, err := s.repo.GetEntry(ctx, studentID, entryID)
	if err != nil {
		return err
	}
	if e.Media != nil && e.Media.StoragePath != "" {
		s.releaseMedia(ctx, studentID, entryID, e.Media.StoragePath)
	}
	if err := s.repo.DeleteEntry(ctx, studentID, entryID); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if s.metrics != nil {
		s.metrics.EntriesDeleted.Inc()
	}
	s.publish(ctx, live.EntriesTopic(studentID))
	return nil
}

// releaseMedia deletes a blob, handing it to the orphan queue on failure.
func (s *Service) releaseMedia(ctx context.Context, studentID, entryID, path string) {
	err := s.blobs.Delete(ctx, path)
	if err == nil {
		return
	}
	log.Printf("logbook: delete media %s failed, queueing retry: %v", path, err)
	s.reporter.Report(err, map[string]any{"op": "delete media", "path": path, "student": studentID, "entry": entryID})
	s.queueOrphan(ctx, queue.MediaDelete{
		Path:      path,
		StudentID: studentID,
		EntryID:   entryID,
		Attempts:  1,
		LastError: err.Error(),
		NotBefore: s.now().Add(s.opts.OrphanBackoff),
	})
}

// orphanPublishTimeout bounds a publish that outlives the caller's context.
const orphanPublishTimeout = 5 * time.Second

func (s *Service) queueOrphan(ctx context.Context, md queue.MediaDelete) {
	if s.orphans == nil {
		s.countOrphan("lost")
		log.Printf("logbook: no orphan queue, media %s left behind", md.Path)
		return
	}
	msg, err := queue.NewMediaDelete(md)
	if err == nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orphanPublishTimeout)
		err = s.orphans.Publish(pctx, msg)
		cancel()
	}
	if err != nil {
		s.countOrphan("lost")
		log.Printf("logbook: enqueue orphan %s failed: %v", md.Path, err)
		return
	}
	s.countOrphan("queued")
}

// RetryOrphan makes another attempt at deleting a blob whose entry is gone.
// It re-queues with backoff until the attempt budget is spent.
func (s *Service) RetryOrphan(ctx context.Context, md queue.MediaDelete) error {
	err := s.blobs.Delete(ctx, md.Path)
	if err == nil {
		s.countOrphan("deleted")
		log.Printf("logbook: orphan %s deleted after %d attempts", md.Path, md.Attempts+1)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	md.Attempts++
	md.LastError = err.Error()
	if md.Attempts >= s.opts.OrphanMaxAttempts {
		s.countOrphan("abandoned")
		s.reporter.Report(err, map[string]any{"op": "orphan abandoned", "path": md.Path, "attempts": md.Attempts})
		return fmt.Errorf("orphan %s abandoned after %d attempts: %w", md.Path, md.Attempts, err)
	}
	md.NotBefore = s.now().Add(s.opts.OrphanBackoff * time.Duration(md.Attempts))
	s.queueOrphan(ctx, md)
	return nil
}

func (s *Service) countOrphan(outcome string) {
	if s.metrics != nil {
		s.metrics.OrphanedMedia.WithLabelValues(outcome).Inc()
	}
}

// ListForStudent returns a student's entries, newest first.
func (s *Service) ListForStudent(ctx context.Context, studentID string) ([]model.Entry, error) {
	return s.repo.ListEntries(ctx, studentID)
}

// WatchStudent streams a student's entries on every change.
func (s *Service) WatchStudent(ctx context.Context, studentID string) (<-chan []model.Entry, func(), error) {
	return live.Snapshots(ctx, s.hub, live.EntriesTopic(studentID), func(ctx context.Context) ([]model.Entry, error) {
		return s.repo.ListEntries(ctx, studentID)
	})
}

// ListBetween returns entries of all students created in [start, end),
// newest first. A missing createdAt index is reported as
// *model.IndexMissingError, never as an empty result.
func (s *Service) ListBetween(ctx context.Context, start, end time.Time) ([]model.Entry, error) {
	if !end.After(start) {
		return nil, model.Invalid("end must be after start")
	}
	entries, err := s.repo.ListEntriesBetween(ctx, start, end)
	if err != nil {
		var idx *model.IndexMissingError
		if errors.As(err, &idx) {
			log.Printf("logbook: range query needs index %s: %s", idx.Index, idx.Remediation)
		}
		return nil, err
	}
	return entries, nil
}

// PurgeStudent deletes every entry of a student along with its media.
func (s *Service) PurgeStudent(ctx context.Context, studentID string) error {
	entries, err := s.repo.ListEntries(ctx, studentID)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := s.Delete(ctx, studentID, e.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(entries) > 0 {
		log.Printf("logbook: purged %d entries of student %s", len(entries)-len(errs), studentID)
	}
	return errors.Join(errs...)
}
