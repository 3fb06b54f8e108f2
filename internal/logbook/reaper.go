package logbook

import (
	"context"
	"log"
	"time"

	"academy/internal/queue"
)

// ReapOrphans consumes media delete requests from q until ctx ends or the
// queue closes. Requests that are not yet due wait in a local set while
// due ones keep flowing; on shutdown the waiting set goes back on the queue.
func (s *Service) ReapOrphans(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	var waiting []queue.MediaDelete
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		var wake <-chan time.Time
		if next, ok := earliest(waiting); ok {
			timer.Reset(max(next.Sub(s.now()), 0))
			wake = timer.C
		}
		select {
		case <-ctx.Done():
			s.requeue(ctx, waiting)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				s.requeue(ctx, waiting)
				return nil
			}
			md, err := queue.DecodeMediaDelete(msg)
			if err != nil {
				log.Printf("logbook: skipping queue message: %v", err)
			} else if md.NotBefore.After(s.now()) {
				waiting = append(waiting, md)
			} else {
				s.retry(ctx, md)
			}
		case <-wake:
			now := s.now()
			pending := waiting[:0]
			for _, md := range waiting {
				if md.NotBefore.After(now) {
					pending = append(pending, md)
					continue
				}
				s.retry(ctx, md)
			}
			waiting = pending
		}
		if wake != nil && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

func (s *Service) retry(ctx context.Context, md queue.MediaDelete) {
	if err := s.RetryOrphan(ctx, md); err != nil {
		log.Printf("logbook: %v", err)
	}
}

func (s *Service) requeue(ctx context.Context, waiting []queue.MediaDelete) {
	for _, md := range waiting {
		s.queueOrphan(ctx, md)
	}
}

func earliest(mds []queue.MediaDelete) (time.Time, bool) {
	if len(mds) == 0 {
		return time.Time{}, false
	}
	next := mds[0].NotBefore
	for _, md := range mds[1:] {
		if md.NotBefore.Before(next) {
			next = md.NotBefore
		}
	}
	return next, true
}
