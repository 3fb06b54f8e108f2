package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"academy/internal/model"
)

// Upload describes one object to store.
type Upload struct {
	Path        string
	ContentType string
	Body        io.Reader
	Size        int64
	// Progress receives 0..100 as bytes are sent. Optional.
	Progress func(percent int)
}

// Object is a stored blob.
type Object struct {
	Path string
	URL  string
}

// Store is the blob storage contract used by the learning log.
type Store interface {
	Put(ctx context.Context, up Upload) (Object, error)
	Delete(ctx context.Context, path string) error
}

// EntryMediaPath builds logs/<studentId>/<unixMillis>_<filename>.
func EntryMediaPath(studentID string, at time.Time, filename string) string {
	return fmt.Sprintf("logs/%s/%d_%s", studentID, at.UnixMilli(), SanitizeFilename(filename))
}

// SanitizeFilename keeps the base name and replaces characters that are
// unsafe in object keys.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	clean := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
	clean = strings.Trim(clean, ".")
	if clean == "" || clean == "_" {
		return "file"
	}
	return clean
}

// MediaType maps a MIME type to the entry media kind.
func MediaType(contentType string) (model.MediaType, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return model.MediaImage, true
	case strings.HasPrefix(ct, "video/"):
		return model.MediaVideo, true
	}
	return "", false
}

// storageError classifies a backend failure by HTTP status and context state.
func storageError(ctx context.Context, status int, err error) error {
	if err == nil {
		return nil
	}
	var se *model.StorageError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.Canceled), ctx != nil && errors.Is(ctx.Err(), context.Canceled):
		return &model.StorageError{Reason: model.StorageCanceled, Err: err}
	case status == 401 || status == 403:
		return &model.StorageError{Reason: model.StoragePermissionDenied, Err: err}
	}
	return &model.StorageError{Reason: model.StorageUnknown, Err: err}
}

// progressReader reports read progress as a whole percentage.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  int
	fn    func(int)
}

func withProgress(r io.Reader, total int64, fn func(int)) io.Reader {
	if fn == nil {
		return r
	}
	fn(0)
	return &progressReader{r: r, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	pct := p.last
	if p.total > 0 {
		pct = int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
	}
	if err == io.EOF {
		pct = 100
	}
	if pct != p.last {
		p.last = pct
		p.fn(pct)
	}
	return n, err
}
