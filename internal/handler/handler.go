package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"academy/internal/auth"
	"academy/internal/directory"
	"academy/internal/logbook"
	"academy/internal/model"
	"academy/internal/notify"
	"academy/internal/visits"
)

// Deps are the services the HTTP layer calls into.
type Deps struct {
	Directory *directory.Service
	Logbook   *logbook.Service
	Notifier  *notify.Dispatcher
	Verifier  *auth.Verifier
	Visits    visits.Counter
	Location  *time.Location

	// Checks are probed by /healthz, keyed by component name.
	Checks map[string]func(context.Context) bool

	MaxUploadBytes int64
	SecureCookies  bool
}

type Handler struct {
	dir      *directory.Service
	logs     *logbook.Service
	notifier *notify.Dispatcher
	verifier *auth.Verifier
	visits   visits.Counter
	loc      *time.Location
	checks   map[string]func(context.Context) bool

	maxUpload     int64
	secureCookies bool
	now           func() time.Time
}

func New(d Deps) *Handler {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		dir:           d.Directory,
		logs:          d.Logbook,
		notifier:      d.Notifier,
		verifier:      d.Verifier,
		visits:        d.Visits,
		loc:           loc,
		checks:        d.Checks,
		maxUpload:     d.MaxUploadBytes,
		secureCookies: d.SecureCookies,
		now:           time.Now,
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, check := range h.checks {
		ok := check(ctx)
		checks[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

// ---------- Errors ----------

// writeError maps service errors onto status codes. Authentication failures
// are answered by the middleware; ErrUnauthorized here means the caller is
// known but may not see the resource.
func writeError(c *gin.Context, err error) {
	var (
		verr *model.ValidationError
		serr *model.StorageError
		ierr *model.IndexMissingError
		uerr *model.UpstreamError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "fields": verr.Fields})
	case errors.Is(err, model.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &ierr):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":       "query index missing",
			"index":       ierr.Index,
			"remediation": ierr.Remediation,
		})
	case errors.Is(err, model.ErrMisconfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service not configured"})
	case errors.As(err, &serr):
		c.JSON(http.StatusBadGateway, gin.H{"error": serr.Message(), "reason": serr.Reason})
	case errors.As(err, &uerr):
		c.JSON(http.StatusBadGateway, gin.H{"error": uerr.Message})
	default:
		log.Printf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func currentStaff(c *gin.Context) model.Staff {
	staff, _ := auth.CurrentStaff(c)
	return staff
}

// rawOrNil returns body as JSON when it parses, so upstream payloads are
// passed through untouched.
func rawOrNil(body []byte) any {
	if len(body) == 0 || !json.Valid(body) {
		return nil
	}
	return json.RawMessage(body)
}
