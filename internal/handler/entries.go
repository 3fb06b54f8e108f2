package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"academy/internal/logbook"
	"academy/internal/model"
)

// ---------- Log entries ----------

type entryView struct {
	model.Entry
	ReportLink string `json:"reportLink"`
}

func (h *Handler) entryViews(entries []model.Entry) []entryView {
	out := make([]entryView, len(entries))
	for i, e := range entries {
		out[i] = entryView{Entry: e, ReportLink: h.logs.ReportLink(e.StudentID, e.ID)}
	}
	return out
}

type entryForm struct {
	Instrument string `form:"instrument" json:"instrument"`
	Progress   string `form:"progress" json:"progress"`
	Level      string `form:"level" json:"level"`
	Feedback   string `form:"feedback" json:"feedback"`
	MediaTitle string `form:"mediaTitle" json:"mediaTitle"`
	Notify     *bool  `form:"notify" json:"notify"`
}

// CreateEntry appends a log entry. It accepts JSON, or multipart form data
// with an optional "media" file part.
func (h *Handler) CreateEntry(c *gin.Context) {
	staff := currentStaff(c)
	ctx := c.Request.Context()
	studentID := c.Param("id")
	if _, err := h.dir.OpenStudent(ctx, staff, studentID); err != nil {
		writeError(c, err)
		return
	}

	var form entryForm
	var media *logbook.MediaUpload
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if h.maxUpload > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
		}
		if err := c.ShouldBind(&form); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "media too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		fh, err := c.FormFile("media")
		switch {
		case err == nil:
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read media"})
				return
			}
			defer f.Close()
			media = uploadFromPart(fh, f, form.MediaTitle)
		case !errors.Is(err, http.ErrMissingFile):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.logs.Append(ctx, logbook.AppendInput{
		StudentID:  studentID,
		Author:     staff,
		Instrument: form.Instrument,
		Progress:   form.Progress,
		Level:      form.Level,
		Feedback:   form.Feedback,
		Media:      media,
		Notify:     form.Notify,
	}, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func uploadFromPart(fh *multipart.FileHeader, f multipart.File, title string) *logbook.MediaUpload {
	return &logbook.MediaUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Title:       title,
		Size:        fh.Size,
		Body:        f,
	}
}

func (h *Handler) ListEntries(c *gin.Context) {
	ctx := c.Request.Context()
	studentID := c.Param("id")
	if _, err := h.dir.OpenStudent(ctx, currentStaff(c), studentID); err != nil {
		writeError(c, err)
		return
	}
	entries, err := h.logs.ListForStudent(ctx, studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": h.entryViews(entries)})
}

func (h *Handler) StreamEntries(c *gin.Context) {
	ctx := c.Request.Context()
	studentID := c.Param("id")
	if _, err := h.dir.OpenStudent(ctx, currentStaff(c), studentID); err != nil {
		writeError(c, err)
		return
	}
	ch, stop, err := h.logs.WatchStudent(ctx, studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	streamSnapshots(c, "entries", ch, stop, func(e []model.Entry) any {
		return gin.H{"entries": h.entryViews(e)}
	})
}

// DeleteEntry removes the entry record; attached media is released on a
// best-effort basis.
func (h *Handler) DeleteEntry(c *gin.Context) {
	ctx := c.Request.Context()
	studentID := c.Param("id")
	if _, err := h.dir.OpenStudent(ctx, currentStaff(c), studentID); err != nil {
		writeError(c, err)
		return
	}
	if err := h.logs.Delete(ctx, studentID, c.Param("entryId")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Calendar ----------

// Calendar returns per-day entry counts for ?month=YYYY-MM, defaulting to
// the current month.
func (h *Handler) Calendar(c *gin.Context) {
	month := c.DefaultQuery("month", h.now().In(h.loc).Format("2006-01"))
	t, err := h.logs.ParseMonth(month)
	if err != nil {
		writeError(c, err)
		return
	}
	cal, err := h.logs.Calendar(c.Request.Context(), t)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cal)
}

func (h *Handler) DailyRoster(c *gin.Context) {
	day, err := h.logs.ParseDay(c.Param("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	entries, err := h.logs.DailyRoster(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day.Format("2006-01-02"), "entries": h.entryViews(entries)})
}
