package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"academy/internal/directory"
	"academy/internal/model"
	"academy/internal/visibility"
)

// ---------- Students ----------

type studentFilter struct {
	Query   string
	Subject string
}

func studentFilterFrom(c *gin.Context) studentFilter {
	return studentFilter{Query: c.Query("q"), Subject: c.Query("subject")}
}

func (f studentFilter) apply(students []model.Student) []model.Student {
	out := visibility.Search(students, f.Query)
	if f.Subject != "" {
		out = visibility.WithSubject(out, model.ParseSubject(f.Subject))
	}
	if out == nil {
		out = []model.Student{}
	}
	return out
}

// ListStudents returns the students the caller may see, optionally narrowed
// by ?q= (name or phone digits) and ?subject=.
func (h *Handler) ListStudents(c *gin.Context) {
	f := studentFilterFrom(c)
	students, err := h.dir.VisibleStudents(c.Request.Context(), currentStaff(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": f.apply(students)})
}

// StreamStudents pushes the visible list on every directory change.
func (h *Handler) StreamStudents(c *gin.Context) {
	f := studentFilterFrom(c)
	ch, stop, err := h.dir.WatchVisibleStudents(c.Request.Context(), currentStaff(c))
	if err != nil {
		writeError(c, err)
		return
	}
	streamSnapshots(c, "students", ch, stop, func(s []model.Student) any {
		return gin.H{"students": f.apply(s)}
	})
}

func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.dir.OpenStudent(c.Request.Context(), currentStaff(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) CreateStudent(c *gin.Context) {
	var req directory.NewStudent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.dir.CreateStudent(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) UpdateStudent(c *gin.Context) {
	var req directory.StudentUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.dir.UpdateStudent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// DeleteStudent removes the student together with its log entries and media.
func (h *Handler) DeleteStudent(c *gin.Context) {
	if err := h.dir.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
