package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"academy/internal/directory"
	"academy/internal/model"
)

// ---------- Staff ----------

func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentStaff(c))
}

func (h *Handler) ListStaff(c *gin.Context) {
	staff, err := h.dir.ListStaff(c.Request.Context(), model.Role(c.Query("role")))
	if err != nil {
		writeError(c, err)
		return
	}
	if staff == nil {
		staff = []model.Staff{}
	}
	c.JSON(http.StatusOK, gin.H{"staff": staff})
}

func (h *Handler) StreamStaff(c *gin.Context) {
	ch, stop, err := h.dir.WatchStaff(c.Request.Context(), model.Role(c.Query("role")))
	if err != nil {
		writeError(c, err)
		return
	}
	streamSnapshots(c, "staff", ch, stop, func(s []model.Staff) any {
		return gin.H{"staff": s}
	})
}

func (h *Handler) GetStaff(c *gin.Context) {
	st, err := h.dir.GetStaff(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) CreateStaff(c *gin.Context) {
	var req directory.NewStaff
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.dir.CreateStaff(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) UpdateStaff(c *gin.Context) {
	var req directory.StaffUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.dir.UpdateStaff(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// DeleteStaff removes the record; existing tokens stop working on the next
// request because every request re-reads the directory.
func (h *Handler) DeleteStaff(c *gin.Context) {
	if c.Param("id") == currentStaff(c).ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete your own account"})
		return
	}
	if err := h.dir.DeleteStaff(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
