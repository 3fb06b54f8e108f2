package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"academy/internal/auth"
	"academy/internal/model"
	"academy/internal/notify"
	"academy/internal/visits"
)

// ---------- Guardian messaging ----------

type sendRequest struct {
	Phone             string            `json:"phone"`
	TemplateID        string            `json:"templateId"`
	TemplateParameter map[string]string `json:"templateParameter"`
}

// SendAlimTalk relays one templated message to the provider. The body is
// checked before the caller's token, and missing provider keys are answered
// with a simulated success instead of an error.
func (h *Handler) SendAlimTalk(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.TemplateID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "phone and templateId are required"})
		return
	}

	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing bearer token"})
		return
	}
	if _, err := h.verifier.Verify(c.Request.Context(), token); err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
			return
		}
		log.Printf("handler: alimtalk auth lookup failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "auth unavailable"})
		return
	}

	receipt, err := h.notifier.Send(c.Request.Context(), notify.Message{
		Phone:      req.Phone,
		TemplateID: req.TemplateID,
		Parameters: req.TemplateParameter,
	})
	var uerr *model.UpstreamError
	switch {
	case err == nil:
		var data any = receipt
		if raw := rawOrNil(receipt.Raw); raw != nil {
			data = raw
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
	case errors.Is(err, model.ErrMisconfigured):
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "simulated"})
	case errors.Is(err, model.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.As(err, &uerr):
		body := gin.H{"success": false, "error": uerr.Message}
		if raw := rawOrNil(uerr.Body); raw != nil {
			body["detail"] = raw
		}
		c.JSON(http.StatusInternalServerError, body)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}

// ---------- Guardian report ----------

// Report is the page a guardian reaches from the notification link. It is
// public; the unguessable entry id is the capability.
func (h *Handler) Report(c *gin.Context) {
	rep, err := h.logs.Report(c.Request.Context(), c.Param("studentId"), c.Param("entryId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ---------- Visits ----------

const visitCookie = "academy_visit"

// RecordVisit counts one visit per browser per academy day.
func (h *Handler) RecordVisit(c *gin.Context) {
	now := h.now().In(h.loc)
	day := visits.DayKey(now, h.loc)
	ctx := c.Request.Context()

	if seen, err := c.Cookie(visitCookie); err == nil && seen == day {
		n, err := h.visits.Get(ctx, day)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": day, "count": n, "counted": false})
		return
	}

	n, err := h.visits.Increment(ctx, day)
	if err != nil {
		writeError(c, err)
		return
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, h.loc)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(visitCookie, day, int(midnight.Sub(now).Seconds())+1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"date": day, "count": n, "counted": true})
}

func (h *Handler) VisitsToday(c *gin.Context) {
	day := visits.DayKey(h.now(), h.loc)
	n, err := h.visits.Get(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day, "count": n})
}
