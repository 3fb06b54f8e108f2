package auth

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"academy/internal/model"
)

const staffKey = "staff"

// StaffAuth enforces bearer JWT tokens and loads the current staff record.
func StaffAuth(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		staff, err := v.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			if !errors.Is(err, model.ErrUnauthorized) {
				log.Printf("auth: staff lookup failed: %v", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth unavailable"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(staffKey, staff)
		c.Next()
	}
}

// RequireAdmin rejects non-admin staff. It must run after StaffAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		staff, ok := CurrentStaff(c)
		if !ok || !staff.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

// CurrentStaff returns the authenticated staff member.
func CurrentStaff(c *gin.Context) (model.Staff, bool) {
	v, ok := c.Get(staffKey)
	if !ok {
		return model.Staff{}, false
	}
	staff, ok := v.(model.Staff)
	return staff, ok
}
