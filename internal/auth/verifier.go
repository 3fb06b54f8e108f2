package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"academy/internal/model"
)

// StaffLookup resolves a staff record by id.
type StaffLookup interface {
	GetStaff(ctx context.Context, id string) (model.Staff, error)
}

// Verifier checks bearer tokens and resolves them to a current staff record.
// A token for a deleted staff member is rejected.
type Verifier struct {
	key    string
	issuer string
	staff  StaffLookup
}

// NewVerifier creates a verifier.
func NewVerifier(key, issuer string, staff StaffLookup) *Verifier {
	return &Verifier{key: key, issuer: issuer, staff: staff}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(header[len("bearer "):])
	return tok, tok != ""
}

// Verify returns the staff member a token was issued to.
func (v *Verifier) Verify(ctx context.Context, token string) (model.Staff, error) {
	claims, err := Parse(token, v.key, v.issuer)
	if err != nil {
		return model.Staff{}, fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
	}
	staff, err := v.staff.GetStaff(ctx, claims.Subject)
	if errors.Is(err, model.ErrNotFound) {
		return model.Staff{}, fmt.Errorf("%w: staff %s no longer exists", model.ErrUnauthorized, claims.Subject)
	}
	if err != nil {
		return model.Staff{}, err
	}
	return staff, nil
}
