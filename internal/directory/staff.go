package directory

import (
	"context"
	"fmt"
	"strings"

	"academy/internal/live"
	"academy/internal/model"
	"academy/internal/validate"
)

// NewStaff is the input for CreateStaff.
type NewStaff struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name"`
	Role    string `json:"role" validate:"required,oneof=admin teacher"`
	Subject string `json:"subject" validate:"required_if=Role teacher"`
	Phone   string `json:"phone" validate:"omitempty,phone"`
}

// StaffUpdate changes the non-nil fields of a staff record.
type StaffUpdate struct {
	Email   *string `json:"email"`
	Name    *string `json:"name"`
	Role    *string `json:"role"`
	Subject *string `json:"subject"`
	Phone   *string `json:"phone"`
}

// CreateStaff validates and stores a staff member. A teacher needs a known
// subject; an admin's subject is cleared.
func (s *Service) CreateStaff(ctx context.Context, in NewStaff) (model.Staff, error) {
	st, err := staffFromInput(in)
	if err != nil {
		return model.Staff{}, err
	}
	out, err := s.repo.CreateStaff(ctx, st)
	if err != nil {
		return model.Staff{}, fmt.Errorf("create staff: %w", err)
	}
	s.publish(ctx, live.TopicStaff)
	return out, nil
}

// UpdateStaff applies a partial update and re-validates the result.
func (s *Service) UpdateStaff(ctx context.Context, id string, in StaffUpdate) (model.Staff, error) {
	cur, err := s.repo.GetStaff(ctx, id)
	if err != nil {
		return model.Staff{}, err
	}
	merged := NewStaff{
		Email:   cur.Email,
		Name:    cur.Name,
		Role:    string(cur.Role),
		Subject: string(cur.Subject),
		Phone:   cur.Phone,
	}
	if in.Email != nil {
		merged.Email = *in.Email
	}
	if in.Name != nil {
		merged.Name = *in.Name
	}
	if in.Role != nil {
		merged.Role = *in.Role
	}
	if in.Subject != nil {
		merged.Subject = *in.Subject
	}
	if in.Phone != nil {
		merged.Phone = *in.Phone
	}
	st, err := staffFromInput(merged)
	if err != nil {
		return model.Staff{}, err
	}
	st.ID = id
	out, err := s.repo.UpdateStaff(ctx, st)
	if err != nil {
		return model.Staff{}, fmt.Errorf("update staff: %w", err)
	}
	s.publish(ctx, live.TopicStaff)
	return out, nil
}

// DeleteStaff removes a staff record. Tokens are checked against the
// directory, so the member loses access immediately.
func (s *Service) DeleteStaff(ctx context.Context, id string) error {
	if err := s.repo.DeleteStaff(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, live.TopicStaff)
	return nil
}

// GetStaff returns one staff member.
func (s *Service) GetStaff(ctx context.Context, id string) (model.Staff, error) {
	return s.repo.GetStaff(ctx, id)
}

// GetStaffByEmail returns a staff member by email.
func (s *Service) GetStaffByEmail(ctx context.Context, email string) (model.Staff, error) {
	return s.repo.GetStaffByEmail(ctx, strings.TrimSpace(email))
}

// ListStaff returns staff newest first; an empty role lists everyone.
func (s *Service) ListStaff(ctx context.Context, role model.Role) ([]model.Staff, error) {
	return s.repo.ListStaff(ctx, role)
}

// WatchStaff streams the staff list on every change.
func (s *Service) WatchStaff(ctx context.Context, role model.Role) (<-chan []model.Staff, func(), error) {
	return live.Snapshots(ctx, s.hub, live.TopicStaff, func(ctx context.Context) ([]model.Staff, error) {
		return s.repo.ListStaff(ctx, role)
	})
}

func staffFromInput(in NewStaff) (model.Staff, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Role = strings.TrimSpace(in.Role)
	in.Subject = strings.TrimSpace(in.Subject)
	if err := validate.Struct(in); err != nil {
		return model.Staff{}, err
	}
	st := model.Staff{
		Email: in.Email,
		Name:  strings.TrimSpace(in.Name),
		Role:  model.Role(in.Role),
		Phone: strings.TrimSpace(in.Phone),
	}
	if st.IsTeacher() {
		st.Subject = model.ParseSubject(in.Subject)
		if !st.Subject.Known() {
			return model.Staff{}, &model.ValidationError{Fields: []model.FieldError{{Field: "subject", Error: "unknown subject " + in.Subject}}}
		}
	}
	return st, nil
}
