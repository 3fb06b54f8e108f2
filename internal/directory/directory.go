package directory

import (
	"context"
	"fmt"
	"log"
	"strings"

	"academy/internal/live"
	"academy/internal/model"
	"academy/internal/validate"
	"academy/internal/visibility"
)

// Repository persists students and staff.
type Repository interface {
	CreateStudent(ctx context.Context, s model.Student) (model.Student, error)
	GetStudent(ctx context.Context, id string) (model.Student, error)
	UpdateStudent(ctx context.Context, s model.Student) (model.Student, error)
	DeleteStudent(ctx context.Context, id string) error
	ListStudents(ctx context.Context) ([]model.Student, error)

	CreateStaff(ctx context.Context, s model.Staff) (model.Staff, error)
	GetStaff(ctx context.Context, id string) (model.Staff, error)
	GetStaffByEmail(ctx context.Context, email string) (model.Staff, error)
	UpdateStaff(ctx context.Context, s model.Staff) (model.Staff, error)
	DeleteStaff(ctx context.Context, id string) error
	ListStaff(ctx context.Context, role model.Role) ([]model.Staff, error)
}

// Purger removes everything recorded for a student before the record goes.
type Purger interface {
	PurgeStudent(ctx context.Context, studentID string) error
}

// Service is the directory of students and staff.
type Service struct {
	repo   Repository
	hub    live.Hub
	purger Purger
}

// NewService wires the directory. purger may be nil, in which case deleting
// a student leaves its entries in place.
func NewService(repo Repository, hub live.Hub, purger Purger) *Service {
	return &Service{repo: repo, hub: hub, purger: purger}
}

// NewStudent is the input for CreateStudent. Instrument is the legacy scalar
// form and is merged into Instruments.
type NewStudent struct {
	Name        string   `json:"name" validate:"notblank"`
	Phone       string   `json:"phone" validate:"notblank,phone"`
	Instrument  string   `json:"instrument"`
	Instruments []string `json:"instruments"`
	Status      string   `json:"status" validate:"omitempty,oneof=registered paused withdrawn 등록 휴원 퇴원"`
}

// StudentUpdate changes the non-nil fields of a student.
type StudentUpdate struct {
	Name        *string   `json:"name" validate:"omitempty,notblank"`
	Phone       *string   `json:"phone" validate:"omitempty,phone"`
	Instruments *[]string `json:"instruments"`
	Status      *string   `json:"status" validate:"omitempty,oneof=registered paused withdrawn 등록 휴원 퇴원"`
}

// CreateStudent validates and stores a new student.
func (s *Service) CreateStudent(ctx context.Context, in NewStudent) (model.Student, error) {
	if err := validate.Struct(in); err != nil {
		return model.Student{}, err
	}
	instruments, err := instrumentSet(in.Instrument, in.Instruments)
	if err != nil {
		return model.Student{}, err
	}
	st, err := s.repo.CreateStudent(ctx, model.Student{
		Name:        strings.TrimSpace(in.Name),
		Phone:       strings.TrimSpace(in.Phone),
		Instruments: instruments,
		Status:      model.ParseStatus(in.Status),
	})
	if err != nil {
		return model.Student{}, fmt.Errorf("create student: %w", err)
	}
	s.publish(ctx, live.TopicStudents)
	return st, nil
}

// UpdateStudent applies a partial update. Last write wins.
func (s *Service) UpdateStudent(ctx context.Context, id string, in StudentUpdate) (model.Student, error) {
	if err := validate.Struct(in); err != nil {
		return model.Student{}, err
	}
	cur, err := s.repo.GetStudent(ctx, id)
	if err != nil {
		return model.Student{}, err
	}
	if in.Name != nil {
		cur.Name = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil {
		cur.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Instruments != nil {
		if cur.Instruments, err = instrumentSet("", *in.Instruments); err != nil {
			return model.Student{}, err
		}
	}
	if in.Status != nil {
		cur.Status = model.ParseStatus(*in.Status)
	}
	st, err := s.repo.UpdateStudent(ctx, cur)
	if err != nil {
		return model.Student{}, fmt.Errorf("update student: %w", err)
	}
	s.publish(ctx, live.TopicStudents)
	return st, nil
}

// DeleteStudent removes the student's entries and media, then the record.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	if _, err := s.repo.GetStudent(ctx, id); err != nil {
		return err
	}
	if s.purger != nil {
		if err := s.purger.PurgeStudent(ctx, id); err != nil {
			return fmt.Errorf("delete student %s: purge entries: %w", id, err)
		}
	}
	if err := s.repo.DeleteStudent(ctx, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	s.publish(ctx, live.TopicStudents)
	return nil
}

// GetStudent returns one student.
func (s *Service) GetStudent(ctx context.Context, id string) (model.Student, error) {
	return s.repo.GetStudent(ctx, id)
}

// ListStudents returns all students, newest first.
func (s *Service) ListStudents(ctx context.Context) ([]model.Student, error) {
	return s.repo.ListStudents(ctx)
}

// WatchStudents streams the full student list on every change.
func (s *Service) WatchStudents(ctx context.Context) (<-chan []model.Student, func(), error) {
	return live.Snapshots(ctx, s.hub, live.TopicStudents, s.repo.ListStudents)
}

// VisibleStudents returns the students staff may see.
func (s *Service) VisibleStudents(ctx context.Context, staff model.Staff) ([]model.Student, error) {
	all, err := s.repo.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	return visibility.Visible(staff, all), nil
}

// WatchVisibleStudents streams the students staff may see.
func (s *Service) WatchVisibleStudents(ctx context.Context, staff model.Staff) (<-chan []model.Student, func(), error) {
	return live.Snapshots(ctx, s.hub, live.TopicStudents, func(ctx context.Context) ([]model.Student, error) {
		return s.VisibleStudents(ctx, staff)
	})
}

// OpenStudent returns a student if staff may see it.
func (s *Service) OpenStudent(ctx context.Context, staff model.Staff, id string) (model.Student, error) {
	st, err := s.repo.GetStudent(ctx, id)
	if err != nil {
		return model.Student{}, err
	}
	if !visibility.CanSee(staff, st) {
		return model.Student{}, fmt.Errorf("%w: student %s is not in your subject", model.ErrUnauthorized, id)
	}
	return st, nil
}

func (s *Service) publish(ctx context.Context, topic string) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(context.WithoutCancel(ctx), topic); err != nil {
		log.Printf("directory: publish %s failed: %v", topic, err)
	}
}

func instrumentSet(scalar string, list []string) ([]model.Subject, error) {
	set := model.NormalizeInstruments(scalar, list)
	if len(set) == 1 && set[0] == model.SubjectUnassigned {
		return nil, &model.ValidationError{Fields: []model.FieldError{{Field: "instruments", Error: "at least one instrument is required"}}}
	}
	return set, nil
}
