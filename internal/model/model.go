package model

import (
	"encoding/json"
	"time"
)

// StudentStatus is the enrollment state of a student.
type StudentStatus string

const (
	StatusRegistered StudentStatus = "registered"
	StatusPaused     StudentStatus = "paused"
	StatusWithdrawn  StudentStatus = "withdrawn"
)

// ParseStatus canonicalizes a stored status; legacy Korean values and blanks
// map to registered.
func ParseStatus(s string) StudentStatus {
	switch s {
	case "", "등록", string(StatusRegistered):
		return StatusRegistered
	case "휴원", string(StatusPaused):
		return StatusPaused
	case "퇴원", string(StatusWithdrawn):
		return StatusWithdrawn
	}
	return StudentStatus(s)
}

// Valid reports whether s is a known status.
func (s StudentStatus) Valid() bool {
	return s == StatusRegistered || s == StatusPaused || s == StatusWithdrawn
}

// Student is an academy student. Phone is the guardian contact number.
type Student struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Phone       string        `json:"phone"`
	Instruments []Subject     `json:"instruments"`
	Status      StudentStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// UnmarshalJSON accepts both the current `instruments` list and the legacy
// scalar `instrument` field.
func (s *Student) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Phone       string    `json:"phone"`
		Instrument  string    `json:"instrument"`
		Instruments []string  `json:"instruments"`
		Status      string    `json:"status"`
		CreatedAt   time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Student{
		ID:          raw.ID,
		Name:        raw.Name,
		Phone:       raw.Phone,
		Instruments: NormalizeInstruments(raw.Instrument, raw.Instruments),
		Status:      ParseStatus(raw.Status),
		CreatedAt:   raw.CreatedAt,
	}
	return nil
}

// Role is a staff role.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
)

// Staff is an academy staff member.
type Staff struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Subject   Subject   `json:"subject,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s Staff) IsAdmin() bool   { return s.Role == RoleAdmin }
func (s Staff) IsTeacher() bool { return s.Role == RoleTeacher }

// DisplayName falls back to the email when no name is set.
func (s Staff) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Email
}

// MediaType is the kind of attachment on an entry.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Media references a stored attachment. The bytes live in the blob store.
type Media struct {
	URL         string    `json:"url"`
	StoragePath string    `json:"storagePath"`
	Type        MediaType `json:"type"`
	Title       string    `json:"title,omitempty"`
}

// Entry is one dated learning-progress record for a student.
type Entry struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	Instrument  Subject   `json:"instrument"`
	Progress    string    `json:"progress,omitempty"`
	Level       string    `json:"level,omitempty"`
	Feedback    string    `json:"feedback,omitempty"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	CreatedAt   time.Time `json:"createdAt"`
	Media       *Media    `json:"media,omitempty"`
}
