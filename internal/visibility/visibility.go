// Package visibility decides which students a staff member may see.
//
// Visible and CanSee are the access rule. Search and WithSubject only narrow
// an already-visible list for display and must not be used for access control.
package visibility

import (
	"strings"

	"academy/internal/model"
)

// Visible returns the subsequence of students the staff member may see,
// preserving order. Unknown roles and teachers without a subject see nothing.
func Visible(staff model.Staff, students []model.Student) []model.Student {
	out := make([]model.Student, 0, len(students))
	for _, st := range students {
		if CanSee(staff, st) {
			out = append(out, st)
		}
	}
	return out
}

// CanSee applies the visibility rule to a single student.
func CanSee(staff model.Staff, student model.Student) bool {
	switch staff.Role {
	case model.RoleAdmin:
		return true
	case model.RoleTeacher:
		subject := model.ParseSubject(string(staff.Subject))
		if subject == "" || subject == model.SubjectUnassigned {
			return false
		}
		if subject == model.SubjectPiano {
			return teachesPiano(student)
		}
		return model.HasSubject(student.Instruments, subject)
	default:
		return false
	}
}

// teachesPiano matches any piano variant: adult and child hobby labels are
// collapsed to piano on read, but records built in memory may still carry raw
// labels, so each one is canonicalized again here.
func teachesPiano(student model.Student) bool {
	for _, s := range student.Instruments {
		if model.ParseSubject(string(s)) == model.SubjectPiano {
			return true
		}
	}
	return false
}

// Search narrows by a case-insensitive name match or a phone digit match.
func Search(students []model.Student, query string) []model.Student {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return students
	}
	qDigits := digits(q)
	out := make([]model.Student, 0, len(students))
	for _, st := range students {
		if strings.Contains(strings.ToLower(st.Name), q) ||
			(qDigits != "" && strings.Contains(digits(st.Phone), qDigits)) {
			out = append(out, st)
		}
	}
	return out
}

// WithSubject narrows to students enrolled in subject. An empty subject
// leaves the list unchanged.
func WithSubject(students []model.Student, subject model.Subject) []model.Student {
	if subject == "" {
		return students
	}
	subject = model.ParseSubject(string(subject))
	out := make([]model.Student, 0, len(students))
	for _, st := range students {
		if model.HasSubject(st.Instruments, subject) {
			out = append(out, st)
		}
	}
	return out
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
