package logbook

import (
	"context"
	"fmt"
	"time"

	"academy/internal/model"
)

// holidays are the fixed-date public holidays marked on the calendar.
var holidays = map[string]string{
	"01-01": "신정",
	"03-01": "삼일절",
	"05-05": "어린이날",
	"06-06": "현충일",
	"08-15": "광복절",
	"10-03": "개천절",
	"10-09": "한글날",
	"12-25": "성탄절",
}

// Day is one calendar cell.
type Day struct {
	Date    string `json:"date"`
	Entries int    `json:"entries"`
	Holiday string `json:"holiday,omitempty"`
}

// Calendar marks the days of a month that have feedback.
type Calendar struct {
	Month string `json:"month"`
	Days  []Day  `json:"days"`
}

// ParseMonth parses YYYY-MM in the academy timezone.
func (s *Service) ParseMonth(v string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01", v, s.opts.Location)
	if err != nil {
		return time.Time{}, model.Invalid("month must be YYYY-MM, got %q", v)
	}
	return t, nil
}

// ParseDay parses YYYY-MM-DD in the academy timezone.
func (s *Service) ParseDay(v string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", v, s.opts.Location)
	if err != nil {
		return time.Time{}, model.Invalid("date must be YYYY-MM-DD, got %q", v)
	}
	return t, nil
}

// Calendar counts entries per day of the month containing month.
func (s *Service) Calendar(ctx context.Context, month time.Time) (Calendar, error) {
	month = month.In(s.opts.Location)
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, s.opts.Location)
	end := start.AddDate(0, 1, 0)
	entries, err := s.ListBetween(ctx, start, end)
	if err != nil {
		return Calendar{}, err
	}

	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.CreatedAt.In(s.opts.Location).Format("2006-01-02")]++
	}
	cal := Calendar{Month: start.Format("2006-01")}
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		cal.Days = append(cal.Days, Day{Date: key, Entries: counts[key], Holiday: holidays[d.Format("01-02")]})
	}
	return cal, nil
}

// DailyRoster returns all entries written on day, newest first.
func (s *Service) DailyRoster(ctx context.Context, day time.Time) ([]model.Entry, error) {
	day = day.In(s.opts.Location)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.opts.Location)
	return s.ListBetween(ctx, start, start.AddDate(0, 0, 1))
}

// Report is the guardian-facing view of one entry.
type Report struct {
	StudentName string      `json:"studentName"`
	Entry       model.Entry `json:"entry"`
}

const fallbackStudentName = "학생"

// Report returns one entry with the best available student name: the name
// stored on the entry, then the student record, then a generic label.
func (s *Service) Report(ctx context.Context, studentID, entryID string) (Report, error) {
	e, err := s.repo.GetEntry(ctx, studentID, entryID)
	if err != nil {
		return Report{}, fmt.Errorf("report: %w", err)
	}
	name := e.StudentName
	if name == "" {
		if st, err := s.repo.GetStudent(ctx, studentID); err == nil {
			name = st.Name
		}
	}
	if name == "" {
		name = fallbackStudentName
	}
	return Report{StudentName: name, Entry: e}, nil
}
