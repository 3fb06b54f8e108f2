package model

import (
	"sort"
	"strings"
)

// Subject is a course a student takes or a teacher specializes in.
type Subject string

const (
	SubjectPiano  Subject = "piano"
	SubjectViolin Subject = "violin"
	SubjectCello  Subject = "cello"
	SubjectFlute  Subject = "flute"
	SubjectGuitar Subject = "guitar"
	SubjectBass   Subject = "bass"
	SubjectDrums  Subject = "drums"
	SubjectVocal  Subject = "vocal"

	// SubjectUnassigned marks a student record that carried no instrument data.
	SubjectUnassigned Subject = "unassigned"
)

// Subjects lists the teachable subjects in display order.
var Subjects = []Subject{
	SubjectPiano, SubjectViolin, SubjectCello, SubjectFlute,
	SubjectGuitar, SubjectBass, SubjectDrums, SubjectVocal,
}

var subjectLabels = map[Subject]string{
	SubjectPiano:      "피아노",
	SubjectViolin:     "바이올린",
	SubjectCello:      "첼로",
	SubjectFlute:      "플루트",
	SubjectGuitar:     "기타",
	SubjectBass:       "베이스",
	SubjectDrums:      "드럼",
	SubjectVocal:      "보컬",
	SubjectUnassigned: "미지정",
}

// legacyLabels maps historical free-text labels to canonical subjects.
// Piano hobby variants were entered separately before the piano courses merged.
var legacyLabels = map[string]Subject{
	"피아노":        SubjectPiano,
	"어린이 피아노":    SubjectPiano,
	"어린이 피아노 취미": SubjectPiano,
	"성인 피아노":     SubjectPiano,
	"성인 피아노 취미":  SubjectPiano,

	"adult piano":       SubjectPiano,
	"adult piano hobby": SubjectPiano,
	"kids piano":        SubjectPiano,
	"kids piano hobby":  SubjectPiano,
	"child piano hobby": SubjectPiano,

	"바이올린": SubjectViolin,
	"첼로":   SubjectCello,
	"플루트":  SubjectFlute,
	"기타":   SubjectGuitar,
	"베이스":  SubjectBass,
	"드럼":   SubjectDrums,
	"보컬":   SubjectVocal,
}

// ParseSubject canonicalizes a stored or submitted label. Unknown labels are
// kept as-is (trimmed) so that no data is silently dropped.
func ParseSubject(label string) Subject {
	l := strings.Join(strings.Fields(label), " ")
	if l == "" {
		return ""
	}
	lower := strings.ToLower(l)
	for _, s := range Subjects {
		if lower == string(s) {
			return s
		}
	}
	if lower == string(SubjectUnassigned) {
		return SubjectUnassigned
	}
	if s, ok := legacyLabels[lower]; ok {
		return s
	}
	return Subject(l)
}

// Known reports whether s is one of the teachable subjects.
func (s Subject) Known() bool {
	for _, k := range Subjects {
		if s == k {
			return true
		}
	}
	return false
}

// Label is the Korean display label.
func (s Subject) Label() string {
	if l, ok := subjectLabels[s]; ok {
		return l
	}
	return string(s)
}

func subjectRank(s Subject) int {
	for i, k := range Subjects {
		if s == k {
			return i
		}
	}
	return len(Subjects)
}

// NormalizeInstruments merges the legacy scalar `instrument` field with the
// `instruments` list into one canonical, de-duplicated, ordered set. The
// result is never empty.
func NormalizeInstruments(scalar string, list []string) []Subject {
	seen := make(map[Subject]bool)
	var out []Subject
	add := func(label string) {
		s := ParseSubject(label)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	add(scalar)
	for _, l := range list {
		add(l)
	}
	if len(out) > 1 && seen[SubjectUnassigned] {
		filtered := out[:0]
		for _, s := range out {
			if s != SubjectUnassigned {
				filtered = append(filtered, s)
			}
		}
		out = filtered
	}
	if len(out) == 0 {
		return []Subject{SubjectUnassigned}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := subjectRank(out[i]), subjectRank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

// SubjectStrings converts subjects to their stored string form.
func SubjectStrings(subjects []Subject) []string {
	out := make([]string, len(subjects))
	for i, s := range subjects {
		out[i] = string(s)
	}
	return out
}

// HasSubject reports whether subjects contains s.
func HasSubject(subjects []Subject, s Subject) bool {
	for _, x := range subjects {
		if x == s {
			return true
		}
	}
	return false
}
