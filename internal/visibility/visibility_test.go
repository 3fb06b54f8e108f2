package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"academy/internal/model"
)

func student(id string, instruments ...model.Subject) model.Student {
	return model.Student{ID: id, Name: "student " + id, Phone: "010-0000-000" + id, Instruments: instruments}
}

func ids(students []model.Student) []string {
	out := make([]string, 0, len(students))
	for _, s := range students {
		out = append(out, s.ID)
	}
	return out
}

func TestVisibleAdminSeesAll(t *testing.T) {
	all := []model.Student{
		student("1", model.SubjectPiano),
		student("2", model.SubjectViolin),
		student("3", model.SubjectUnassigned),
	}
	admin := model.Staff{Role: model.RoleAdmin}
	assert.Equal(t, all, Visible(admin, all))
	assert.Empty(t, Visible(admin, nil))
}

func TestVisiblePianoTeacher(t *testing.T) {
	all := []model.Student{
		student("1", model.SubjectPiano),
		student("2", model.Subject("어린이 피아노 취미")),
		student("3", model.Subject("성인 피아노")),
		student("4", model.SubjectViolin),
		student("5", model.SubjectViolin, model.SubjectPiano),
	}
	teacher := model.Staff{Role: model.RoleTeacher, Subject: model.SubjectPiano}
	assert.Equal(t, []string{"1", "2", "3", "5"}, ids(Visible(teacher, all)))
}

func TestVisibleSubjectTeacher(t *testing.T) {
	all := []model.Student{
		student("1", model.SubjectPiano),
		student("2", model.SubjectBass),
		student("3", model.SubjectDrums, model.SubjectBass),
	}
	teacher := model.Staff{Role: model.RoleTeacher, Subject: model.SubjectBass}
	assert.Equal(t, []string{"2", "3"}, ids(Visible(teacher, all)))

	legacyLabel := model.Staff{Role: model.RoleTeacher, Subject: model.Subject("베이스")}
	assert.Equal(t, []string{"2", "3"}, ids(Visible(legacyLabel, all)))
}

func TestVisibleFailsClosed(t *testing.T) {
	all := []model.Student{student("1", model.SubjectPiano), student("2", model.SubjectUnassigned)}

	assert.Empty(t, Visible(model.Staff{Role: model.RoleTeacher}, all))
	assert.Empty(t, Visible(model.Staff{Role: model.RoleTeacher, Subject: model.SubjectUnassigned}, all))
	assert.Empty(t, Visible(model.Staff{Role: "parent", Subject: model.SubjectPiano}, all))
	assert.Empty(t, Visible(model.Staff{}, all))
}

func TestViolinTeacherSeesNoPianoStudents(t *testing.T) {
	all := []model.Student{student("1", model.SubjectPiano), student("2", model.SubjectPiano)}
	teacher := model.Staff{Role: model.RoleTeacher, Subject: model.SubjectViolin}
	assert.Empty(t, Visible(teacher, all))
}

func TestSearchAndSubjectFacet(t *testing.T) {
	all := []model.Student{
		{ID: "1", Name: "Kim Minji", Phone: "010-1111-2222", Instruments: []model.Subject{model.SubjectPiano}},
		{ID: "2", Name: "Lee Jun", Phone: "010-3333-4444", Instruments: []model.Subject{model.SubjectViolin}},
	}

	assert.Equal(t, []string{"1"}, ids(Search(all, "kim")))
	assert.Equal(t, []string{"2"}, ids(Search(all, "3333-44")))
	assert.Equal(t, []string{"2"}, ids(Search(all, "33334444")))
	assert.Equal(t, []string{"1", "2"}, ids(Search(all, "  ")))
	assert.Empty(t, Search(all, "park"))

	assert.Equal(t, []string{"2"}, ids(WithSubject(all, model.SubjectViolin)))
	assert.Equal(t, []string{"1"}, ids(WithSubject(all, "피아노")))
	assert.Equal(t, []string{"1", "2"}, ids(WithSubject(all, "")))
}
