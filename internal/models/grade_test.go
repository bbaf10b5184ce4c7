package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func TestLetterGradeFor(t *testing.T) {
	cases := []struct {
		percentage float64
		expected   LetterGrade
	}{
		{100, GradeA},
		{90, GradeA},
		{89.99, GradeAMinus},
		{85, GradeAMinus},
		{80, GradeBPlus},
		{75, GradeB},
		{70, GradeBMinus},
		{65, GradeCPlus},
		{60, GradeC},
		{55, GradeCMinus},
		{50, GradeD},
		{49.99, GradeF},
		{40, GradeF},
		{0, GradeF},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, LetterGradeFor(tc.percentage), "percentage %.2f", tc.percentage)
	}
}

func TestGradePoints(t *testing.T) {
	assert.Equal(t, 4.0, GradeA.GradePoints())
	assert.Equal(t, 3.7, GradeAMinus.GradePoints())
	assert.Equal(t, 3.3, GradeBPlus.GradePoints())
	assert.Equal(t, 3.0, GradeB.GradePoints())
	assert.Equal(t, 2.7, GradeBMinus.GradePoints())
	assert.Equal(t, 2.3, GradeCPlus.GradePoints())
	assert.Equal(t, 2.0, GradeC.GradePoints())
	assert.Equal(t, 1.7, GradeCMinus.GradePoints())
	assert.Equal(t, 1.0, GradeD.GradePoints())
	assert.Equal(t, 0.0, GradeF.GradePoints())
}

func TestLetterGradeValid(t *testing.T) {
	assert.True(t, GradeAMinus.Valid())
	assert.False(t, LetterGrade("E").Valid())
}

func TestRegistrationOpenAt(t *testing.T) {
	semester := Semester{
		RegistrationStartDate: mustParse(t, "2026-08-01T00:00:00Z"),
		RegistrationEndDate:   mustParse(t, "2026-08-31T23:59:59Z"),
	}
	assert.True(t, semester.RegistrationOpenAt(mustParse(t, "2026-08-15T12:00:00Z")))
	assert.True(t, semester.RegistrationOpenAt(mustParse(t, "2026-08-01T00:00:00Z")))
	assert.False(t, semester.RegistrationOpenAt(mustParse(t, "2026-07-31T23:59:59Z")))
	assert.False(t, semester.RegistrationOpenAt(mustParse(t, "2026-09-01T00:00:00Z")))
}
