package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	keep := BaseModel{ID: "fixed"}
	require.NoError(t, keep.BeforeCreate(nil))
	require.Equal(t, "fixed", keep.ID)
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel { return &(&User{}).BaseModel }},
		{"token", func() *BaseModel { return &(&Token{}).BaseModel }},
		{"unit", func() *BaseModel { return &(&Unit{}).BaseModel }},
		{"lesson", func() *BaseModel { return &(&Lesson{}).BaseModel }},
		{"invitation_code", func() *BaseModel { return &(&InvitationCode{}).BaseModel }},
		{"group_message", func() *BaseModel { return &(&GroupMessage{}).BaseModel }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := tc.model()
			require.NoError(t, model.BeforeCreate(nil))
			require.NotEmpty(t, model.ID)
		})
	}
}

func TestInvitationCodeUsable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	code := InvitationCode{SoftDelete: SoftDelete{IsActive: true}, UsesLeft: 3, StartedAt: past}
	require.True(t, code.Usable(now))

	code.ExpiredAt = &past
	require.False(t, code.Usable(now))

	code.ExpiredAt = &future
	code.UsesLeft = 0
	require.False(t, code.Usable(now))

	code.UsesLeft = 1
	code.StartedAt = future
	require.False(t, code.Usable(now))

	code.StartedAt = past
	code.IsActive = false
	require.False(t, code.Usable(now))
}

func TestUnitHasLesson(t *testing.T) {
	unit := Unit{Lessons: []string{"a", "b"}}
	require.True(t, unit.HasLesson("b"))
	require.False(t, unit.HasLesson("c"))
}

func TestCompetitionStatus(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c := Competition{StartTime: start, EndTime: start.Add(2 * time.Hour)}

	require.Equal(t, CompetitionUpcoming, c.Status(start.Add(-time.Minute)))
	require.Equal(t, CompetitionOngoing, c.Status(start.Add(time.Hour)))
	require.Equal(t, CompetitionEnded, c.Status(start.Add(3*time.Hour)))
}

func TestStringPtr(t *testing.T) {
	require.Nil(t, StringPtr(""))
	require.Equal(t, "x", *StringPtr("x"))
}
