package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

func TestCompetitionJoinCap(t *testing.T) {
	db := openServiceTestDB(t)
	ctx := context.Background()
	svc, err := NewCompetitionService(db, newTestAside())
	require.NoError(t, err)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	host := seedUser(t, db, "host", withRole(models.RoleTeacher))
	first := seedUser(t, db, "first")
	second := seedUser(t, db, "second")
	third := seedUser(t, db, "third")

	_, err = svc.Create(ctx, nil, CompetitionInput{Name: "Backwards", Type: "quiz", StartTime: now, EndTime: now.Add(-time.Hour)}, host.ID)
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	comp, err := svc.Create(ctx, nil, CompetitionInput{
		Name:            "Spelling Bee",
		Type:            "quiz",
		StartTime:       now.Add(time.Hour),
		EndTime:         now.Add(3 * time.Hour),
		MaxParticipants: 2,
	}, host.ID)
	require.NoError(t, err)

	_, err = svc.Join(ctx, nil, comp.ID, first.ID)
	require.NoError(t, err)
	_, err = svc.Join(ctx, nil, comp.ID, first.ID)
	require.True(t, apperrors.Is(err, apperrors.ErrConflict))
	_, err = svc.Join(ctx, nil, comp.ID, second.ID)
	require.NoError(t, err)
	_, err = svc.Join(ctx, nil, comp.ID, third.ID)
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	got, err := svc.Get(ctx, comp.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.TotalParticipants)

	participants, err := svc.Participants(ctx, comp.ID, cache.Query{})
	require.NoError(t, err)
	require.Equal(t, int64(2), participants.Total)

	upcoming, err := svc.List(ctx, CompetitionFilter{Status: "upcoming"}, cache.Query{})
	require.NoError(t, err)
	require.Len(t, upcoming.Data, 1)

	now = now.Add(4 * time.Hour)
	_, err = svc.Join(ctx, nil, comp.ID, third.ID)
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	ended, err := svc.List(ctx, CompetitionFilter{Status: models.CompetitionEnded}, cache.Query{})
	require.NoError(t, err)
	require.Len(t, ended.Data, 1)

	require.NoError(t, svc.SetActive(ctx, nil, comp.ID, false, host.ID))
	require.True(t, apperrors.Is(svc.SetActive(ctx, nil, comp.ID, false, host.ID), apperrors.ErrNotFound))
	require.NoError(t, svc.SetActive(ctx, nil, comp.ID, true, host.ID))
}
