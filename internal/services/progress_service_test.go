package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

func TestLessonCompletionRecomputesUnitProgress(t *testing.T) {
	fx := newCurriculumFixture(t)
	ctx := context.Background()
	progress, err := NewProgressService(fx.db, newTestAside())
	require.NoError(t, err)

	learner := seedUser(t, fx.db, "learner")
	unit := fx.unit(t, "Family")
	first := fx.lesson(t, unit.ID, "Parents")
	second := fx.lesson(t, unit.ID, "Siblings")

	_, err = progress.RecordLesson(ctx, nil, LessonProgressInput{UserID: learner.ID, LessonID: first.ID, Status: "completed", TimeSpent: 60})
	require.NoError(t, err)

	up, err := progress.GetUnitProgress(ctx, learner.ID, unit.ID)
	require.NoError(t, err)
	require.InDelta(t, 50.0, up.Progress, 0.001)
	require.Equal(t, models.ProgressInProgress, up.Status)

	// a later IN_PROGRESS report does not undo completion
	rec, err := progress.RecordLesson(ctx, nil, LessonProgressInput{UserID: learner.ID, LessonID: first.ID, Status: "IN_PROGRESS", TimeSpent: 30})
	require.NoError(t, err)
	require.Equal(t, models.ProgressCompleted, rec.Status)
	require.Equal(t, 90, rec.TimeSpent)

	_, err = progress.RecordLesson(ctx, nil, LessonProgressInput{UserID: learner.ID, LessonID: second.ID, Status: "COMPLETED"})
	require.NoError(t, err)

	up, err = progress.GetUnitProgress(ctx, learner.ID, unit.ID)
	require.NoError(t, err)
	require.InDelta(t, 100.0, up.Progress, 0.001)
	require.Equal(t, models.ProgressCompleted, up.Status)
	require.NotNil(t, up.CompletedAt)

	units, err := fx.units.ListByUser(ctx, learner.ID, cache.Query{})
	require.NoError(t, err)
	require.Len(t, units.Data, 1)

	lessons, err := progress.ListLessonProgress(ctx, learner.ID, unit.ID, cache.Query{})
	require.NoError(t, err)
	require.EqualValues(t, 2, lessons.Total)
}

func TestRecordLessonValidation(t *testing.T) {
	fx := newCurriculumFixture(t)
	ctx := context.Background()
	progress, err := NewProgressService(fx.db, newTestAside())
	require.NoError(t, err)
	learner := seedUser(t, fx.db, "learner")
	unit := fx.unit(t, "Weather")
	lesson := fx.lesson(t, unit.ID, "Rain")

	_, err = progress.RecordLesson(ctx, nil, LessonProgressInput{UserID: learner.ID, LessonID: "00000000-0000-0000-0000-000000000002", Status: "COMPLETED"})
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = progress.RecordLesson(ctx, nil, LessonProgressInput{UserID: learner.ID, LessonID: lesson.ID, Status: "DAYDREAMING"})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = progress.GetUnitProgress(ctx, learner.ID, unit.ID)
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestGenericProgressRecordAndDelete(t *testing.T) {
	db := openServiceTestDB(t)
	ctx := context.Background()
	progress, err := NewProgressService(db, newTestAside())
	require.NoError(t, err)
	learner := seedUser(t, db, "learner")

	rec, err := progress.Record(ctx, nil, ProgressInput{UserID: learner.ID, Type: "course", ProgressPercent: 100})
	require.NoError(t, err)
	require.Equal(t, models.ProgressCompleted, rec.Status)

	_, err = progress.Record(ctx, nil, ProgressInput{UserID: learner.ID, Type: "course", ProgressPercent: 120})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	page, err := progress.ListProgress(ctx, learner.ID, "COURSE", cache.Query{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)

	require.NoError(t, progress.SetProgressActive(ctx, nil, rec.ID, false))
	page, err = progress.ListProgress(ctx, learner.ID, "COURSE", cache.Query{})
	require.NoError(t, err)
	require.Empty(t, page.Data)
}
