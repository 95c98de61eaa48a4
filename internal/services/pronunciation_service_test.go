package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/internal/speech"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

type stubAssessor struct {
	result *speech.Result
	err    error
	calls  int
}

func (s *stubAssessor) Assess(context.Context, speech.Input) (*speech.Result, error) {
	s.calls++
	return s.result, s.err
}

func TestPronunciationRecordsLessonScore(t *testing.T) {
	fx := newCurriculumFixture(t)
	ctx := context.Background()
	progress, err := NewProgressService(fx.db, newTestAside())
	require.NoError(t, err)
	learner := seedUser(t, fx.db, "speaker")
	lesson := fx.lesson(t, fx.unit(t, "Greetings").ID, "Hello")

	stub := &stubAssessor{result: &speech.Result{Status: "Success", Scores: &speech.Scores{PronScore: 87.456, Completeness: 100}}}
	svc, err := NewPronunciationService(stub, progress)
	require.NoError(t, err)

	res, err := svc.Assess(ctx, PronunciationInput{UserID: learner.ID, LessonID: lesson.ID, Audio: []byte("RIFF"), ReferenceText: "hello"})
	require.NoError(t, err)
	require.Equal(t, "Success", res.Status)

	page, err := progress.ListProgress(ctx, learner.ID, models.ProgressTypeLesson, cache.Query{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	require.InDelta(t, 87.46, *page.Data[0].Score, 0.001)
}

func TestPronunciationPassesProviderErrors(t *testing.T) {
	stub := &stubAssessor{err: apperrors.NewBadRequest("Speech API error 401: denied")}
	svc, err := NewPronunciationService(stub, nil)
	require.NoError(t, err)

	_, err = svc.Assess(context.Background(), PronunciationInput{Audio: []byte("x"), ReferenceText: "hi"})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = svc.Assess(context.Background(), PronunciationInput{LessonID: "nope", Audio: []byte("x"), ReferenceText: "hi"})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
	require.Equal(t, 1, stub.calls)
}
