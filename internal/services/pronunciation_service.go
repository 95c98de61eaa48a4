package services

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/internal/speech"
	"github.com/charlesng35/happycat/pkg/logger"
)

// Assessor scores spoken audio against a reference text.
type Assessor interface {
	Assess(ctx context.Context, in speech.Input) (*speech.Result, error)
}

// PronunciationInput is one assessment request. When LessonID is set the
// score is recorded as lesson activity for the user.
type PronunciationInput struct {
	UserID        string
	LessonID      string
	Audio         []byte
	ContentType   string
	ReferenceText string
	Language      string
}

// PronunciationService proxies assessments to the speech provider.
type PronunciationService struct {
	assessor Assessor
	progress *ProgressService
	log      *zap.Logger
}

// NewPronunciationService constructs a PronunciationService. progress may be
// nil, in which case scores are not recorded.
func NewPronunciationService(assessor Assessor, progress *ProgressService) (*PronunciationService, error) {
	if assessor == nil {
		return nil, errors.New("pronunciation service: assessor is required")
	}
	return &PronunciationService{assessor: assessor, progress: progress, log: logger.WithModule("pronunciation")}, nil
}

// Assess scores the audio. Recording the score is best effort and never
// fails the assessment.
func (s *PronunciationService) Assess(ctx context.Context, in PronunciationInput) (*speech.Result, error) {
	ctx = ensureContext(ctx)
	if in.LessonID != "" {
		if _, err := parseID(in.LessonID, "lesson"); err != nil {
			return nil, err
		}
	}
	result, err := s.assessor.Assess(ctx, speech.Input{
		Audio:         in.Audio,
		ContentType:   in.ContentType,
		ReferenceText: in.ReferenceText,
		Language:      in.Language,
	})
	if err != nil {
		return nil, err
	}
	if s.progress == nil || in.LessonID == "" || result.Scores == nil {
		return result, nil
	}

	score := math.Round(result.Scores.PronScore*100) / 100
	lessonID := in.LessonID
	if _, err := s.progress.Record(ctx, nil, ProgressInput{
		UserID:          in.UserID,
		Type:            models.ProgressTypeLesson,
		LessonID:        &lessonID,
		ProgressPercent: result.Scores.Completeness,
		Score:           &score,
	}); err != nil {
		s.log.Warn("failed to record pronunciation score",
			zap.String("user_id", in.UserID),
			zap.String("lesson_id", lessonID),
			zap.Error(err))
	}
	return result, nil
}
