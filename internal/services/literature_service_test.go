package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

func TestLiteraturePublishFlow(t *testing.T) {
	db := openServiceTestDB(t)
	ctx := context.Background()
	svc, err := NewLiteratureService(db, newTestAside())
	require.NoError(t, err)
	editor := seedUser(t, db, "editor", withRole(models.RoleTeacher))

	story, err := svc.Create(ctx, nil, LiteratureInput{
		Title:          "The Fox and the Grapes",
		Type:           "story",
		Level:          "a2",
		ContentEnglish: "A hungry fox saw some grapes.",
		Vocabulary:     []string{"fox", "grapes"},
	}, editor.ID)
	require.NoError(t, err)
	require.Equal(t, "A2", story.Level)

	_, err = svc.Create(ctx, nil, LiteratureInput{Title: "the fox and the grapes", Type: "STORY", ContentEnglish: "again"}, editor.ID)
	require.True(t, apperrors.Is(err, apperrors.ErrConflict))

	page, err := svc.List(ctx, LiteratureFilter{}, cache.Query{})
	require.NoError(t, err)
	require.Empty(t, page.Data)

	_, err = svc.SetPublished(ctx, nil, story.ID, true, editor.ID)
	require.NoError(t, err)

	page, err = svc.List(ctx, LiteratureFilter{Level: "A2"}, cache.Query{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	require.Equal(t, []string{"fox", "grapes"}, []string(page.Data[0].Vocabulary))

	require.NoError(t, svc.SetActive(ctx, nil, story.ID, false, editor.ID))
	_, err = svc.Get(ctx, story.ID)
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
