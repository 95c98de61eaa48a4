package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

func TestSupportTicketLifecycle(t *testing.T) {
	db := openServiceTestDB(t)
	ctx := context.Background()
	svc, err := NewSupportService(db, newTestAside())
	require.NoError(t, err)
	learner := seedUser(t, db, "learner")
	other := seedUser(t, db, "other")
	agent := seedUser(t, db, "agent", withRole(models.RoleAdmin))

	ticket, err := svc.Open(ctx, nil, SupportInput{UserID: learner.ID, Subject: "Cannot play audio", Message: "Lesson 3 audio is silent"})
	require.NoError(t, err)
	require.Equal(t, models.SupportOpen, ticket.Status)

	_, err = svc.Get(ctx, ticket.ID, Actor{UserID: other.ID, Role: models.RoleStudent})
	require.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = svc.Assign(ctx, nil, ticket.ID, other.ID)
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	assigned, err := svc.Assign(ctx, nil, ticket.ID, agent.ID)
	require.NoError(t, err)
	require.Equal(t, models.SupportInProgress, assigned.Status)
	require.Equal(t, agent.ID, *assigned.AssignedTo)

	responded, err := svc.Respond(ctx, nil, ticket.ID, "Please update the app.")
	require.NoError(t, err)
	require.Equal(t, "Please update the app.", responded.Response)

	resolved, err := svc.Resolve(ctx, nil, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, models.SupportResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = svc.Close(ctx, nil, ticket.ID)
	require.NoError(t, err)
	_, err = svc.Respond(ctx, nil, ticket.ID, "again")
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	page, err := svc.List(ctx, SupportFilter{}, Actor{UserID: other.ID, Role: models.RoleStudent}, cache.Query{})
	require.NoError(t, err)
	require.Empty(t, page.Data)

	page, err = svc.List(ctx, SupportFilter{Status: "closed"}, Actor{UserID: agent.ID, Role: models.RoleAdmin}, cache.Query{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
}

func TestFeedbackSubmitAndResolve(t *testing.T) {
	db := openServiceTestDB(t)
	ctx := context.Background()
	svc, err := NewFeedbackService(db, newTestAside())
	require.NoError(t, err)
	learner := seedUser(t, db, "learner")
	admin := seedUser(t, db, "admin", withRole(models.RoleAdmin))

	bad := 9
	_, err = svc.Submit(ctx, nil, FeedbackInput{UserID: learner.ID, Title: "Great", Content: "Love it", Rating: &bad})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	rating := 5
	fb, err := svc.Submit(ctx, nil, FeedbackInput{UserID: learner.ID, Title: "Great", Content: "Love it", Rating: &rating})
	require.NoError(t, err)
	require.Equal(t, models.FeedbackGeneral, fb.Type)

	open := false
	page, err := svc.List(ctx, "", &open, cache.Query{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)

	require.NoError(t, svc.Resolve(ctx, nil, fb.ID, admin.ID))
	require.True(t, apperrors.Is(svc.Resolve(ctx, nil, fb.ID, admin.ID), apperrors.ErrNotFound))

	page, err = svc.List(ctx, "", &open, cache.Query{})
	require.NoError(t, err)
	require.Empty(t, page.Data)
}
