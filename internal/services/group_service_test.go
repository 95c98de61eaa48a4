package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/internal/realtime"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []realtime.Message
}

func (p *recordingPublisher) BroadcastStream(stream string, message realtime.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	message.Stream = stream
	p.messages = append(p.messages, message)
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]string, 0, len(p.messages))
	for _, msg := range p.messages {
		events = append(events, msg.Event)
	}
	return events
}

type groupFixture struct {
	groups   *GroupService
	messages *GroupMessageService
	pub      *recordingPublisher
	owner    *models.User
	member   *models.User
	outsider *models.User
	group    *models.Group
}

func newGroupFixture(t *testing.T) groupFixture {
	t.Helper()
	db := openServiceTestDB(t)
	aside := newTestAside()
	groups, err := NewGroupService(db, aside)
	require.NoError(t, err)
	pub := &recordingPublisher{}
	messages, err := NewGroupMessageService(db, aside, pub)
	require.NoError(t, err)

	owner := seedUser(t, db, "owner", withRole(models.RoleTeacher))
	member := seedUser(t, db, "member")
	outsider := seedUser(t, db, "outsider")
	group, err := groups.Create(context.Background(), nil, GroupInput{Name: "Class 5A", MemberIDs: []string{member.ID, member.ID}}, owner.ID)
	require.NoError(t, err)
	return groupFixture{groups: groups, messages: messages, pub: pub, owner: owner, member: member, outsider: outsider, group: group}
}

func TestGroupCreateAddsOwnerAndMembers(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()

	got, err := f.groups.Get(ctx, f.group.ID)
	require.NoError(t, err)
	require.Len(t, got.Members, 2)

	page, err := f.groups.ListForUser(ctx, f.member.ID, cache.Query{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)

	page, err = f.groups.ListForUser(ctx, f.outsider.ID, cache.Query{})
	require.NoError(t, err)
	require.Empty(t, page.Data)

	err = f.groups.AddMembers(ctx, nil, f.group.ID, []string{f.outsider.ID}, Actor{UserID: f.member.ID, Role: models.RoleStudent})
	require.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	require.NoError(t, f.groups.AddMembers(ctx, nil, f.group.ID, []string{f.outsider.ID, f.member.ID}, Actor{UserID: f.owner.ID}))
	ok, err := f.groups.IsMember(ctx, f.group.ID, f.outsider.ID)
	require.NoError(t, err)
	require.True(t, ok)

	err = f.groups.RemoveMember(ctx, nil, f.group.ID, f.owner.ID, Actor{UserID: f.owner.ID})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
	require.NoError(t, f.groups.RemoveMember(ctx, nil, f.group.ID, f.outsider.ID, Actor{UserID: f.outsider.ID}))
}

func TestSendMessageValidation(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()

	_, err := f.messages.Send(ctx, nil, MessageInput{GroupID: f.group.ID, SenderID: "7b0c8d6e-0000-4000-8000-000000000000", Content: "hi"})
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = f.messages.Send(ctx, nil, MessageInput{GroupID: "7b0c8d6e-0000-4000-8000-000000000001", SenderID: f.member.ID, Content: "hi"})
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = f.messages.Send(ctx, nil, MessageInput{GroupID: f.group.ID, SenderID: f.outsider.ID, Content: "hi"})
	require.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = f.messages.Send(ctx, nil, MessageInput{GroupID: f.group.ID, SenderID: f.member.ID, Content: "   "})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = f.messages.Send(ctx, nil, MessageInput{GroupID: "not-a-uuid", SenderID: f.member.ID, Content: "hi"})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	require.Empty(t, f.pub.Events())
}

func TestMessagesPublishAfterCommitOnly(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()

	rollback := errors.New("abort")
	err := database.Run(ctx, f.messages.db, nil, func(tx *database.Tx) error {
		if _, err := f.messages.Send(ctx, tx, MessageInput{GroupID: f.group.ID, SenderID: f.member.ID, Content: "draft"}); err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)
	require.Empty(t, f.pub.Events())

	msg, err := f.messages.Send(ctx, nil, MessageInput{GroupID: f.group.ID, SenderID: f.member.ID, Content: "hello class"})
	require.NoError(t, err)
	require.Equal(t, []string{realtime.EventMessageCreated}, f.pub.Events())
	require.Equal(t, realtime.GroupStream(f.group.ID), f.pub.messages[0].Stream)

	page, err := f.messages.List(ctx, f.group.ID, f.owner.ID, cache.Query{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	require.Equal(t, msg.ID, page.Data[0].ID)

	_, err = f.messages.List(ctx, f.group.ID, f.outsider.ID, cache.Query{})
	require.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestMessageThreadEditAndDelete(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()

	root, err := f.messages.Send(ctx, nil, MessageInput{GroupID: f.group.ID, SenderID: f.member.ID, Content: "question"})
	require.NoError(t, err)
	reply, err := f.messages.Send(ctx, nil, MessageInput{GroupID: f.group.ID, SenderID: f.owner.ID, Content: "answer", ReplyTo: &root.ID})
	require.NoError(t, err)

	replies, err := f.messages.Replies(ctx, root.ID, f.member.ID, cache.Query{})
	require.NoError(t, err)
	require.Len(t, replies.Data, 1)
	require.Equal(t, reply.ID, replies.Data[0].ID)

	top, err := f.messages.List(ctx, f.group.ID, f.member.ID, cache.Query{})
	require.NoError(t, err)
	require.Len(t, top.Data, 1)

	_, err = f.messages.Edit(ctx, nil, root.ID, f.owner.ID, "changed")
	require.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	edited, err := f.messages.Edit(ctx, nil, root.ID, f.member.ID, "question, edited")
	require.NoError(t, err)
	require.True(t, edited.IsEdited)

	err = f.messages.Delete(ctx, nil, reply.ID, Actor{UserID: f.member.ID, Role: models.RoleStudent})
	require.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	require.NoError(t, f.messages.Delete(ctx, nil, root.ID, Actor{UserID: f.owner.ID, Role: models.RoleTeacher}))

	err = f.messages.Delete(ctx, nil, root.ID, Actor{UserID: f.owner.ID, Role: models.RoleTeacher})
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	require.Equal(t, []string{
		realtime.EventMessageCreated,
		realtime.EventMessageCreated,
		realtime.EventMessageUpdated,
		realtime.EventMessageDeleted,
	}, f.pub.Events())
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.messages.Send(ctx, nil, MessageInput{GroupID: f.group.ID, SenderID: f.owner.ID, Content: text})
		require.NoError(t, err)
	}

	count, err := f.messages.UnreadCount(ctx, f.group.ID, f.member.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	count, err = f.messages.UnreadCount(ctx, f.group.ID, f.owner.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	marked, err := f.messages.MarkRead(ctx, nil, f.group.ID, f.member.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), marked)

	marked, err = f.messages.MarkRead(ctx, nil, f.group.ID, f.member.ID)
	require.NoError(t, err)
	require.Zero(t, marked)

	count, err = f.messages.UnreadCount(ctx, f.group.ID, f.member.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	_, err = f.messages.UnreadCount(ctx, f.group.ID, f.outsider.ID)
	require.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}
