package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/internal/realtime"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/logger"
)

const maxMessageLength = 4000

// MessageInput posts a message to a group. ReplyTo threads it under an
// existing message of the same group.
type MessageInput struct {
	GroupID  string  `json:"group_id" validate:"required,uuid"`
	SenderID string  `json:"-"`
	Content  string  `json:"content" validate:"required,max=4000"`
	ReplyTo  *string `json:"reply_to" validate:"omitempty,uuid"`
}

// GroupMessageService stores group chat messages and pushes their events to
// websocket subscribers once committed.
type GroupMessageService struct {
	db        *gorm.DB
	cache     *cache.Aside
	publisher realtime.Publisher
	now       func() time.Time
	log       *zap.Logger
}

// NewGroupMessageService constructs a GroupMessageService. publisher may be
// nil, in which case no events are pushed.
func NewGroupMessageService(db *gorm.DB, aside *cache.Aside, publisher realtime.Publisher) (*GroupMessageService, error) {
	if db == nil {
		return nil, errors.New("group message service: db is required")
	}
	return &GroupMessageService{
		db:        db,
		cache:     aside,
		publisher: publisher,
		now:       time.Now,
		log:       logger.WithModule("group-messages"),
	}, nil
}

// Send stores a message and publishes message.created after commit.
func (s *GroupMessageService) Send(ctx context.Context, outer *database.Tx, input MessageInput) (*models.GroupMessage, error) {
	senderID, err := parseID(input.SenderID, "user")
	if err != nil {
		return nil, err
	}
	groupID, err := parseID(input.GroupID, "group")
	if err != nil {
		return nil, err
	}
	var replyTo *string
	if input.ReplyTo != nil && strings.TrimSpace(*input.ReplyTo) != "" {
		id, err := parseID(*input.ReplyTo, "message")
		if err != nil {
			return nil, err
		}
		replyTo = &id
	}
	content := strings.TrimSpace(input.Content)

	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.GroupMessage, error) {
		if _, err := findActive[models.User](tx.DB(), senderID, "user"); err != nil {
			return nil, err
		}
		if _, err := findActive[models.Group](tx.DB(), groupID, "group"); err != nil {
			return nil, err
		}
		if replyTo != nil {
			var parent models.GroupMessage
			err := tx.DB().Where("id = ? AND group_id = ? AND is_active = ?", *replyTo, groupID, true).First(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("message")
			}
			if err != nil {
				return nil, fmt.Errorf("group message service: load parent: %w", err)
			}
		}
		if err := requireMember(tx.DB(), groupID, senderID); err != nil {
			return nil, err
		}
		if content == "" || len(content) > maxMessageLength {
			return nil, apperrors.NewBadRequest("Message content must be between 1 and 4000 characters.")
		}

		msg := &models.GroupMessage{
			GroupID:  groupID,
			SenderID: senderID,
			Content:  content,
			ReplyTo:  replyTo,
		}
		if err := tx.DB().Create(msg).Error; err != nil {
			return nil, fmt.Errorf("group message service: create: %w", err)
		}
		// The sender has read their own message.
		read := models.GroupMessageRead{MessageID: msg.ID, UserID: senderID, GroupID: groupID, ReadAt: s.now().UTC()}
		if err := tx.DB().Create(&read).Error; err != nil {
			return nil, fmt.Errorf("group message service: mark own read: %w", err)
		}
		s.cache.Invalidate(tx, collectionGroupMessages)
		s.publishAfterCommit(tx, groupID, realtime.EventMessageCreated, *msg)
		return msg, nil
	})
}

// List pages the top-level messages of a group. Only members may read.
func (s *GroupMessageService) List(ctx context.Context, rawGroupID, rawUserID string, q cache.Query) (cache.Page[models.GroupMessage], error) {
	groupID, _, err := s.readable(ctx, rawGroupID, rawUserID)
	if err != nil {
		return cache.Page[models.GroupMessage]{}, err
	}
	return listCached[models.GroupMessage](ensureContext(ctx), s.db, s.cache, collectionGroupMessages, "group",
		[]cache.Filter{cache.F("group", groupID)}, q, nil,
		func(db *gorm.DB) *gorm.DB {
			return db.Where("group_id = ? AND is_active = ? AND reply_to IS NULL", groupID, true)
		})
}

// Replies pages the replies to one message.
func (s *GroupMessageService) Replies(ctx context.Context, rawMessageID, rawUserID string, q cache.Query) (cache.Page[models.GroupMessage], error) {
	messageID, err := parseID(rawMessageID, "message")
	if err != nil {
		return cache.Page[models.GroupMessage]{}, err
	}
	parent, err := findActive[models.GroupMessage](s.db.WithContext(ensureContext(ctx)), messageID, "message")
	if err != nil {
		return cache.Page[models.GroupMessage]{}, err
	}
	if _, _, err := s.readable(ctx, parent.GroupID, rawUserID); err != nil {
		return cache.Page[models.GroupMessage]{}, err
	}
	if q.Sort == "" {
		q.Sort, q.Order = "created_at", "asc"
	}
	return listCached[models.GroupMessage](ensureContext(ctx), s.db, s.cache, collectionGroupMessages, "replies",
		[]cache.Filter{cache.F("parent", messageID)}, q, nil,
		func(db *gorm.DB) *gorm.DB {
			return db.Where("reply_to = ? AND is_active = ?", messageID, true)
		})
}

// Edit replaces the content of a message. Only its author may edit.
func (s *GroupMessageService) Edit(ctx context.Context, outer *database.Tx, rawMessageID, rawUserID, content string) (*models.GroupMessage, error) {
	messageID, err := parseID(rawMessageID, "message")
	if err != nil {
		return nil, err
	}
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.GroupMessage, error) {
		msg, err := findActive[models.GroupMessage](tx.DB(), messageID, "message")
		if err != nil {
			return nil, err
		}
		if msg.SenderID != userID {
			return nil, apperrors.NewForbidden("Only the author can edit this message.")
		}
		if content == "" || len(content) > maxMessageLength {
			return nil, apperrors.NewBadRequest("Message content must be between 1 and 4000 characters.")
		}
		now := s.now().UTC()
		if err := tx.DB().Model(msg).Updates(map[string]any{"content": content, "is_edited": true, "edited_at": now}).Error; err != nil {
			return nil, fmt.Errorf("group message service: edit: %w", err)
		}
		msg.Content, msg.IsEdited, msg.EditedAt = content, true, &now
		s.cache.Invalidate(tx, collectionGroupMessages)
		s.publishAfterCommit(tx, msg.GroupID, realtime.EventMessageUpdated, *msg)
		return msg, nil
	})
}

// Delete soft deletes a message. The author, the group owner and admins may
// delete.
func (s *GroupMessageService) Delete(ctx context.Context, outer *database.Tx, rawMessageID string, actor Actor) error {
	messageID, err := parseID(rawMessageID, "message")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		msg, err := findActive[models.GroupMessage](tx.DB(), messageID, "message")
		if err != nil {
			return err
		}
		if msg.SenderID != actor.UserID && !actor.IsAdmin() {
			group, err := findByID[models.Group](tx.DB(), msg.GroupID, "group")
			if err != nil {
				return err
			}
			if group.OwnerID != actor.UserID {
				return apperrors.NewForbidden("You cannot delete this message.")
			}
		}
		if err := setActive(tx, &models.GroupMessage{}, messageID, false, "", "message"); err != nil {
			return err
		}
		s.cache.Invalidate(tx, collectionGroupMessages)
		s.publishAfterCommit(tx, msg.GroupID, realtime.EventMessageDeleted, map[string]string{"id": msg.ID})
		return nil
	})
}

// MarkRead marks every active message of the group as read by userID and
// returns how many were newly marked.
func (s *GroupMessageService) MarkRead(ctx context.Context, outer *database.Tx, rawGroupID, rawUserID string) (int64, error) {
	groupID, err := parseID(rawGroupID, "group")
	if err != nil {
		return 0, err
	}
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return 0, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (int64, error) {
		if _, err := findActive[models.Group](tx.DB(), groupID, "group"); err != nil {
			return 0, err
		}
		if err := requireMember(tx.DB(), groupID, userID); err != nil {
			return 0, err
		}
		var ids []string
		if err := unreadScope(tx.DB(), groupID, userID).Pluck("id", &ids).Error; err != nil {
			return 0, fmt.Errorf("group message service: load unread: %w", err)
		}
		if len(ids) == 0 {
			return 0, nil
		}
		now := s.now().UTC()
		rows := make([]models.GroupMessageRead, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, models.GroupMessageRead{MessageID: id, UserID: userID, GroupID: groupID, ReadAt: now})
		}
		res := tx.DB().Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, 200)
		if res.Error != nil {
			return 0, fmt.Errorf("group message service: mark read: %w", res.Error)
		}
		s.publishAfterCommit(tx, groupID, realtime.EventMessageRead, map[string]any{"user_id": userID, "count": len(ids)})
		return int64(len(ids)), nil
	})
}

// UnreadCount returns how many active messages of the group userID has not
// read.
func (s *GroupMessageService) UnreadCount(ctx context.Context, rawGroupID, rawUserID string) (int64, error) {
	groupID, userID, err := s.readable(ctx, rawGroupID, rawUserID)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := unreadScope(s.db.WithContext(ensureContext(ctx)), groupID, userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("group message service: unread count: %w", err)
	}
	return count, nil
}

func (s *GroupMessageService) readable(ctx context.Context, rawGroupID, rawUserID string) (string, string, error) {
	groupID, err := parseID(rawGroupID, "group")
	if err != nil {
		return "", "", err
	}
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return "", "", err
	}
	db := s.db.WithContext(ensureContext(ctx))
	if _, err := findActive[models.Group](db, groupID, "group"); err != nil {
		return "", "", err
	}
	if err := requireMember(db, groupID, userID); err != nil {
		return "", "", err
	}
	return groupID, userID, nil
}

func (s *GroupMessageService) publishAfterCommit(tx *database.Tx, groupID, event string, data any) {
	if s.publisher == nil {
		return
	}
	tx.AfterCommit(func(context.Context) error {
		s.publisher.BroadcastStream(realtime.GroupStream(groupID), realtime.Message{
			Event: event,
			Data:  data,
			Meta:  map[string]any{"group_id": groupID},
		})
		return nil
	})
}

func unreadScope(db *gorm.DB, groupID, userID string) *gorm.DB {
	read := db.Session(&gorm.Session{NewDB: true}).
		Model(&models.GroupMessageRead{}).
		Select("message_id").
		Where("group_id = ? AND user_id = ?", groupID, userID)
	return db.Model(&models.GroupMessage{}).
		Where("group_id = ? AND is_active = ? AND id NOT IN (?)", groupID, true, read)
}

func requireMember(db *gorm.DB, groupID, userID string) error {
	member, err := isGroupMember(db, groupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return apperrors.NewForbidden("You are not a member of this group.")
	}
	return nil
}
