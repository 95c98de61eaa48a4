package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

// Cache collections. Each name prefixes the keys of one entity and is the
// unit of invalidation.
const (
	collectionUsers              = "users"
	collectionInvitationCodes    = "invitation_codes"
	collectionHistoryInvitations = "history_invitations"
	collectionProvinces          = "provinces"
	collectionDistricts          = "districts"
	collectionSchools            = "schools"
	collectionClasses            = "classes"
	collectionUnits              = "units"
	collectionLessons            = "lessons"
	collectionUnitProgress       = "unit_progress"
	collectionLessonProgress     = "lesson_progress"
	collectionProgresses         = "progresses"
	collectionPackages           = "packages"
	collectionPurchases          = "purchases"
	collectionSubscriptions      = "subscriptions"
	collectionLiteratures        = "literatures"
	collectionGroups             = "groups"
	collectionGroupMessages      = "group_messages"
	collectionAssignments        = "assignments"
	collectionSubmissions        = "submissions"
	collectionBadges             = "badges"
	collectionUserBadges         = "user_badges"
	collectionSupports           = "supports"
	collectionFeedbacks          = "feedbacks"
	collectionCompetitions       = "competitions"
)

var defaultSorts = []string{"created_at", "updated_at"}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// parseID rejects identifiers that are not UUIDs.
func parseID(raw, label string) (string, error) {
	id := strings.TrimSpace(raw)
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.NewBadRequest(fmt.Sprintf("Invalid %s id.", label))
	}
	return strings.ToLower(id), nil
}

func notFound(label string) error {
	return apperrors.NewNotFound(capitalize(label) + " not found.")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// findActive loads an active record by id, mapping a miss to NotFound.
func findActive[T any](db *gorm.DB, id, label string) (*T, error) {
	var out T
	err := db.Where("id = ? AND is_active = ?", id, true).First(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(label)
		}
		return nil, fmt.Errorf("load %s: %w", label, err)
	}
	return &out, nil
}

// findByID loads a record by id regardless of status.
func findByID[T any](db *gorm.DB, id, label string) (*T, error) {
	var out T
	if err := db.Where("id = ?", id).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(label)
		}
		return nil, fmt.Errorf("load %s: %w", label, err)
	}
	return &out, nil
}

// exists reports whether any row of model matches the condition.
func exists(db *gorm.DB, model any, query string, args ...any) (bool, error) {
	var count int64
	if err := db.Model(model).Where(query, args...).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// setActive flips the soft-delete flag of one record. Only records in the
// opposite state match, so deleting an inactive record is NotFound. actorID
// is recorded in updated_by and must be empty for models without it.
func setActive(tx *database.Tx, model any, id string, active bool, actorID, label string) error {
	updates := map[string]any{"is_active": active}
	if actorID != "" {
		updates["updated_by"] = actorID
	}
	res := tx.DB().Model(model).
		Where("id = ? AND is_active = ?", id, !active).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update %s status: %w", label, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(label)
	}
	return nil
}

// queryPage counts and fetches one page on scope. scope must carry the model.
func queryPage[T any](scope *gorm.DB, q cache.Query) ([]T, int64, error) {
	var total int64
	if err := scope.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []T
	if total == 0 {
		return items, 0, nil
	}
	if err := scope.Session(&gorm.Session{}).
		Order(q.OrderBy()).
		Offset(q.Offset()).
		Limit(q.Limit).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// listCached normalises q and serves one page through the cache-aside reader.
func listCached[T any](ctx context.Context, db *gorm.DB, aside *cache.Aside, collection, op string, filters []cache.Filter, q cache.Query, sorts []string, where func(*gorm.DB) *gorm.DB) (cache.Page[T], error) {
	if len(sorts) == 0 {
		sorts = defaultSorts
	}
	q, err := q.Normalize(sorts...)
	if err != nil {
		return cache.Page[T]{}, err
	}
	page, err := cache.CachedPage(ctx, aside, collection, op, filters, q, func(ctx context.Context) ([]T, int64, error) {
		scope := db.WithContext(ctx).Model(new(T))
		if where != nil {
			scope = where(scope)
		}
		return queryPage[T](scope, q)
	})
	if err != nil {
		return cache.Page[T]{}, fmt.Errorf("list %s: %w", collection, err)
	}
	return page, nil
}

// getCached serves an active record by id through the cache-aside reader.
func getCached[T any](ctx context.Context, db *gorm.DB, aside *cache.Aside, collection, rawID, label string) (*T, error) {
	id, err := parseID(rawID, label)
	if err != nil {
		return nil, err
	}
	item, err := cache.CachedItem(ctx, aside, collection, id, func(ctx context.Context) (T, error) {
		rec, err := findActive[T](db.WithContext(ctx), id, label)
		if err != nil {
			var zero T
			return zero, err
		}
		return *rec, nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// conflictOnUnique maps storage uniqueness violations raised by a write that
// raced past the explicit duplicate check.
func conflictOnUnique(err error, message string) error {
	if uniqueViolation(err) {
		return apperrors.NewConflict(message)
	}
	return err
}

// uniqueViolation recognises duplicate-key failures from each supported driver:
// gorm's translated error, postgres SQLSTATE 23505, mysql error 1062 and the
// sqlite "UNIQUE constraint failed" message.
func uniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcodeUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDupEntry
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

const (
	pgerrcodeUniqueViolation = "23505"
	mysqlErrDupEntry         = 1062
)

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// lockForUpdate adds a row lock on drivers that support it. SQLite
// serialises writers already.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// normaliseIDs trims, drops blanks and de-duplicates while keeping order.
func normaliseIDs(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if _, dup := seen[value]; dup || value == "" {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
