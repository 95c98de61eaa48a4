package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/pkg/crypto"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/logger"
)

const transactionRefLayout = "20060102150405"

// PurchaseService records package purchases and the subscriptions they
// grant.
type PurchaseService struct {
	db    *gorm.DB
	cache *cache.Aside
	now   func() time.Time
	log   *zap.Logger
}

// NewPurchaseService constructs a PurchaseService.
func NewPurchaseService(db *gorm.DB, aside *cache.Aside) (*PurchaseService, error) {
	if db == nil {
		return nil, errors.New("purchase service: db is required")
	}
	return &PurchaseService{db: db, cache: aside, now: time.Now, log: logger.WithModule("purchases")}, nil
}

// Create opens a PENDING purchase of a paid package.
func (s *PurchaseService) Create(ctx context.Context, outer *database.Tx, rawUserID, rawPackageID, method string) (*models.Purchase, error) {
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return nil, err
	}
	packageID, err := parseID(rawPackageID, "package")
	if err != nil {
		return nil, err
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "VNPAY"
	}

	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Purchase, error) {
		if _, err := findActive[models.User](tx.DB(), userID, "user"); err != nil {
			return nil, err
		}
		pkg, err := findActive[models.Package](tx.DB(), packageID, "package")
		if err != nil {
			return nil, err
		}
		if pkg.Price <= 0 {
			return nil, apperrors.NewBadRequest("Free packages cannot be purchased.")
		}
		ref, err := s.transactionRef()
		if err != nil {
			return nil, err
		}
		rec := &models.Purchase{
			UserID:        userID,
			PackageID:     pkg.ID,
			TransactionID: ref,
			Method:        method,
			Amount:        pkg.Price,
			Currency:      pkg.Currency,
			Status:        models.PurchasePending,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("purchase service: create: %w", conflictOnUnique(err, "Transaction reference already exists."))
		}
		s.cache.Invalidate(tx, collectionPurchases)
		return rec, nil
	})
}

func (s *PurchaseService) transactionRef() (string, error) {
	suffix, err := crypto.GenerateCode(6)
	if err != nil {
		return "", fmt.Errorf("purchase service: generate reference: %w", err)
	}
	return s.now().UTC().Format(transactionRefLayout) + suffix, nil
}

// Get returns a purchase. Learners only see their own.
func (s *PurchaseService) Get(ctx context.Context, rawID string, actor Actor) (*models.Purchase, error) {
	id, err := parseID(rawID, "purchase")
	if err != nil {
		return nil, err
	}
	rec, err := findByID[models.Purchase](s.db.WithContext(ensureContext(ctx)), id, "purchase")
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(rec.UserID) {
		return nil, apperrors.NewForbidden("You can only view your own purchases.")
	}
	return rec, nil
}

// ListByUser pages a user's purchases.
func (s *PurchaseService) ListByUser(ctx context.Context, rawUserID string, q cache.Query) (cache.Page[models.Purchase], error) {
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return cache.Page[models.Purchase]{}, err
	}
	return listCached[models.Purchase](ensureContext(ctx), s.db, s.cache, collectionPurchases, "by-user",
		[]cache.Filter{cache.F("user_id", userID)}, q, []string{"created_at", "amount"},
		func(db *gorm.DB) *gorm.DB { return db.Where("user_id = ?", userID) })
}

// Verify completes a purchase by id: the purchase becomes COMPLETED, a
// subscription is opened and the user's account package is upgraded, all in
// one transaction. Completing a purchase twice is a BadRequest.
func (s *PurchaseService) Verify(ctx context.Context, outer *database.Tx, rawID, gatewayRef string) (*models.Purchase, error) {
	id, err := parseID(rawID, "purchase")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Purchase, error) {
		rec, err := findByID[models.Purchase](tx.DB(), id, "purchase")
		if err != nil {
			return nil, err
		}
		if err := s.complete(tx, rec, gatewayRef); err != nil {
			return nil, err
		}
		return rec, nil
	})
}

// findByTransaction loads a purchase by its gateway reference.
func (s *PurchaseService) findByTransaction(tx *database.Tx, ref string) (*models.Purchase, error) {
	var rec models.Purchase
	err := tx.DB().Where("transaction_id = ?", strings.TrimSpace(ref)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("purchase")
	}
	if err != nil {
		return nil, fmt.Errorf("purchase service: find by transaction: %w", err)
	}
	return &rec, nil
}

func (s *PurchaseService) complete(tx *database.Tx, rec *models.Purchase, gatewayRef string) error {
	if _, err := findActive[models.User](tx.DB(), rec.UserID, "user"); err != nil {
		return err
	}
	pkg, err := findByID[models.Package](tx.DB(), rec.PackageID, "package")
	if err != nil {
		return err
	}
	if rec.VerifiedAt != nil || rec.Status == models.PurchaseCompleted {
		return apperrors.NewBadRequest("Purchase already verified.")
	}
	if rec.Status != models.PurchasePending {
		return apperrors.NewBadRequest("Only pending purchases can be verified.")
	}

	now := s.now().UTC()
	res := tx.DB().Model(&models.Purchase{}).
		Where("id = ? AND status = ?", rec.ID, models.PurchasePending).
		Updates(map[string]any{"status": models.PurchaseCompleted, "verified_at": now, "gateway_ref": gatewayRef})
	if res.Error != nil {
		return fmt.Errorf("purchase service: complete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewBadRequest("Purchase already verified.")
	}
	rec.Status, rec.VerifiedAt, rec.GatewayRef = models.PurchaseCompleted, &now, gatewayRef

	// a repurchase replaces the running subscription
	if err := tx.DB().Model(&models.Subscription{}).
		Where("user_id = ? AND status = ?", rec.UserID, models.SubscriptionActive).
		Update("status", models.SubscriptionCancelled).Error; err != nil {
		return fmt.Errorf("purchase service: close previous subscriptions: %w", err)
	}
	sub := &models.Subscription{
		UserID:     rec.UserID,
		PackageID:  pkg.ID,
		PurchaseID: &rec.ID,
		StartDate:  now,
		EndDate:    now.AddDate(0, 0, pkg.DurationDays),
		Status:     models.SubscriptionActive,
	}
	if err := tx.DB().Create(sub).Error; err != nil {
		return fmt.Errorf("purchase service: create subscription: %w", conflictOnUnique(err, "Purchase already has a subscription."))
	}
	if err := tx.DB().Model(&models.User{}).Where("id = ?", rec.UserID).
		Update("account_package", pkg.Type).Error; err != nil {
		return fmt.Errorf("purchase service: upgrade user: %w", err)
	}

	s.cache.Invalidate(tx, collectionPurchases, collectionSubscriptions, collectionUsers)
	return nil
}

// fail marks a pending purchase FAILED. Non-pending purchases are left alone.
func (s *PurchaseService) fail(tx *database.Tx, rec *models.Purchase, gatewayRef string) error {
	if rec.Status != models.PurchasePending {
		return nil
	}
	res := tx.DB().Model(&models.Purchase{}).
		Where("id = ? AND status = ?", rec.ID, models.PurchasePending).
		Updates(map[string]any{"status": models.PurchaseFailed, "gateway_ref": gatewayRef})
	if res.Error != nil {
		return fmt.Errorf("purchase service: fail: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// settled by a concurrent callback
		return nil
	}
	rec.Status, rec.GatewayRef = models.PurchaseFailed, gatewayRef
	s.cache.Invalidate(tx, collectionPurchases)
	return nil
}

// ListSubscriptions pages a user's subscriptions.
func (s *PurchaseService) ListSubscriptions(ctx context.Context, rawUserID string, q cache.Query) (cache.Page[models.Subscription], error) {
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return cache.Page[models.Subscription]{}, err
	}
	return listCached[models.Subscription](ensureContext(ctx), s.db, s.cache, collectionSubscriptions, "by-user",
		[]cache.Filter{cache.F("user_id", userID)}, q, []string{"created_at", "end_date"},
		func(db *gorm.DB) *gorm.DB { return db.Where("user_id = ?", userID) })
}

// CancelSubscription ends an active subscription and returns the user to
// the FREE package.
func (s *PurchaseService) CancelSubscription(ctx context.Context, outer *database.Tx, rawID string, actor Actor) (*models.Subscription, error) {
	id, err := parseID(rawID, "subscription")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Subscription, error) {
		sub, err := findByID[models.Subscription](tx.DB(), id, "subscription")
		if err != nil {
			return nil, err
		}
		if !actor.CanAccess(sub.UserID) {
			return nil, apperrors.NewForbidden("You can only cancel your own subscriptions.")
		}
		if sub.Status != models.SubscriptionActive {
			return nil, apperrors.NewBadRequest("Subscription is not active.")
		}
		if err := tx.DB().Model(sub).Update("status", models.SubscriptionCancelled).Error; err != nil {
			return nil, fmt.Errorf("purchase service: cancel subscription: %w", err)
		}
		if err := tx.DB().Model(&models.User{}).Where("id = ?", sub.UserID).
			Update("account_package", models.PackageFree).Error; err != nil {
			return nil, fmt.Errorf("purchase service: downgrade user: %w", err)
		}
		s.cache.Invalidate(tx, collectionSubscriptions, collectionUsers)
		return sub, nil
	})
}

// ExpireSubscriptions marks subscriptions past their end date EXPIRED and
// returns their users to the FREE package.
func (s *PurchaseService) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	var expired int64
	err := database.Run(ensureContext(ctx), s.db, nil, func(tx *database.Tx) error {
		var userIDs []string
		if err := tx.DB().Model(&models.Subscription{}).
			Where("status = ? AND end_date < ?", models.SubscriptionActive, now).
			Pluck("user_id", &userIDs).Error; err != nil {
			return fmt.Errorf("purchase service: find expired subscriptions: %w", err)
		}
		if len(userIDs) == 0 {
			return nil
		}
		res := tx.DB().Model(&models.Subscription{}).
			Where("status = ? AND end_date < ?", models.SubscriptionActive, now).
			Update("status", models.SubscriptionExpired)
		if res.Error != nil {
			return fmt.Errorf("purchase service: expire subscriptions: %w", res.Error)
		}
		expired = res.RowsAffected

		if err := tx.DB().Model(&models.User{}).
			Where("id IN ? AND id NOT IN (?)", userIDs,
				tx.DB().Model(&models.Subscription{}).Select("user_id").Where("status = ?", models.SubscriptionActive)).
			Update("account_package", models.PackageFree).Error; err != nil {
			return fmt.Errorf("purchase service: downgrade users: %w", err)
		}
		s.cache.Invalidate(tx, collectionSubscriptions, collectionUsers)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Info("subscriptions expired", zap.Int64("count", expired))
	}
	return expired, nil
}
