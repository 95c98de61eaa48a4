package services

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/internal/payment"
	"github.com/charlesng35/happycat/pkg/crypto"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

const testHashSecret = "gateway-secret"

type commerceFixture struct {
	db        *gorm.DB
	packages  *PackageService
	purchases *PurchaseService
	payments  *PaymentService
	premium   *models.Package
}

func newCommerceFixture(t *testing.T) *commerceFixture {
	t.Helper()
	db := openServiceTestDB(t)
	aside := newTestAside()
	packages, err := NewPackageService(db, aside)
	require.NoError(t, err)
	purchases, err := NewPurchaseService(db, aside)
	require.NoError(t, err)
	gateway, err := payment.NewGateway(payment.Config{
		TmnCode:    "HAPPYCAT",
		HashSecret: testHashSecret,
		PayURL:     "https://sandbox.example.com/pay",
	})
	require.NoError(t, err)
	payments, err := NewPaymentService(db, gateway, purchases)
	require.NoError(t, err)

	var premium models.Package
	require.NoError(t, db.Where("type = ?", models.PackagePremium).First(&premium).Error)
	return &commerceFixture{db: db, packages: packages, purchases: purchases, payments: payments, premium: &premium}
}

func gatewayCallback(txnRef string, amount int64, code string) url.Values {
	values := url.Values{
		"vnp_TmnCode":           {"HAPPYCAT"},
		"vnp_Amount":            {strconv.FormatInt(amount*100, 10)},
		"vnp_TxnRef":            {txnRef},
		"vnp_ResponseCode":      {code},
		"vnp_TransactionStatus": {code},
		"vnp_TransactionNo":     {"14000001"},
	}
	values.Set("vnp_SecureHash", crypto.SignHMACSHA512(testHashSecret, values.Encode()))
	return values
}

func TestPackageCatalog(t *testing.T) {
	fx := newCommerceFixture(t)
	ctx := context.Background()

	_, err := fx.packages.Create(ctx, nil, PackageInput{Name: "Premium again", Type: "premium", Price: 1}, "")
	require.True(t, apperrors.Is(err, apperrors.ErrConflict))

	standard, err := fx.packages.Create(ctx, nil, PackageInput{Name: "Standard", Type: "standard", Price: 149000, Features: []string{"units"}}, "")
	require.NoError(t, err)
	require.Equal(t, 30, standard.DurationDays)

	page, err := fx.packages.List(ctx, cache.Query{})
	require.NoError(t, err)
	require.Len(t, page.Data, 4)
	require.Equal(t, models.PackageFree, page.Data[0].Type)

	require.NoError(t, fx.packages.SetActive(ctx, nil, standard.ID, false, ""))
	page, err = fx.packages.List(ctx, cache.Query{})
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
}

func TestPurchaseVerifyGrantsSubscription(t *testing.T) {
	fx := newCommerceFixture(t)
	ctx := context.Background()
	buyer := seedUser(t, fx.db, "buyer")

	purchase, err := fx.purchases.Create(ctx, nil, buyer.ID, fx.premium.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.PurchasePending, purchase.Status)
	require.Equal(t, fx.premium.Price, purchase.Amount)

	verified, err := fx.purchases.Verify(ctx, nil, purchase.ID, "manual")
	require.NoError(t, err)
	require.Equal(t, models.PurchaseCompleted, verified.Status)

	_, err = fx.purchases.Verify(ctx, nil, purchase.ID, "manual")
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	var user models.User
	require.NoError(t, fx.db.First(&user, "id = ?", buyer.ID).Error)
	require.Equal(t, models.PackagePremium, user.AccountPackage)

	subs, err := fx.purchases.ListSubscriptions(ctx, buyer.ID, cache.Query{})
	require.NoError(t, err)
	require.Len(t, subs.Data, 1)
	require.Equal(t, models.SubscriptionActive, subs.Data[0].Status)

	other := seedUser(t, fx.db, "snoop")
	_, err = fx.purchases.CancelSubscription(ctx, nil, subs.Data[0].ID, Actor{UserID: other.ID, Role: models.RoleStudent})
	require.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	cancelled, err := fx.purchases.CancelSubscription(ctx, nil, subs.Data[0].ID, Actor{UserID: buyer.ID, Role: models.RoleStudent})
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionCancelled, cancelled.Status)
	require.NoError(t, fx.db.First(&user, "id = ?", buyer.ID).Error)
	require.Equal(t, models.PackageFree, user.AccountPackage)
}

func TestPurchaseRejectsFreePackage(t *testing.T) {
	fx := newCommerceFixture(t)
	buyer := seedUser(t, fx.db, "cheap")
	var free models.Package
	require.NoError(t, fx.db.Where("type = ?", models.PackageFree).First(&free).Error)

	_, err := fx.purchases.Create(context.Background(), nil, buyer.ID, free.ID, "")
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestPaymentCheckoutAndCallback(t *testing.T) {
	fx := newCommerceFixture(t)
	ctx := context.Background()
	buyer := seedUser(t, fx.db, "payer")

	checkout, err := fx.payments.Checkout(ctx, CheckoutInput{UserID: buyer.ID, PackageID: fx.premium.ID, ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	link, err := url.Parse(checkout.PaymentURL)
	require.NoError(t, err)
	require.Equal(t, checkout.Purchase.TransactionID, link.Query().Get("vnp_TxnRef"))

	_, err = fx.payments.HandleCallback(ctx, gatewayCallback(checkout.Purchase.TransactionID, 1, "00"))
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	tampered := gatewayCallback(checkout.Purchase.TransactionID, fx.premium.Price, "00")
	tampered.Set("vnp_Amount", "100")
	_, err = fx.payments.HandleCallback(ctx, tampered)
	require.True(t, apperrors.Is(err, payment.ErrInvalidSignature))

	outcome, err := fx.payments.HandleCallback(ctx, gatewayCallback(checkout.Purchase.TransactionID, fx.premium.Price, "00"))
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, models.PurchaseCompleted, outcome.Purchase.Status)

	var user models.User
	require.NoError(t, fx.db.First(&user, "id = ?", buyer.ID).Error)
	require.Equal(t, models.PackagePremium, user.AccountPackage)

	_, err = fx.payments.HandleCallback(ctx, gatewayCallback("unknown-ref", fx.premium.Price, "00"))
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestPaymentDeclinedMarksFailed(t *testing.T) {
	fx := newCommerceFixture(t)
	ctx := context.Background()
	buyer := seedUser(t, fx.db, "declined")

	checkout, err := fx.payments.Checkout(ctx, CheckoutInput{UserID: buyer.ID, PackageID: fx.premium.ID})
	require.NoError(t, err)

	outcome, err := fx.payments.HandleCallback(ctx, gatewayCallback(checkout.Purchase.TransactionID, fx.premium.Price, "24"))
	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.Equal(t, models.PurchaseFailed, outcome.Purchase.Status)

	var subs int64
	require.NoError(t, fx.db.Model(&models.Subscription{}).Where("user_id = ?", buyer.ID).Count(&subs).Error)
	require.Zero(t, subs)
}

func TestDeclineAfterCompletionKeepsPurchaseCompleted(t *testing.T) {
	fx := newCommerceFixture(t)
	ctx := context.Background()
	buyer := seedUser(t, fx.db, "racer")

	checkout, err := fx.payments.Checkout(ctx, CheckoutInput{UserID: buyer.ID, PackageID: fx.premium.ID})
	require.NoError(t, err)
	stale := *checkout.Purchase
	require.Equal(t, models.PurchasePending, stale.Status)

	outcome, err := fx.payments.HandleCallback(ctx, gatewayCallback(stale.TransactionID, fx.premium.Price, "00"))
	require.NoError(t, err)
	require.True(t, outcome.Success)

	// a declined callback that loaded the purchase before it completed
	require.NoError(t, database.Run(ctx, fx.db, nil, func(tx *database.Tx) error {
		return fx.purchases.fail(tx, &stale, "14000002")
	}))
	require.Equal(t, models.PurchasePending, stale.Status)

	var stored models.Purchase
	require.NoError(t, fx.db.First(&stored, "id = ?", stale.ID).Error)
	require.Equal(t, models.PurchaseCompleted, stored.Status)
	require.Equal(t, "14000001", stored.GatewayRef)
}

func TestExpireSubscriptions(t *testing.T) {
	fx := newCommerceFixture(t)
	ctx := context.Background()
	buyer := seedUser(t, fx.db, "lapsed")

	purchase, err := fx.purchases.Create(ctx, nil, buyer.ID, fx.premium.ID, "")
	require.NoError(t, err)
	_, err = fx.purchases.Verify(ctx, nil, purchase.ID, "")
	require.NoError(t, err)

	n, err := fx.purchases.ExpireSubscriptions(ctx, time.Now())
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = fx.purchases.ExpireSubscriptions(ctx, time.Now().AddDate(0, 0, 31))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	var user models.User
	require.NoError(t, fx.db.First(&user, "id = ?", buyer.ID).Error)
	require.Equal(t, models.PackageFree, user.AccountPackage)
}
