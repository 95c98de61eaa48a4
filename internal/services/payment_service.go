package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/internal/payment"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/logger"
)

// CheckoutInput starts a package payment.
type CheckoutInput struct {
	UserID    string `json:"-"`
	PackageID string `json:"package_id" validate:"required"`
	BankCode  string `json:"bank_code" validate:"omitempty,max=20"`
	Locale    string `json:"locale" validate:"omitempty,oneof=vn en"`
	ClientIP  string `json:"-"`
}

// Checkout is a pending purchase with the gateway URL to redirect to.
type Checkout struct {
	Purchase   *models.Purchase `json:"purchase"`
	PaymentURL string           `json:"payment_url"`
}

// PaymentOutcome is the result of a gateway callback.
type PaymentOutcome struct {
	Purchase *models.Purchase `json:"purchase"`
	Success  bool             `json:"success"`
	Code     string           `json:"response_code"`
}

// ErrAmountMismatch rejects a callback whose amount differs from the purchase.
var ErrAmountMismatch = apperrors.New("AMOUNT_MISMATCH", "Payment amount does not match the purchase.", http.StatusBadRequest)

// PaymentService connects purchases to the payment gateway.
type PaymentService struct {
	db        *gorm.DB
	gateway   *payment.Gateway
	purchases *PurchaseService
	log       *zap.Logger
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(db *gorm.DB, gateway *payment.Gateway, purchases *PurchaseService) (*PaymentService, error) {
	if db == nil {
		return nil, errors.New("payment service: db is required")
	}
	if gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}
	if purchases == nil {
		return nil, errors.New("payment service: purchase service is required")
	}
	return &PaymentService{db: db, gateway: gateway, purchases: purchases, log: logger.WithModule("payments")}, nil
}

// Checkout creates a PENDING purchase and signs its payment URL. The
// purchase is rolled back when the URL cannot be built.
func (s *PaymentService) Checkout(ctx context.Context, input CheckoutInput) (*Checkout, error) {
	return database.Do(ensureContext(ctx), s.db, nil, func(tx *database.Tx) (*Checkout, error) {
		purchase, err := s.purchases.Create(ctx, tx, input.UserID, input.PackageID, "VNPAY")
		if err != nil {
			return nil, err
		}
		pkg, err := findByID[models.Package](tx.DB(), purchase.PackageID, "package")
		if err != nil {
			return nil, err
		}
		link, err := s.gateway.BuildURL(payment.Request{
			TxnRef:    purchase.TransactionID,
			Amount:    purchase.Amount,
			OrderInfo: fmt.Sprintf("HappyCat %s package %s", pkg.Name, purchase.TransactionID),
			ClientIP:  input.ClientIP,
			Locale:    input.Locale,
			BankCode:  input.BankCode,
		})
		if err != nil {
			return nil, err
		}
		return &Checkout{Purchase: purchase, PaymentURL: link}, nil
	})
}

// HandleCallback verifies a return or IPN query. A successful payment
// completes the purchase in one transaction; a declined one marks it FAILED.
func (s *PaymentService) HandleCallback(ctx context.Context, values url.Values) (*PaymentOutcome, error) {
	result, err := s.gateway.Verify(values)
	if err != nil {
		s.log.Warn("payment callback rejected", zap.Error(err))
		return nil, err
	}

	return database.Do(ensureContext(ctx), s.db, nil, func(tx *database.Tx) (*PaymentOutcome, error) {
		purchase, err := s.purchases.findByTransaction(tx, result.TxnRef)
		if err != nil {
			return nil, err
		}
		if purchase.Amount != result.Amount {
			return nil, ErrAmountMismatch
		}
		if result.Success {
			if err := s.purchases.complete(tx, purchase, result.TransactionNo); err != nil {
				return nil, err
			}
			s.log.Info("payment completed",
				zap.String("purchase_id", purchase.ID),
				zap.String("txn_ref", result.TxnRef),
			)
		} else if err := s.purchases.fail(tx, purchase, result.TransactionNo); err != nil {
			return nil, err
		}
		return &PaymentOutcome{Purchase: purchase, Success: result.Success, Code: result.ResponseCode}, nil
	})
}
