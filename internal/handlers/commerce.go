package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/payment"
	"github.com/charlesng35/happycat/internal/services"
	"github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/response"
)

// CommerceHandler serves the package catalog, purchases, subscriptions and
// the payment gateway callbacks.
type CommerceHandler struct {
	packages  *services.PackageService
	purchases *services.PurchaseService
	payments  *services.PaymentService
}

// NewCommerceHandler wires the commerce services. payments may be nil when no
// gateway is configured; checkout and callbacks then answer 404.
func NewCommerceHandler(packages *services.PackageService, purchases *services.PurchaseService, payments *services.PaymentService) *CommerceHandler {
	return &CommerceHandler{packages: packages, purchases: purchases, payments: payments}
}

type createPurchaseRequest struct {
	PackageID string `json:"package_id" validate:"required,uuid"`
	Method    string `json:"method" validate:"omitempty,max=32"`
}

type verifyPurchaseRequest struct {
	GatewayRef string `json:"gateway_ref" validate:"omitempty,max=64"`
}

// POST /api/packages
func (h *CommerceHandler) CreatePackage(c *gin.Context) {
	var body services.PackageInput
	if !bindAndValidate(c, &body) {
		return
	}
	pkg, err := h.packages.Create(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, pkg, err)
}

// GET /api/packages
func (h *CommerceHandler) ListPackages(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.packages.List(requestContext(c), q)
	respondPage(c, page, err)
}

// GET /api/packages/:id
func (h *CommerceHandler) GetPackage(c *gin.Context) {
	pkg, err := h.packages.Get(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, pkg, err)
}

// PATCH /api/packages/:id
func (h *CommerceHandler) UpdatePackage(c *gin.Context) {
	var body services.PackageUpdate
	if !bindAndValidate(c, &body) {
		return
	}
	pkg, err := h.packages.Update(requestContext(c), nil, c.Param("id"), body, actorFrom(c).UserID)
	respond(c, http.StatusOK, pkg, err)
}

// DELETE /api/packages/:id
func (h *CommerceHandler) DeletePackage(c *gin.Context) {
	respondDone(c, h.packages.SetActive(requestContext(c), nil, c.Param("id"), false, actorFrom(c).UserID))
}

// POST /api/packages/:id/restore
func (h *CommerceHandler) RestorePackage(c *gin.Context) {
	respondDone(c, h.packages.SetActive(requestContext(c), nil, c.Param("id"), true, actorFrom(c).UserID))
}

// POST /api/purchases
func (h *CommerceHandler) CreatePurchase(c *gin.Context) {
	var body createPurchaseRequest
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.purchases.Create(requestContext(c), nil, actorFrom(c).UserID, body.PackageID, body.Method)
	respond(c, http.StatusCreated, rec, err)
}

// GET /api/purchases
func (h *CommerceHandler) ListPurchases(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.purchases.ListByUser(requestContext(c), targetUser(c), q)
	respondPage(c, page, err)
}

// GET /api/purchases/:id
func (h *CommerceHandler) GetPurchase(c *gin.Context) {
	rec, err := h.purchases.Get(requestContext(c), c.Param("id"), actorFrom(c))
	respond(c, http.StatusOK, rec, err)
}

// POST /api/purchases/:id/verify
func (h *CommerceHandler) VerifyPurchase(c *gin.Context) {
	var body verifyPurchaseRequest
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.purchases.Verify(requestContext(c), nil, c.Param("id"), body.GatewayRef)
	respond(c, http.StatusOK, rec, err)
}

// GET /api/subscriptions
func (h *CommerceHandler) ListSubscriptions(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.purchases.ListSubscriptions(requestContext(c), targetUser(c), q)
	respondPage(c, page, err)
}

// POST /api/subscriptions/:id/cancel
func (h *CommerceHandler) CancelSubscription(c *gin.Context) {
	sub, err := h.purchases.CancelSubscription(requestContext(c), nil, c.Param("id"), actorFrom(c))
	respond(c, http.StatusOK, sub, err)
}

// POST /api/payments/checkout
func (h *CommerceHandler) Checkout(c *gin.Context) {
	if h.payments == nil {
		response.Error(c, errors.NewNotFound("Online payments are not enabled."))
		return
	}
	var body services.CheckoutInput
	if !bindAndValidate(c, &body) {
		return
	}
	body.UserID = actorFrom(c).UserID
	body.ClientIP = c.ClientIP()
	checkout, err := h.payments.Checkout(requestContext(c), body)
	respond(c, http.StatusCreated, checkout, err)
}

// GET /api/payments/return
//
// The browser lands here after paying; the outcome is reported back as JSON.
func (h *CommerceHandler) PaymentReturn(c *gin.Context) {
	if h.payments == nil {
		response.Error(c, errors.NewNotFound("Online payments are not enabled."))
		return
	}
	outcome, err := h.payments.HandleCallback(requestContext(c), c.Request.URL.Query())
	respond(c, http.StatusOK, outcome, err)
}

type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// GET /api/payments/ipn
//
// Server-to-server notification. The gateway expects HTTP 200 with its own
// response codes, never the API envelope.
func (h *CommerceHandler) PaymentIPN(c *gin.Context) {
	if h.payments == nil {
		c.JSON(http.StatusOK, ipnResponse{RspCode: "99", Message: "Payments disabled"})
		return
	}
	_, err := h.payments.HandleCallback(requestContext(c), c.Request.URL.Query())
	c.JSON(http.StatusOK, ipnAnswer(err))
}

func ipnAnswer(err error) ipnResponse {
	switch {
	case err == nil:
		return ipnResponse{RspCode: "00", Message: "Confirm Success"}
	case errors.Is(err, payment.ErrInvalidSignature):
		return ipnResponse{RspCode: "97", Message: "Invalid Checksum"}
	case errors.Is(err, services.ErrAmountMismatch):
		return ipnResponse{RspCode: "04", Message: "Invalid amount"}
	case errors.Is(err, errors.ErrNotFound):
		return ipnResponse{RspCode: "01", Message: "Order not found"}
	case errors.Is(err, errors.ErrBadRequest):
		return ipnResponse{RspCode: "02", Message: "Order already confirmed"}
	default:
		return ipnResponse{RspCode: "99", Message: "Unknown error"}
	}
}
