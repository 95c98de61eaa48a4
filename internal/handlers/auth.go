package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/middleware"
	"github.com/charlesng35/happycat/internal/services"
	"github.com/charlesng35/happycat/pkg/response"
)

// AuthHandler manages registration, sign-in and device token lifecycles.
type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type emailCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,max=16"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required,max=16"`
	Password string `json:"password" validate:"required,min=6"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

type providerSignInRequest struct {
	Credential string `json:"credential" validate:"required"`
	DeviceID   string `json:"device_id" validate:"required,max=128"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterInput
	if !bindAndValidate(c, &req) {
		return
	}
	user, err := h.auth.Register(requestContext(c), nil, req)
	respond(c, http.StatusCreated, user, err)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginInput
	if !bindAndValidate(c, &req) {
		return
	}
	result, err := h.auth.Login(requestContext(c), req)
	respond(c, http.StatusOK, result, err)
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}
	result, err := h.auth.Refresh(requestContext(c), strings.TrimSpace(req.RefreshToken))
	respond(c, http.StatusOK, result, err)
}

// POST /api/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req emailCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	user, err := h.auth.VerifyEmail(requestContext(c), req.Email, req.Code)
	respond(c, http.StatusOK, user, err)
}

// POST /api/auth/resend-verification
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}
	respondDone(c, h.auth.ResendVerification(requestContext(c), req.Email))
}

// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}
	respondDone(c, h.auth.ForgotPassword(requestContext(c), req.Email))
}

// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}
	respondDone(c, h.auth.ResetPassword(requestContext(c), req.Email, req.Code, req.Password))
}

// GET /api/auth/providers
func (h *AuthHandler) Providers(c *gin.Context) {
	response.Success(c, http.StatusOK, h.auth.Providers())
}

// POST /api/auth/providers/:type
func (h *AuthHandler) ProviderSignIn(c *gin.Context) {
	var req providerSignInRequest
	if !bindAndValidate(c, &req) {
		return
	}
	result, err := h.auth.SignInWithProvider(requestContext(c), c.Param("type"), req.Credential, req.DeviceID)
	respond(c, http.StatusOK, result, err)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.auth.Profile(requestContext(c), actorFrom(c).UserID)
	respond(c, http.StatusOK, user, err)
}

// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}
	respondDone(c, h.auth.ChangePassword(requestContext(c), actorFrom(c).UserID, req.OldPassword, req.NewPassword))
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	respondDone(c, h.auth.LogoutDevice(requestContext(c), actorFrom(c).UserID, c.GetString(middleware.CtxDeviceIDKey)))
}

// POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	respondDone(c, h.auth.LogoutAll(requestContext(c), actorFrom(c).UserID))
}

// POST /api/auth/logout-others
func (h *AuthHandler) LogoutOthers(c *gin.Context) {
	respondDone(c, h.auth.LogoutOthers(requestContext(c), actorFrom(c).UserID, c.GetString(middleware.CtxDeviceIDKey)))
}
