package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/pesapay/infra/auth"
	"github.com/mstgnz/pesapay/infra/middle"
	"github.com/mstgnz/pesapay/infra/response"
)

// AuthHandler handles authentication related HTTP requests
type AuthHandler struct {
	merchantService *auth.MerchantService
	jwtService      *auth.JWTService
	validate        *validator.Validate
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(merchantService *auth.MerchantService, jwtService *auth.JWTService, validate *validator.Validate) *AuthHandler {
	return &AuthHandler{
		merchantService: merchantService,
		jwtService:      jwtService,
		validate:        validate,
	}
}

// LoginRequest represents the login request structure
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginResponse represents the login response structure
type LoginResponse struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Username   string    `json:"username"`
	MerchantID string    `json:"merchant_id"`
}

// ChangePasswordRequest represents the change password request structure
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password,omitempty" validate:"omitempty,min=6"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
	// Optional: lets an administrator change another merchant's password
	TargetMerchantID string `json:"target_merchant_id,omitempty"`
}

// CreateMerchantRequest represents the create merchant request structure
type CreateMerchantRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

// RefreshTokenRequest represents the refresh token request structure
type RefreshTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// RegisterRequest represents the registration request structure
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

// Login handles merchant login requests
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	// Parse the login request
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	// Validate the request
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	loginReq := auth.LoginRequest{
		Username: req.Username,
		Password: req.Password,
	}

	loginResp, err := h.merchantService.Login(loginReq)
	if err != nil {
		switch err {
		case auth.ErrInvalidCredentials, auth.ErrMerchantNotFound:
			response.Error(w, http.StatusUnauthorized, "Invalid username or password", nil)
		default:
			response.Error(w, http.StatusInternalServerError, "Login failed", err)
		}
		return
	}

	response.Success(w, http.StatusOK, "Login successful", loginResp)
}

// Register handles merchant registration requests.
// Only allows registration if no merchants exist (first account becomes admin).
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	// Parse the registration request
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	// Validate the request
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	registerReq := auth.RegisterRequest{
		Username: req.Username,
		Password: req.Password,
	}

	merchant, err := h.merchantService.Register(registerReq)
	if err != nil {
		if strings.Contains(err.Error(), "registration is closed") {
			response.Error(w, http.StatusForbidden, "Registration is closed. Only administrators can create new accounts.", nil)
			return
		}
		response.Error(w, http.StatusInternalServerError, "Registration failed", err)
		return
	}

	// Issue a token so the new account is usable immediately
	token, err := h.jwtService.GenerateToken(merchant.Code, merchant.Username)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to generate authentication token", err)
		return
	}

	registerResp := LoginResponse{
		Token:      token,
		MerchantID: merchant.Code,
		Username:   merchant.Username,
		ExpiresAt:  time.Now().Add(h.jwtService.Expiry()),
	}

	response.Success(w, http.StatusCreated, "Registration successful", registerResp)
}

// Logout handles merchant logout requests. Tokens are stateless, so this
// only confirms the session; clients discard the token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	merchantID := middle.GetMerchantIDFromContext(r.Context())
	if merchantID == "" {
		response.Error(w, http.StatusUnauthorized, "Invalid session", nil)
		return
	}

	responseData := map[string]string{
		"message": "Logged out successfully",
	}

	response.Success(w, http.StatusOK, "Logout successful", responseData)
}

// ChangePassword handles password change requests
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	merchantID := middle.GetMerchantIDFromContext(r.Context())
	if merchantID == "" {
		response.Error(w, http.StatusUnauthorized, "Invalid session", nil)
		return
	}

	// Parse the change password request
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	// Validate the request
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	current, err := h.merchantService.GetMerchantByCode(merchantID)
	if err != nil {
		response.Error(w, http.StatusUnauthorized, "Invalid session", nil)
		return
	}

	// The first account is the administrator
	isAdmin := current.ID == 1

	targetMerchantID := merchantID
	if req.TargetMerchantID != "" && !strings.EqualFold(req.TargetMerchantID, merchantID) {
		if !isAdmin {
			response.Error(w, http.StatusForbidden, "Only administrators can change other merchants' passwords", nil)
			return
		}
		targetMerchantID = req.TargetMerchantID
	}

	if strings.EqualFold(targetMerchantID, merchantID) {
		// Changing own password requires the current one
		if req.CurrentPassword == "" {
			response.Error(w, http.StatusBadRequest, "Current password is required when changing your own password", nil)
			return
		}
		err = h.merchantService.ChangePassword(targetMerchantID, req.CurrentPassword, req.NewPassword)
	} else {
		err = h.merchantService.AdminChangePassword(targetMerchantID, req.NewPassword)
	}

	if err != nil {
		switch err {
		case auth.ErrInvalidCredentials:
			response.Error(w, http.StatusUnauthorized, "Current password is incorrect", nil)
		case auth.ErrMerchantNotFound:
			response.Error(w, http.StatusNotFound, "Target merchant not found", nil)
		default:
			response.Error(w, http.StatusInternalServerError, "Failed to change password", err)
		}
		return
	}

	responseData := map[string]any{
		"message":            "Password changed successfully",
		"target_merchant_id": auth.MerchantCode(targetMerchantID),
		"changed_by_admin":   !strings.EqualFold(targetMerchantID, merchantID),
	}

	response.Success(w, http.StatusOK, "Password changed", responseData)
}

// CreateMerchant handles merchant creation requests (admin only)
func (h *AuthHandler) CreateMerchant(w http.ResponseWriter, r *http.Request) {
	merchantID := middle.GetMerchantIDFromContext(r.Context())
	if merchantID == "" {
		response.Error(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	current, err := h.merchantService.GetMerchantByCode(merchantID)
	if err != nil || current.ID != 1 {
		response.Error(w, http.StatusForbidden, "Only administrators can create new merchants", nil)
		return
	}

	// Parse the create merchant request
	var req CreateMerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	// Validate the request
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	createReq := auth.CreateMerchantRequest{
		Username: req.Username,
		Password: req.Password,
	}

	merchant, err := h.merchantService.CreateMerchant(createReq)
	if err != nil {
		switch err {
		case auth.ErrMerchantAlreadyExists:
			response.Error(w, http.StatusConflict, "Username already exists", nil)
		default:
			response.Error(w, http.StatusInternalServerError, "Failed to create merchant", err)
		}
		return
	}

	// Return merchant information (without password)
	responseData := map[string]any{
		"merchant_id": merchant.Code,
		"username":    merchant.Username,
		"created_at":  merchant.CreatedAt,
	}

	response.Success(w, http.StatusCreated, "Merchant created successfully", responseData)
}

// RefreshToken handles token refresh requests
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	// Parse the refresh token request
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	// Validate the request
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	newToken, err := h.jwtService.RefreshToken(req.Token)
	if err != nil {
		switch err {
		case auth.ErrExpiredToken:
			response.Error(w, http.StatusUnauthorized, "Token has expired", nil)
		case auth.ErrInvalidToken:
			response.Error(w, http.StatusUnauthorized, "Invalid token", nil)
		default:
			response.Error(w, http.StatusInternalServerError, "Failed to refresh token", err)
		}
		return
	}

	tokenResponse := map[string]any{
		"token":      newToken,
		"expires_at": time.Now().Add(h.jwtService.Expiry()),
	}

	response.Success(w, http.StatusOK, "Token refreshed successfully", tokenResponse)
}

// GetProfile returns the current merchant's account information
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	merchantID := middle.GetMerchantIDFromContext(r.Context())
	if merchantID == "" {
		response.Error(w, http.StatusUnauthorized, "Invalid session", nil)
		return
	}

	merchant, err := h.merchantService.GetMerchantByCode(merchantID)
	if err != nil {
		response.Error(w, http.StatusUnauthorized, "Invalid session", nil)
		return
	}

	profileData := map[string]any{
		"merchant_id": merchant.Code,
		"username":    merchant.Username,
		"last_login":  merchant.LastLogin,
		"created_at":  merchant.CreatedAt,
	}

	response.Success(w, http.StatusOK, "Profile retrieved successfully", profileData)
}

// ValidateToken validates a JWT token (utility endpoint)
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	// Get Authorization header
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		response.Error(w, http.StatusBadRequest, "Authorization header required", nil)
		return
	}

	// Check Bearer token format
	if !strings.HasPrefix(authHeader, "Bearer ") {
		response.Error(w, http.StatusBadRequest, "Invalid authorization format. Use: Bearer <jwt_token>", nil)
		return
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		response.Error(w, http.StatusBadRequest, "JWT token required", nil)
		return
	}

	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		switch err {
		case auth.ErrExpiredToken:
			response.Error(w, http.StatusUnauthorized, "Token has expired", nil)
		case auth.ErrInvalidToken:
			response.Error(w, http.StatusUnauthorized, "Invalid token", nil)
		case auth.ErrInvalidClaims:
			response.Error(w, http.StatusUnauthorized, "Invalid token claims", nil)
		case auth.ErrMissingMerchant:
			response.Error(w, http.StatusUnauthorized, "Missing merchant information in token", nil)
		default:
			response.Error(w, http.StatusUnauthorized, "Token validation failed", nil)
		}
		return
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	tokenInfo := map[string]any{
		"valid":       true,
		"merchant_id": claims.MerchantID,
		"username":    claims.Username,
		"last_login":  time.Unix(claims.LastLogin, 0),
		"issued_at":   claims.IssuedAt.Time,
		"expires_at":  expiresAt,
		"time_to_exp": time.Until(expiresAt).String(),
	}

	response.Success(w, http.StatusOK, "Token is valid", tokenInfo)
}
