package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMerchantNotFound      = errors.New("merchant not found")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrMerchantAlreadyExists = errors.New("merchant already exists")
	ErrDatabaseError         = errors.New("database error")
)

// Merchant represents a merchant account in the system
type Merchant struct {
	ID        int        `json:"id"`
	Code      string     `json:"code"`
	Username  string     `json:"username"`
	Password  string     `json:"-"` // Never expose password in JSON
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token      string    `json:"token"`
	MerchantID string    `json:"merchant_id"`
	Username   string    `json:"username"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CreateMerchantRequest represents a merchant creation request
type CreateMerchantRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

// MerchantService handles merchant account operations
type MerchantService struct {
	db         *sql.DB
	jwtService *JWTService
}

// NewMerchantService creates a new merchant service over the shared SQLite
// database. The merchants table is created on first use.
func NewMerchantService(db *sql.DB, jwtService *JWTService) (*MerchantService, error) {
	s := &MerchantService{
		db:         db,
		jwtService: jwtService,
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize merchants schema: %w", err)
	}

	return s, nil
}

func (s *MerchantService) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS merchants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		last_login DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_merchants_username ON merchants(username);
	`

	_, err := s.db.Exec(query)
	return err
}

// MerchantCode derives the merchant identifier used for provider
// configuration and log keying from a username.
func MerchantCode(username string) string {
	return strings.ToUpper(strings.TrimSpace(username))
}

// Login authenticates a merchant and returns a JWT token
func (s *MerchantService) Login(req LoginRequest) (*LoginResponse, error) {
	// Get merchant by username
	merchant, err := s.GetMerchantByUsername(req.Username)
	if err != nil {
		if err == ErrMerchantNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(merchant.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// Update last login
	if err := s.UpdateLastLogin(merchant.ID); err != nil {
		// Log error but don't fail login
		fmt.Printf("Warning: Failed to update last login for merchant %s: %v\n", merchant.Code, err)
	}

	// Generate JWT token
	token, err := s.jwtService.GenerateToken(merchant.Code, merchant.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:      token,
		MerchantID: merchant.Code,
		Username:   merchant.Username,
		ExpiresAt:  time.Now().Add(s.jwtService.expiry),
	}, nil
}

// CreateMerchant creates a new merchant account
func (s *MerchantService) CreateMerchant(req CreateMerchantRequest) (*Merchant, error) {
	// Check if merchant already exists
	existing, err := s.GetMerchantByUsername(req.Username)
	if err != ErrMerchantNotFound {
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrMerchantAlreadyExists
		}
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code := MerchantCode(req.Username)
	result, err := s.db.Exec(
		`INSERT INTO merchants (code, username, password, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		code, req.Username, string(hashedPassword),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create merchant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read merchant ID: %w", err)
	}

	return &Merchant{
		ID:        int(id),
		Code:      code,
		Username:  req.Username,
		CreatedAt: time.Now(),
	}, nil
}

// GetMerchantByUsername retrieves a merchant by username
func (s *MerchantService) GetMerchantByUsername(username string) (*Merchant, error) {
	query := `
		SELECT id, code, username, password, last_login, created_at
		FROM merchants
		WHERE username = ?
	`

	var merchant Merchant
	err := s.db.QueryRow(query, username).Scan(
		&merchant.ID,
		&merchant.Code,
		&merchant.Username,
		&merchant.Password,
		&merchant.LastLogin,
		&merchant.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMerchantNotFound
		}
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}

	return &merchant, nil
}

// GetMerchantByCode retrieves a merchant by merchant code
func (s *MerchantService) GetMerchantByCode(code string) (*Merchant, error) {
	query := `
		SELECT id, code, username, password, last_login, created_at
		FROM merchants
		WHERE code = ?
	`

	var merchant Merchant
	err := s.db.QueryRow(query, MerchantCode(code)).Scan(
		&merchant.ID,
		&merchant.Code,
		&merchant.Username,
		&merchant.Password,
		&merchant.LastLogin,
		&merchant.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMerchantNotFound
		}
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}

	return &merchant, nil
}

// UpdateLastLogin updates the last login time for a merchant
func (s *MerchantService) UpdateLastLogin(merchantID int) error {
	_, err := s.db.Exec(`UPDATE merchants SET last_login = CURRENT_TIMESTAMP WHERE id = ?`, merchantID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}

// ChangePassword changes the password for a merchant
func (s *MerchantService) ChangePassword(code, oldPassword, newPassword string) error {
	// Get current merchant
	merchant, err := s.GetMerchantByCode(code)
	if err != nil {
		return err
	}

	// Verify old password
	if err := bcrypt.CompareHashAndPassword([]byte(merchant.Password), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	return s.setPassword(merchant.ID, newPassword)
}

// AdminChangePassword changes the password for a merchant without requiring
// the old password. This method should only be used by administrators.
func (s *MerchantService) AdminChangePassword(code, newPassword string) error {
	merchant, err := s.GetMerchantByCode(code)
	if err != nil {
		return err
	}

	return s.setPassword(merchant.ID, newPassword)
}

func (s *MerchantService) setPassword(merchantID int, newPassword string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.db.Exec(`UPDATE merchants SET password = ? WHERE id = ?`, string(hashedPassword), merchantID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

// ValidateToken validates a JWT token and returns merchant information
func (s *MerchantService) ValidateToken(tokenString string) (*Merchant, error) {
	// Validate JWT token
	claims, err := s.jwtService.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	merchant, err := s.GetMerchantByCode(claims.MerchantID)
	if err != nil {
		return nil, err
	}

	return merchant, nil
}

// CountMerchants returns the total number of merchant accounts
func (s *MerchantService) CountMerchants() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM merchants`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count merchants: %w", err)
	}

	return count, nil
}

// Register handles merchant registration with special rules:
// - Only allows registration if no merchants exist (first account becomes admin)
// - Blocks registration if merchants already exist (only admin can create new accounts)
func (s *MerchantService) Register(req RegisterRequest) (*Merchant, error) {
	count, err := s.CountMerchants()
	if err != nil {
		return nil, err
	}

	// If merchants already exist, registration is not allowed.
	// Only admin can create new merchants via CreateMerchant.
	if count > 0 {
		return nil, errors.New("registration is closed - only administrators can create new accounts")
	}

	return s.CreateMerchant(CreateMerchantRequest(req))
}
