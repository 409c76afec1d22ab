package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNotConfigured      = errors.New("admin credentials not configured")
)

const issuer = "afreeca-dl"

// Claims are the JWT claims issued to API clients
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthService issues and validates API tokens for the configured admin
// account
type AuthService struct {
	adminUser    string
	passwordHash []byte
	jwtSecret    []byte
	expiry       time.Duration
	logger       zerolog.Logger
}

// NewAuthService creates a new authentication service. The admin password
// is hashed with bcrypt and the plain text is not kept.
func NewAuthService(jwtSecret, adminUser, adminPassword string, expiry time.Duration, logger zerolog.Logger) (*AuthService, error) {
	if jwtSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &AuthService{
		adminUser: adminUser,
		jwtSecret: []byte(jwtSecret),
		expiry:    expiry,
		logger:    logger.With().Str("component", "auth").Logger(),
	}
	if s.expiry <= 0 {
		s.expiry = 24 * time.Hour
	}

	if adminPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("error hashing admin password: %w", err)
		}
		s.passwordHash = hash
	}

	return s, nil
}

// Authenticate checks the admin credentials and returns a signed token
func (s *AuthService) Authenticate(username, password string) (string, time.Time, error) {
	if s.adminUser == "" || s.passwordHash == nil {
		return "", time.Time{}, ErrNotConfigured
	}

	if username != s.adminUser {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		s.logger.Warn().Str("username", username).Msg("Authentication failed")
		return "", time.Time{}, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(s.expiry)
	token, err := s.generateToken(username, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}

	s.logger.Info().Str("username", username).Msg("User authenticated successfully")
	return token, expiresAt, nil
}

// ValidateToken validates a JWT token and returns its claims
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// generateToken generates a JWT token for username
func (s *AuthService) generateToken(username string, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
