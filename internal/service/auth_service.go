package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/temporade/chronicle-api/internal/models"
	"github.com/temporade/chronicle-api/pkg/config"
	appErrors "github.com/temporade/chronicle-api/pkg/errors"
)

// AuthService authenticates statically provisioned users and issues access
// tokens. Calendar ownership checks happen at the handler layer; the engine
// itself is permission-agnostic.
type AuthService struct {
	users    []config.AuthUser
	jwt      config.JWTConfig
	validate *validator.Validate
}

// NewAuthService constructs the auth service.
func NewAuthService(users []config.AuthUser, jwtCfg config.JWTConfig) *AuthService {
	return &AuthService{users: users, jwt: jwtCfg, validate: validator.New()}
}

// Login verifies credentials against the provisioned users and issues a
// signed token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, ok := s.lookup(req.Email)
	if !ok {
		return nil, appErrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	now := time.Now()
	expiresAt := now.Add(s.jwt.Expiration)
	claims := models.JWTClaims{
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			Issuer:    s.jwt.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwt.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "token signing failed")
	}

	return &models.LoginResponse{
		AccessToken: signed,
		ExpiresIn:   int64(s.jwt.Expiration.Seconds()),
		IssuedAt:    now,
		User:        models.UserInfo{Email: user.Email, FullName: user.FullName},
	}, nil
}

// ValidateToken parses and verifies an access token, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, appErrors.ErrUnauthorized
		}
		return []byte(s.jwt.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

func (s *AuthService) lookup(email string) (config.AuthUser, bool) {
	for _, u := range s.users {
		if u.Email == email {
			return u, true
		}
	}
	return config.AuthUser{}, false
}
