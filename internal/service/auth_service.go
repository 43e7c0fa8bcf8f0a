package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"quizpicks/internal/model"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrInvalidUserID = errors.New("user id must look like shop_user_<id>")
)

// UserIDPrefix marks ids minted for anonymous shoppers
const UserIDPrefix = "shop_user_"

// AuthService issues and validates shopper session tokens
type AuthService struct {
	jwtSecret []byte
	ttl       time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(secret string) *AuthService {
	if secret == "" {
		secret = "super-secret-key-change-in-production"
	}
	return &AuthService{
		jwtSecret: []byte(secret),
		ttl:       30 * 24 * time.Hour,
	}
}

// NewUserID mints a fresh shopper id
func NewUserID() string {
	return UserIDPrefix + uuid.New().String()
}

// IssueSession signs a token for userID, minting a new id when empty
func (s *AuthService) IssueSession(userID string) (*model.SessionResponse, error) {
	if userID == "" {
		userID = NewUserID()
	} else if !strings.HasPrefix(userID, UserIDPrefix) || len(userID) == len(UserIDPrefix) {
		return nil, ErrInvalidUserID
	}

	claims := &model.UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.SessionResponse{
		Token:  tokenString,
		UserID: userID,
	}, nil
}

// ValidateUserToken validates a shopper JWT and returns claims
func (s *AuthService) ValidateUserToken(tokenString string) (*model.UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
