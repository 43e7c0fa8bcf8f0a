package model

import "github.com/golang-jwt/jwt/v5"

// UserClaims are JWT claims for a shopper session
type UserClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// SessionRequest is the body of POST /auth/session
type SessionRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// SessionResponse is returned after a session token is issued
type SessionResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// ErrorResponse is the failure envelope of every endpoint
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
