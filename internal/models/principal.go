// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated user as asserted by the host
// application's bearer token. The pipeline never authenticates users
// itself; it only verifies and reads the host app's token.
type Principal struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`

	// Admin reports whether the host app granted the admin capability.
	Admin bool `json:"admin"`
}

// principalClaims are the registered-plus-private claims vigil reads
// from the host application's token.
type principalClaims struct {
	Username string `json:"preferred_username,omitempty"`
	Admin    bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// ErrNoToken indicates the request carried no bearer token.
var ErrNoToken = errors.New("no bearer token")

// ParsePrincipal extracts and verifies the principal from the request's
// Authorization header. Returns ErrNoToken for anonymous requests and a
// verification error for malformed or forged tokens; callers treat both
// as "anonymous" (the pipeline fails open, it does not gate auth).
func ParsePrincipal(r *http.Request, secret []byte) (*Principal, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil, ErrNoToken
	}
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return nil, ErrNoToken
	}

	claims := &principalClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}

	return &Principal{
		UserID:   claims.Subject,
		Username: claims.Username,
		Admin:    claims.Admin,
	}, nil
}
