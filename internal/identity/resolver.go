// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package identity derives a stable tracking key for each visitor.
//
// Priority order, most to least stable:
//
//  1. authenticated user id         -> user:<id>
//  2. session id + IP-hash group    -> session:<sid>:<iphash>
//  3. hashed IP alone               -> ip:<iphash>
//
// IPs are never stored raw: the resolver hashes them with a keyed
// BLAKE2b MAC so cache keys cannot be reversed into addresses, and a
// truncated digest groups carrier-NAT'd mobile clients that rotate
// within a shared range.
package identity

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/tomtom215/vigil/internal/models"
)

// Kind describes how an identity was derived.
type Kind string

const (
	KindUser    Kind = "user"
	KindSession Kind = "session"
	KindIP      Kind = "ip"
)

// Identity is a derived cache key grouping one visitor's behavior
// across requests. Immutable once resolved for a request.
type Identity struct {
	// Key is the full cache key, e.g. "user:42" or "ip:a1b2c3d4e5f6".
	Key string

	// Kind records which derivation produced the key.
	Kind Kind

	// UserID is set only for KindUser identities.
	UserID string
}

// ipHashLen is the number of hex characters kept from the keyed digest.
// 12 chars (48 bits) is plenty for grouping while keeping keys short.
const ipHashLen = 12

// Resolver derives identities. The secret keys the IP MAC and must be
// stable across restarts so identities survive a redeploy.
type Resolver struct {
	secret []byte
}

// NewResolver creates a resolver with the given application secret.
func NewResolver(secret []byte) *Resolver {
	return &Resolver{secret: secret}
}

// Resolve derives the identity for a request. It never fails: with no
// principal and no session it falls back to the hashed IP.
func (r *Resolver) Resolve(rc *models.RequestContext) Identity {
	if rc.Principal != nil && rc.Principal.UserID != "" {
		return Identity{
			Key:    "user:" + rc.Principal.UserID,
			Kind:   KindUser,
			UserID: rc.Principal.UserID,
		}
	}

	ipHash := r.HashIP(rc.IP)

	if rc.SessionID != "" {
		return Identity{
			Key:  "session:" + rc.SessionID + ":" + ipHash,
			Kind: KindSession,
		}
	}

	return Identity{
		Key:  "ip:" + ipHash,
		Kind: KindIP,
	}
}

// ForUser returns the identity key for a known user id, for callers
// (baseline engine, account lock) that address users directly.
func ForUser(userID string) Identity {
	return Identity{Key: "user:" + userID, Kind: KindUser, UserID: userID}
}

// HashIP returns the truncated keyed digest for an IP address.
func (r *Resolver) HashIP(ip string) string {
	// Keyed BLAKE2b; key errors only occur for keys >64 bytes, which
	// config validation rules out.
	h, err := blake2b.New256(r.secret)
	if err != nil {
		h, _ = blake2b.New256(nil)
	}
	h.Write([]byte(ip))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:ipHashLen]
}
