// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package identity

import (
	"strings"
	"testing"

	"github.com/tomtom215/vigil/internal/models"
)

func TestResolve_PriorityOrder(t *testing.T) {
	r := NewResolver([]byte("test-secret"))

	tests := []struct {
		name     string
		rc       *models.RequestContext
		wantKind Kind
		wantKey  string // prefix when hash is involved
	}{
		{
			name: "authenticated user wins over session and IP",
			rc: &models.RequestContext{
				IP:        "203.0.113.7",
				SessionID: "sess-abc",
				Principal: &models.Principal{UserID: "42"},
			},
			wantKind: KindUser,
			wantKey:  "user:42",
		},
		{
			name: "session plus IP hash when anonymous",
			rc: &models.RequestContext{
				IP:        "203.0.113.7",
				SessionID: "sess-abc",
			},
			wantKind: KindSession,
			wantKey:  "session:sess-abc:",
		},
		{
			name:     "hashed IP as last resort",
			rc:       &models.RequestContext{IP: "203.0.113.7"},
			wantKind: KindIP,
			wantKey:  "ip:",
		},
		{
			name: "principal with empty user id falls through",
			rc: &models.RequestContext{
				IP:        "203.0.113.7",
				Principal: &models.Principal{},
			},
			wantKind: KindIP,
			wantKey:  "ip:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := r.Resolve(tt.rc)
			if id.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", id.Kind, tt.wantKind)
			}
			if !strings.HasPrefix(id.Key, tt.wantKey) {
				t.Errorf("Key = %q, want prefix %q", id.Key, tt.wantKey)
			}
		})
	}
}

func TestResolve_UserIDSetOnlyForUsers(t *testing.T) {
	r := NewResolver([]byte("test-secret"))

	id := r.Resolve(&models.RequestContext{Principal: &models.Principal{UserID: "alice"}})
	if id.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", id.UserID)
	}

	id = r.Resolve(&models.RequestContext{IP: "203.0.113.7"})
	if id.UserID != "" {
		t.Errorf("anonymous identity has UserID %q", id.UserID)
	}
}

func TestHashIP_Properties(t *testing.T) {
	r := NewResolver([]byte("test-secret"))

	h1 := r.HashIP("203.0.113.7")
	h2 := r.HashIP("203.0.113.7")
	if h1 != h2 {
		t.Errorf("hash is not stable: %q vs %q", h1, h2)
	}
	if len(h1) != ipHashLen {
		t.Errorf("hash length = %d, want %d", len(h1), ipHashLen)
	}
	if strings.Contains(h1, "203") {
		t.Error("hash appears to leak the raw address")
	}

	if r.HashIP("203.0.113.8") == h1 {
		t.Error("distinct IPs produced the same hash")
	}
}

func TestHashIP_KeyedBySecret(t *testing.T) {
	a := NewResolver([]byte("secret-a"))
	b := NewResolver([]byte("secret-b"))

	if a.HashIP("203.0.113.7") == b.HashIP("203.0.113.7") {
		t.Error("different secrets produced the same digest")
	}
}

func TestForUser(t *testing.T) {
	id := ForUser("bob")
	if id.Key != "user:bob" || id.Kind != KindUser || id.UserID != "bob" {
		t.Errorf("ForUser = %+v", id)
	}
}
