// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package models

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRequestContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/items?page=3", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-xyz"})

	rc := NewRequestContext(r)

	if rc.Method != http.MethodGet {
		t.Errorf("Method = %q, want GET", rc.Method)
	}
	if rc.Path != "/api/v1/items" {
		t.Errorf("Path = %q, want /api/v1/items", rc.Path)
	}
	if rc.Query != "page=3" {
		t.Errorf("Query = %q, want page=3", rc.Query)
	}
	if rc.IP != "203.0.113.7" {
		t.Errorf("IP = %q, want 203.0.113.7", rc.IP)
	}
	if rc.UserAgent != "Mozilla/5.0" {
		t.Errorf("UserAgent = %q, want Mozilla/5.0", rc.UserAgent)
	}
	if rc.SessionID != "sess-xyz" {
		t.Errorf("SessionID = %q, want sess-xyz", rc.SessionID)
	}
	if rc.Principal != nil {
		t.Error("Principal set without authentication")
	}
	if rc.Timestamp.IsZero() {
		t.Error("Timestamp not stamped")
	}
}

func TestNewRequestContext_NoSessionCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "other_cookie", Value: "x"})

	if rc := NewRequestContext(r); rc.SessionID != "" {
		t.Errorf("SessionID = %q, want empty", rc.SessionID)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "198.51.100.4:443",
			want:       "198.51.100.4",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "198.51.100.4",
			want:       "198.51.100.4",
		},
		{
			name:       "x-forwarded-for single hop",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "x-forwarded-for takes first hop",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, 10.1.1.1, 10.2.2.2"},
			want:       "203.0.113.9",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": " 192.0.2.33 "},
			want:       "192.0.2.33",
		},
		{
			name:       "x-forwarded-for beats x-real-ip",
			remoteAddr: "10.0.0.1:80",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.9",
				"X-Real-IP":       "192.0.2.33",
			},
			want: "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
