package main

import (
	"net/http"
	"testing"
)

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter()

	req1, _ := http.NewRequest("GET", "/v1/audits", nil)
	req1.Header.Set("X-Forwarded-For", "192.168.1.1")

	// Allowed up to burst capacity (10)
	for i := range 10 {
		ip := getClientIP(req1)
		rLimiter := limiter.getLimiter(ip)
		if !rLimiter.Allow() {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// 11th request exceeds burst capacity
	ip := getClientIP(req1)
	rLimiter := limiter.getLimiter(ip)
	if rLimiter.Allow() {
		t.Errorf("Request should be blocked after burst capacity exceeded")
	}

	// Different IP should be allowed
	req2, _ := http.NewRequest("GET", "/v1/audits", nil)
	req2.Header.Set("X-Forwarded-For", "192.168.1.2")
	ip2 := getClientIP(req2)
	rLimiter2 := limiter.getLimiter(ip2)
	if !rLimiter2.Allow() {
		t.Errorf("Request from different IP should be allowed")
	}
}

func TestGetClientIP(t *testing.T) {
	req, _ := http.NewRequest("GET", "/v1/audits", nil)
	req.RemoteAddr = "10.0.0.5:51234"
	if got := getClientIP(req); got != "10.0.0.5" {
		t.Errorf("getClientIP() = %q, want %q", got, "10.0.0.5")
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := getClientIP(req); got != "203.0.113.9" {
		t.Errorf("getClientIP() = %q, want %q", got, "203.0.113.9")
	}
}

func TestParseOTLPHeaders(t *testing.T) {
	headers := parseOTLPHeaders("authorization=Bearer abc, x-tenant=pagelens,, malformed")
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d: %v", len(headers), headers)
	}
	if headers["authorization"] != "Bearer abc" {
		t.Errorf("authorization = %q", headers["authorization"])
	}
	if headers["x-tenant"] != "pagelens" {
		t.Errorf("x-tenant = %q", headers["x-tenant"])
	}
}
