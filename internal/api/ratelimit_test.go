package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/talgya/earth-dominion/internal/entropy"
)

func TestClientIPIgnoresForwardedFromUntrustedPeer(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/turn/end", nil)
	r.RemoteAddr = "203.0.113.9:5000"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := rl.clientIP(r); got != "203.0.113.9" {
		t.Errorf("clientIP = %q, want peer address", got)
	}
}

func TestClientIPTrustedProxy(t *testing.T) {
	rl := NewRateLimiter(1, 1, "10.0.0.1", "10.0.0.2")
	r := httptest.NewRequest(http.MethodPost, "/api/v1/turn/end", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 198.51.100.7, 10.0.0.2")
	if got := rl.clientIP(r); got != "198.51.100.7" {
		t.Errorf("clientIP = %q, want nearest untrusted hop", got)
	}

	r.Header.Del("X-Forwarded-For")
	if got := rl.clientIP(r); got != "10.0.0.1" {
		t.Errorf("clientIP without header = %q", got)
	}
}

func TestRotatingForwardedHeaderStaysLimited(t *testing.T) {
	_, ts := newTestServer(t, entropy.NewSequence(0.99), Options{RateLimitRPS: 0.001, RateLimitBurst: 1})
	codes := make([]int, 0, 2)
	for _, fwd := range []string{"198.51.100.1", "198.51.100.2"} {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/turn/end", nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("X-Forwarded-For", fwd)
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}
