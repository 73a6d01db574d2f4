package http_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	pkghttp "github.com/traintrack/gatekeeper/pkg/http"
)

func TestExtractClientIP_RemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.5:54321"

	ip := pkghttp.ExtractClientIP(req, nil)

	assert.Equal(t, "203.0.113.5", ip)
}

func TestExtractClientIP_IgnoresHeadersFromUntrustedSource(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	req.Header.Set("X-Real-IP", "198.51.100.8")

	config := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}
	ip := pkghttp.ExtractClientIP(req, config)

	// Spoofed forwarding headers from outside the proxy range are ignored
	assert.Equal(t, "203.0.113.5", ip)
}

func TestExtractClientIP_HonorsXFFFromTrustedProxy(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:54321"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.1.2.3")

	config := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}
	ip := pkghttp.ExtractClientIP(req, config)

	assert.Equal(t, "198.51.100.7", ip)
}

func TestExtractClientIP_FallsBackPastInvalidXFF(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:54321"
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	req.Header.Set("X-Real-IP", "198.51.100.9")

	config := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}
	ip := pkghttp.ExtractClientIP(req, config)

	assert.Equal(t, "198.51.100.9", ip)
}
