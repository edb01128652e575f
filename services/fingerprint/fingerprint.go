package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/mileusna/useragent"
)

// Fingerprint binds a token to the client that requested it. It is
// recomputed on every request and never persisted.
type Fingerprint struct {
	UserAgent   string
	ClientIP    string
	ClientHints string
}

func FromRequest(r *http.Request) Fingerprint {
	return Fingerprint{
		UserAgent:   r.Header.Get("User-Agent"),
		ClientIP:    ClientIP(r),
		ClientHints: clientHints(r),
	}
}

// Hash is the value embedded in token claims. Two requests from the
// same client must produce the same hash.
func (f Fingerprint) Hash() string {
	sum := sha256.Sum256([]byte(f.UserAgent + "|" + f.ClientIP + "|" + f.ClientHints))
	return hex.EncodeToString(sum[:])
}

// DeviceSummary is a human-readable rendering for audit records and
// device identities, not part of the hash.
func (f Fingerprint) DeviceSummary() string {
	if f.UserAgent == "" {
		return "unknown"
	}

	ua := useragent.Parse(f.UserAgent)
	name := ua.Name
	if name == "" {
		name = "unknown"
	}

	device := "desktop"
	switch {
	case ua.Mobile:
		device = "mobile"
	case ua.Tablet:
		device = "tablet"
	case ua.Bot:
		device = "bot"
	}

	if ua.OS != "" {
		return fmt.Sprintf("%s on %s (%s)", name, ua.OS, device)
	}
	return fmt.Sprintf("%s (%s)", name, device)
}

// ClientIP prefers the first x-forwarded-for hop, then x-real-ip,
// then the socket address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}

	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return strings.TrimSpace(real)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientHints(r *http.Request) string {
	parts := []string{
		r.Header.Get("Sec-Ch-Ua"),
		r.Header.Get("Sec-Ch-Ua-Platform"),
		r.Header.Get("Sec-Ch-Ua-Mobile"),
	}
	return strings.Join(parts, ";")
}
