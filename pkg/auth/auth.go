// Package auth is the request-authentication boundary. The core trusts the
// boolean it produces: "may this caller act as account X". Token and
// signature cryptography beyond the HMAC check live outside this service.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// Header names for signed requests.
const (
	HeaderCallerID  = "X-Relay-Id"
	HeaderSignature = "X-Relay-Signature"
)

// Authenticator resolves and verifies the caller of a request.
type Authenticator interface {
	// Verify returns the caller id and whether the request is properly
	// signed for that caller.
	Verify(r *http.Request) (string, bool)
}

// SecretLookup resolves a caller's shared secret. The second return is false
// for unknown callers.
type SecretLookup func(callerID string) (string, bool)

// HMACAuthenticator verifies an HMAC-SHA256 signature over the request
// method and path.
type HMACAuthenticator struct {
	Secrets SecretLookup
}

// Make sure we conform to the interface
var _ Authenticator = (*HMACAuthenticator)(nil)

// NewHMACAuthenticator creates an HMACAuthenticator.
func NewHMACAuthenticator(secrets SecretLookup) *HMACAuthenticator {
	return &HMACAuthenticator{Secrets: secrets}
}

// Verify checks the signature headers against the caller's secret.
func (a *HMACAuthenticator) Verify(r *http.Request) (string, bool) {
	callerID := r.Header.Get(HeaderCallerID)
	signature := r.Header.Get(HeaderSignature)
	if callerID == "" || signature == "" {
		return "", false
	}
	secret, ok := a.Secrets(callerID)
	if !ok {
		return "", false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(r.Method + "\n" + r.URL.Path))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", false
	}
	return callerID, true
}

// Static is an Authenticator for tests: it accepts every request as the
// configured caller.
type Static struct {
	CallerID string
}

// Verify returns the configured caller.
func (s *Static) Verify(_ *http.Request) (string, bool) {
	return s.CallerID, s.CallerID != ""
}

type contextKey struct{}

// WithCaller returns a context carrying the verified caller id.
func WithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, contextKey{}, callerID)
}

// CallerID returns the verified caller id, or "" when the request was not
// authenticated.
func CallerID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware rejects unsigned requests and stores the verified caller id in
// the request context.
func Middleware(a Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID, ok := a.Verify(r)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), callerID)))
		})
	}
}
