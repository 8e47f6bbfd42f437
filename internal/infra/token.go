// README: Verified bearer token shared by the Firebase and JWT verifiers.
package infra

import "context"

// Token holds the verified token data used by downstream middleware.
type Token struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier verifies a raw bearer token string and returns token data.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Token, error)
}

// StringClaim returns a string claim or "" when absent or not a string.
func (t *Token) StringClaim(key string) string {
	if t == nil || t.Claims == nil {
		return ""
	}
	if v, ok := t.Claims[key].(string); ok {
		return v
	}
	return ""
}
