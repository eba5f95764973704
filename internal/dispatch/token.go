package dispatch

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"
)

// TokenSource mints identity tokens for an audience.
type TokenSource interface {
	Token(ctx context.Context, audience string) (string, error)
}

// GoogleTokenSource mints Google-signed ID tokens using the ambient service
// account credentials (metadata server or GOOGLE_APPLICATION_CREDENTIALS).
type GoogleTokenSource struct{}

// Token fetches a fresh ID token for audience on every call.
func (GoogleTokenSource) Token(ctx context.Context, audience string) (string, error) {
	ts, err := idtoken.NewTokenSource(ctx, audience)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrToken, err)
	}
	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrToken, err)
	}
	return tok.AccessToken, nil
}

// StaticTokenSource returns a fixed token. Useful against a compute backend
// that does not verify identity, such as a local one.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context, string) (string, error) {
	return string(s), nil
}
