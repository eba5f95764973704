package middleware

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const clientKey contextKey = "client"

func setClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// GetClient returns the client identity recorded by Authenticate.
func GetClient(r *http.Request) (string, bool) {
	client, ok := r.Context().Value(clientKey).(string)
	return client, ok
}

// clientAddress is the host part of RemoteAddr. Behind a proxy, chi's
// RealIP middleware must run first.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ExportedClientKey returns the context key for the client identity (for testing).
func ExportedClientKey() contextKey {
	return clientKey
}
