package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/addonvalidator/internal/core"
	"github.com/JonMunkholm/addonvalidator/internal/web/middleware"
)

// WithRequestMetadata adds client IP and User-Agent to ctx for the
// submission history.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, middleware.ClientIP(r)) // RemoteAddr already rewritten by TrustedRealIP
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
