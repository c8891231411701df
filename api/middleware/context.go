package middleware

import "context"

type contextKey string

const (
	ctxPrincipalID contextKey = "principal_id"
	ctxAdmin       contextKey = "is_admin"
	ctxVerified    contextKey = "verified"
)

// PrincipalIDFromContext returns zero when the request is unauthenticated.
func PrincipalIDFromContext(ctx context.Context) uint64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(ctxPrincipalID).(uint64); ok {
		return v
	}
	return 0
}

func IsAdminFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(ctxAdmin).(bool)
	return v
}

func IsVerifiedFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(ctxVerified).(bool)
	return v
}

// WithPrincipal injects the caller identity into the context.
func WithPrincipal(ctx context.Context, principalID uint64, admin bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxPrincipalID, principalID)
	return context.WithValue(ctx, ctxAdmin, admin)
}
