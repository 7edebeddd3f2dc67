package users

import "context"

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated user on the context.
func ContextWithPrincipal(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, principalContextKey{}, user)
}

// PrincipalFromContext returns the authenticated user, or nil when the
// request carried no valid credential.
func PrincipalFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(principalContextKey{}).(*User)
	return user
}
