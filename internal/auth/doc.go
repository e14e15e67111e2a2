// Package auth holds the authenticated principal that flows through the
// gateway pipeline, together with the errors raised when a request cannot
// be attributed to one.
//
// Token verification lives in the jwt subpackage. Role checks live in the
// authz package. Both communicate through the Principal stored on the
// request context:
//
//	ctx = auth.ContextWithPrincipal(ctx, principal)
//	...
//	p, ok := auth.PrincipalFromContext(ctx)
package auth
