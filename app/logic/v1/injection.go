package v1

import (
	"context"

	"github.com/chatdesk/chatdesk/pkg/errors"
	"github.com/chatdesk/chatdesk/pkg/i18n"
	"github.com/chatdesk/chatdesk/pkg/security"
)

type tokenClaimKey struct{}

// InjectTokenClaim binds verified token claims to the request context so logic
// methods can resolve the caller without re-parsing the token.
func InjectTokenClaim(ctx context.Context, claims security.TokenClaims) context.Context {
	return context.WithValue(ctx, tokenClaimKey{}, claims)
}

func GetTokenClaim(ctx context.Context) (security.TokenClaims, bool) {
	claims, ok := ctx.Value(tokenClaimKey{}).(security.TokenClaims)
	return claims, ok
}

// MustGetTokenClaim is for paths behind the auth middleware, where missing
// claims can only mean a wiring bug.
func MustGetTokenClaim(ctx context.Context) (security.TokenClaims, error) {
	claims, ok := GetTokenClaim(ctx)
	if !ok {
		return claims, errors.New("v1.MustGetTokenClaim", i18n.ERROR_UNAUTHORIZED, nil).Code(401)
	}
	return claims, nil
}
