package service

import (
	"strings"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/auth"
)

/*
Authenticator validates the credential headers of an incoming call and
resolves the principal behind it.  Returning false means the request is
unauthorized.  Implementations should perform any needed logging
themselves because the middleware only has boolean semantics.
*/
type Authenticator interface {
	Authenticate(authorization, apiKey string) (a2a.User, bool)
}

// APIKeyAuth checks for header "X-API-Key: <key>".
type APIKeyAuth struct{ Key string }

func (a APIKeyAuth) Authenticate(_, apiKey string) (a2a.User, bool) {
	if apiKey != a.Key {
		return a2a.User{}, false
	}

	return a2a.User{Authenticated: true, Name: "api-key"}, true
}

// BearerAuth checks Authorization: Bearer <token> against a static token.
type BearerAuth struct{ Token string }

func (b BearerAuth) Authenticate(authorization, _ string) (a2a.User, bool) {
	token, ok := bearerToken(authorization)

	if !ok || token != b.Token {
		return a2a.User{}, false
	}

	return a2a.User{Authenticated: true, Name: "bearer"}, true
}

// JWTAuth verifies Authorization: Bearer <jwt> signatures and reads the
// principal from the subject claim.
type JWTAuth struct{ Service *auth.Service }

func (j JWTAuth) Authenticate(authorization, _ string) (a2a.User, bool) {
	token, ok := bearerToken(authorization)

	if !ok || j.Service == nil {
		return a2a.User{}, false
	}

	claims, err := j.Service.ValidateToken(token)

	if err != nil {
		return a2a.User{}, false
	}

	name, _ := claims["sub"].(string)

	return a2a.User{Authenticated: true, Name: name}, true
}

func bearerToken(authorization string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return "", false
	}

	return strings.TrimSpace(authorization[7:]), true
}
