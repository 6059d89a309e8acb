package push

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

/*
SenderAuth holds an RSA keypair used to sign webhook deliveries.  Receivers
fetch the public half from the sender's /.well-known/jwks.json and verify
the bearer token on each delivery, so no shared secret has to be exchanged
out of band.
*/
type SenderAuth struct {
	key  jwk.Key
	jwks json.RawMessage
}

// NewSenderAuth generates a fresh 2048-bit RSA keypair and its public JWKS.
func NewSenderAuth() (*SenderAuth, error) {
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	key, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, err
	}

	if err := jwk.AssignKeyID(key); err != nil {
		return nil, err
	}

	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}

	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}

	pub, err := key.PublicKey()
	if err != nil {
		return nil, err
	}

	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		return nil, err
	}

	jwks, err := json.Marshal(set)
	if err != nil {
		return nil, err
	}

	return &SenderAuth{key: key, jwks: jwks}, nil
}

// JWKS returns the public key set, ready to serve at /.well-known/jwks.json.
func (sa *SenderAuth) JWKS() json.RawMessage {
	return sa.jwks
}

// Token mints a short-lived bearer token for one delivery.  The kid header
// points receivers at the right JWKS entry.
func (sa *SenderAuth) Token(taskID string) (string, error) {
	now := time.Now()

	token, err := jwt.NewBuilder().
		Issuer("a2a-sdk").
		IssuedAt(now).
		Expiration(now.Add(10 * time.Minute)).
		Claim("taskId", taskID).
		Build()
	if err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, sa.key))
	if err != nil {
		return "", err
	}

	return string(signed), nil
}
