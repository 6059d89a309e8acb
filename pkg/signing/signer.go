package signing

import (
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

/*
Signer produces detached signatures over a card's canonical form.  The
payload never travels with the signature; verifiers rebuild it from the
card itself, so only the protected header and signature segments are
attached to the card.
*/
type Signer struct {
	key jwk.Key
	alg jwa.SignatureAlgorithm
	jku string
}

// NewSigner wraps a private key.  The algorithm comes from the key's alg
// field, falling back to RS256.
func NewSigner(key jwk.Key) *Signer {
	alg := jwa.RS256

	if declared, ok := key.Algorithm().(jwa.SignatureAlgorithm); ok && declared != "" {
		alg = declared
	}

	return &Signer{key: key, alg: alg}
}

// WithAlgorithm overrides the signature algorithm.
func (s *Signer) WithAlgorithm(alg jwa.SignatureAlgorithm) *Signer {
	s.alg = alg
	return s
}

// WithJKU advertises where verifiers can fetch the matching JWKS.
func (s *Signer) WithJKU(url string) *Signer {
	s.jku = url
	return s
}

// Sign canonicalizes the card and returns a signature ready to append to
// card.Signatures.  Existing signatures never feed into the payload.
func (s *Signer) Sign(card *a2a.AgentCard) (*a2a.AgentCardSignature, error) {
	payload, err := Canonicalize(card)

	if err != nil {
		return nil, err
	}

	headers := jws.NewHeaders()

	if s.jku != "" {
		if err := headers.Set(jws.JWKSetURLKey, s.jku); err != nil {
			return nil, err
		}
	}

	compact, err := jws.Sign(payload, jws.WithKey(s.alg, s.key, jws.WithProtectedHeaders(headers)))

	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(compact), ".")

	if len(parts) != 3 {
		return nil, fmt.Errorf("unexpected JWS shape: %d segments", len(parts))
	}

	return &a2a.AgentCardSignature{
		Protected: parts[0],
		Signature: parts[2],
	}, nil
}

// SignCard signs the card and appends the result to its signature list.
func (s *Signer) SignCard(card *a2a.AgentCard) error {
	signature, err := s.Sign(card)

	if err != nil {
		return err
	}

	card.Signatures = append(card.Signatures, *signature)

	return nil
}
