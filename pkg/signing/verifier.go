package signing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

// ErrInvalidSignatures means none of a card's signatures verified.
var ErrInvalidSignatures = stderrors.New("agent card has no valid signature")

// KeyProvider resolves the candidate verification keys for one signature,
// using whatever the protected header advertises (kid, jku).
type KeyProvider func(ctx context.Context, headers jws.Headers) (jwk.Set, error)

// StaticKeyProvider serves a fixed key set regardless of headers.
func StaticKeyProvider(keys jwk.Set) KeyProvider {
	return func(context.Context, jws.Headers) (jwk.Set, error) {
		return keys, nil
	}
}

/*
JWKSProvider fetches the key set referenced by the signature's jku header.
Pass allowed URLs to pin which hosts may be fetched; with none given any
jku is accepted, which is only safe on trusted networks.
*/
func JWKSProvider(allowed ...string) KeyProvider {
	return func(ctx context.Context, headers jws.Headers) (jwk.Set, error) {
		url := headers.JWKSetURL()

		if url == "" {
			return nil, fmt.Errorf("signature header carries no jku")
		}

		if len(allowed) > 0 && !slices.Contains(allowed, url) {
			return nil, fmt.Errorf("jku %q is not in the allowlist", url)
		}

		return jwk.Fetch(ctx, url)
	}
}

/*
Verifier checks a card's detached signatures.  Algorithms outside the
allowlist are rejected before any key material is touched, so a header
cannot talk the verifier into a weaker scheme.
*/
type Verifier struct {
	provider KeyProvider
	allowed  []jwa.SignatureAlgorithm
}

func NewVerifier(provider KeyProvider) *Verifier {
	return &Verifier{
		provider: provider,
		allowed: []jwa.SignatureAlgorithm{
			jwa.RS256, jwa.PS256, jwa.ES256, jwa.EdDSA,
		},
	}
}

// WithAlgorithms replaces the algorithm allowlist.
func (v *Verifier) WithAlgorithms(algs ...jwa.SignatureAlgorithm) *Verifier {
	v.allowed = algs
	return v
}

/*
Verify re-canonicalizes the card and accepts it as soon as one signature
checks out against the keys the provider resolves for it.  It returns
ErrInvalidSignatures when the card carries no signatures or none verify.
*/
func (v *Verifier) Verify(ctx context.Context, card *a2a.AgentCard) error {
	if len(card.Signatures) == 0 {
		return ErrInvalidSignatures
	}

	payload, err := Canonicalize(card)

	if err != nil {
		return err
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)

	for i, signature := range card.Signatures {
		if err := v.verifyOne(ctx, encoded, signature); err != nil {
			log.Debug("card signature rejected", "index", i, "error", err)
			continue
		}

		return nil
	}

	return ErrInvalidSignatures
}

func (v *Verifier) verifyOne(ctx context.Context, encodedPayload string, signature a2a.AgentCardSignature) error {
	headerBytes, err := base64.RawURLEncoding.DecodeString(signature.Protected)

	if err != nil {
		return fmt.Errorf("protected header is not base64url: %w", err)
	}

	headers := jws.NewHeaders()

	if err := json.Unmarshal(headerBytes, headers); err != nil {
		return fmt.Errorf("protected header is not valid JSON: %w", err)
	}

	alg := headers.Algorithm()

	if !slices.Contains(v.allowed, alg) {
		return fmt.Errorf("algorithm %q is not allowed", alg)
	}

	keys, err := v.provider(ctx, headers)

	if err != nil {
		return fmt.Errorf("key resolution failed: %w", err)
	}

	compact := []byte(signature.Protected + "." + encodedPayload + "." + signature.Signature)

	for i := 0; i < keys.Len(); i++ {
		key, ok := keys.Key(i)

		if !ok {
			continue
		}

		if _, err := jws.Verify(compact, jws.WithKey(alg, key)); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no resolved key verified the signature")
}
