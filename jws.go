// Copyright 2015 Google Inc. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//     http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package acme

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	jose "github.com/letsencrypt/go-jose"
)

// jwsEncode builds the flattened-JSON JWS the ACME draft calls for: an
// RS256 signature over base64url(header) || "." || base64url(claims),
// with the protected header built by go-jose's RS256 signer: alg and the
// embedded public jwk, plus nonce when one is given. No typ field is set.
// nonce is omitted from the header entirely (not set to null) when empty,
// per the no-nonce-yet bootstrap case.
func jwsEncode(claims interface{}, key *rsa.PrivateKey, nonce string) (string, error) {
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	s, err := jose.NewSigner(jose.RS256, key)
	if err != nil {
		return "", err
	}
	if nonce != "" {
		s.SetNonceSource(staticNonceSource(nonce))
	}
	sig, err := s.Sign(body)
	if err != nil {
		return "", err
	}
	return sig.FullSerialize(), nil
}

type staticNonceSource string

func (s staticNonceSource) Nonce() (string, error) {
	return string(s), nil
}

// canonicalJWK renders the RSA public key as the exact JSON object the
// ACME draft hashes for key authorizations: field order {e, kty, n},
// base64url (no padding) integers, no whitespace.
func canonicalJWK(pub *rsa.PublicKey) string {
	e := big.NewInt(int64(pub.E))
	return fmt.Sprintf(`{"e":"%s","kty":"RSA","n":"%s"}`,
		base64.RawURLEncoding.EncodeToString(e.Bytes()),
		base64.RawURLEncoding.EncodeToString(pub.N.Bytes()))
}

// toJWK converts an RSA public key to its {kty,n,e} JSON Web Key struct.
func toJWK(pub *rsa.PublicKey) *JWK {
	e := big.NewInt(int64(pub.E))
	return &JWK{
		Kty: "RSA",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(e.Bytes()),
	}
}

// jwkThumbprint is the base64url(sha256(canonicalJWK(pub))) half of a key
// authorization string.
func jwkThumbprint(pub *rsa.PublicKey) string {
	hash := sha256.Sum256([]byte(canonicalJWK(pub)))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// keyAuthorization computes token + "." + jwkThumbprint(pub), the value
// published at the well-known path and sent back in the challenge POST.
// A missing token is a precondition violation, not a recoverable error:
// callers must not reach this with an incomplete challenge.
func keyAuthorization(token string, pub *rsa.PublicKey) string {
	if token == "" {
		panic("acme: keyAuthorization called with empty challenge token")
	}
	return token + "." + jwkThumbprint(pub)
}

// keyAuthorizationFromJWK computes the key authorization using a
// server-confirmed JWK (e.g. the client profile public key cached from a
// reg response) rather than recomputing it from the local key pair. The
// canonical encoding is identical either way since both describe the same
// RSA public key.
func keyAuthorizationFromJWK(token string, jwk *JWK) string {
	if token == "" {
		panic("acme: keyAuthorization called with empty challenge token")
	}
	canon := fmt.Sprintf(`{"e":"%s","kty":"%s","n":"%s"}`, jwk.E, jwk.Kty, jwk.N)
	hash := sha256.Sum256([]byte(canon))
	return token + "." + base64.RawURLEncoding.EncodeToString(hash[:])
}
