package acme

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/peterhellberg/link"
)

func base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// forbiddenPathChars is the character class safeName percent-encodes when
// the caller does not allow path separators through.
const forbiddenPathChars = `<>:"/\|?*`

// safeName percent-encodes every character in the forbidden class so the
// result is safe to use as a filename. Without allowPath, "/" is forbidden
// along with the rest; with allowPath, "/" passes through unescaped.
// Encoding is "%" followed by the uppercase hex of the code point, with no
// zero-padding below 0x10 — matching the source's makeSafeFileName so that
// filenames stay byte-compatible with anything already stored on disk.
func safeName(s string, allowPath bool) string {
	var b strings.Builder
	for _, r := range s {
		if isSafeRune(r, allowPath) {
			b.WriteRune(r)
			continue
		}
		fmt.Fprintf(&b, "%%%X", r)
	}
	return b.String()
}

func isSafeRune(r rune, allowPath bool) bool {
	if r == '/' && allowPath {
		return true
	}
	if strings.ContainsRune(forbiddenPathChars, r) {
		return false
	}
	if r <= 0x1F || r == 0x7F || (r >= 0x80 && r <= 0x9F) {
		return false
	}
	return true
}

// tosLinkFromLinkHeader extracts the URL advertised with
// rel="terms-of-service" from a raw Link header value, e.g.
// `<https://example.com>;rel="terms-of-service"`. Returns "" if absent.
func tosLinkFromLinkHeader(h string) string {
	if h == "" {
		return ""
	}
	hdr := http.Header{"Link": []string{h}}
	return tosLinkFromHeader(hdr)
}

// tosLinkFromHeader does the same extraction directly from a parsed
// http.Header, used by the engine on every reg response.
func tosLinkFromHeader(h http.Header) string {
	values := h.Values("Link")
	if len(values) == 0 {
		return ""
	}
	group := link.Parse(strings.Join(values, ", "))
	if l, ok := group["terms-of-service"]; ok {
		return l.URI
	}
	return ""
}

// extractEmail returns the first contact entry beginning with "mailto:",
// with the prefix stripped, or "" if none is present.
func extractEmail(contacts []string) string {
	for _, c := range contacts {
		if strings.HasPrefix(c, "mailto:") {
			return strings.TrimPrefix(c, "mailto:")
		}
	}
	return ""
}

// makeDomainAuthorizationRequest builds the new-authz payload.
func makeDomainAuthorizationRequest(domain string) map[string]interface{} {
	return map[string]interface{}{
		"resource": "new-authz",
		"identifier": map[string]string{
			"type":  "dns",
			"value": domain,
		},
	}
}

// makeChallengeResponseRequest builds the challenge-acceptance payload.
func makeChallengeResponseRequest(keyAuth string) map[string]interface{} {
	return map[string]interface{}{
		"resource":         "challenge",
		"keyAuthorization": keyAuth,
	}
}

// makeNewRegRequest builds the new-reg payload for account creation.
func makeNewRegRequest(contact []string) map[string]interface{} {
	req := map[string]interface{}{"resource": "new-reg"}
	if len(contact) > 0 {
		req["contact"] = contact
	}
	return req
}

// makeRegRequest builds a reg payload used for both a profile probe
// (contact/agreement both absent) and TOS agreement.
func makeRegRequest(agreement string) map[string]interface{} {
	req := map[string]interface{}{"resource": "reg"}
	if agreement != "" {
		req["Agreement"] = agreement
	}
	return req
}

// makeCertRequest builds the new-cert payload: csr must already be the raw
// DER bytes of the signing request; daysValid is coerced to its absolute
// value, and a non-numeric or zero value becomes 1 (the source's default,
// preserved faithfully even though the reference CLI overrides it with
// -n=90).
func makeCertRequest(csr []byte, daysValid int, now time.Time) map[string]interface{} {
	if daysValid < 0 {
		daysValid = -daysValid
	}
	if daysValid == 0 {
		daysValid = 1
	}
	notBefore := now
	notAfter := now.Add(time.Duration(daysValid) * 24 * time.Hour)
	return map[string]interface{}{
		"resource":  "new-cert",
		"csr":       base64URLEncode(csr),
		"notBefore": notBefore.UTC().Format(time.RFC3339),
		"notAfter":  notAfter.UTC().Format(time.RFC3339),
	}
}

// makeKeyAuthorization computes the key authorization for chal using the
// cached, server-confirmed client profile public key. A challenge with no
// token is a precondition violation, not a recoverable error: the caller
// must never reach here with an incomplete challenge object, so this
// panics rather than returning an error the rest of the engine would have
// to plumb through and handle as if it were a normal failure mode.
func makeKeyAuthorization(chal *Challenge, clientProfilePubKey *JWK) (string, error) {
	if chal.Token == "" {
		panic("acme: makeKeyAuthorization called with a challenge that has no token")
	}
	if clientProfilePubKey == nil {
		return "", protocolError("no client profile public key cached yet")
	}
	return keyAuthorizationFromJWK(chal.Token, clientProfilePubKey), nil
}
