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
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
)

// ErrorType is one of the error URNs predefined by the ACME spec.
type ErrorType string

const (
	ErrBadCSR       ErrorType = "urn:acme:error:badCSR"         // the CSR is unacceptable (e.g., due to a short key)
	ErrBadNonce     ErrorType = "urn:acme:error:badNonce"       // the client sent an unacceptable anti-replay nonce
	ErrConnection   ErrorType = "urn:acme:error:connection"     // the server could not connect to the client for DV
	ErrDNSSec       ErrorType = "urn:acme:error:dnssec"         // the server could not validate a DNSSEC signed domain
	ErrMalformed    ErrorType = "urn:acme:error:malformed"      // the request message was malformed
	ErrInternal     ErrorType = "urn:acme:error:serverInternal" // the server experienced an internal error
	ErrTLS          ErrorType = "urn:acme:error:tls"            // the server experienced a TLS error during DV
	ErrUnauthorized ErrorType = "urn:acme:error:unauthorized"   // the client lacks sufficient authorization
	ErrUnknownHost  ErrorType = "urn:acme:error:unknownHost"    // the server could not resolve a domain name
	ErrRateLimited  ErrorType = "urn:acme:error:rateLimited"    // the request exceeds a rate limit
)

// Kind classifies an Error into one of the categories enumerated by the
// error-handling design. Kind is independent of ErrorType: ErrorType is
// what the CA said (only meaningful for KindStatus); Kind is why the
// engine gave up.
type Kind string

const (
	KindTransport     Kind = "transport"      // no response was ever received
	KindStatus        Kind = "status"         // 4xx/5xx response from the CA
	KindDecode        Kind = "decode"         // body didn't parse the way content-type promised
	KindMissingHeader Kind = "missing_header" // required location/replay-nonce header absent
	KindProtocol      Kind = "protocol"       // missing challenges, no http-01 offered, etc.
	KindTOSRequired   Kind = "tos_required"   // 403 from new-authz; recovered at most once
	KindTimeout       Kind = "timeout"        // polling exceeded the retry ceiling
	KindFilesystem    Kind = "filesystem"     // reading/writing CSR, cert, or challenge file
	KindExternalTool  Kind = "external_tool"  // key/CSR generator invocation failed
)

// Error is the error type surfaced across the transport/engine boundary.
// Code is the HTTP status when a response was received, zero otherwise.
type Error struct {
	Kind   Kind
	Code   int `json:"status"`
	Type   ErrorType
	Detail string
}

func (e *Error) Error() string {
	if e.Code == 0 {
		if e.Detail == "" {
			return string(e.Kind)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s %d %s: %s", e.Kind, e.Code, e.Type, e.Detail)
}

// newTransportError wraps a request that never produced a response:
// connection refused, TLS failure, context cancellation.
func newTransportError(err error) *Error {
	return &Error{Kind: KindTransport, Detail: err.Error()}
}

// responseError builds a KindStatus Error from a non-ok HTTP response,
// extracting the ACME "detail"/"type" fields from the body when present.
func responseError(resp *http.Response) *Error {
	b, _ := ioutil.ReadAll(resp.Body)
	e := &Error{Kind: KindStatus, Code: resp.StatusCode}
	if err := json.Unmarshal(b, e); err == nil && (e.Type != "" || e.Detail != "") {
		return e
	}
	e.Detail = string(b)
	if e.Detail == "" {
		e.Detail = resp.Status
	}
	return e
}

func decodeError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindDecode, Detail: fmt.Sprintf(format, args...)}
}

func missingHeaderError(name string) *Error {
	return &Error{Kind: KindMissingHeader, Detail: fmt.Sprintf("missing %s header", name)}
}

func protocolError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindProtocol, Detail: fmt.Sprintf(format, args...)}
}

func timeoutError(op string) *Error {
	return &Error{Kind: KindTimeout, Detail: fmt.Sprintf("%s: retry ceiling exceeded", op)}
}

// tosRequiredError builds a KindTOSRequired Error for a 403 from new-authz
// that the engine cannot (or already tried once to) recover from by
// agreeing to the CA's terms of service.
func tosRequiredError(code int, format string, args ...interface{}) *Error {
	return &Error{Kind: KindTOSRequired, Code: code, Detail: fmt.Sprintf(format, args...)}
}
