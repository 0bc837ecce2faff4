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

// Package acme implements a client for the early ACME draft
// (draft-barnes-acme, the dialect of resources new-reg/new-authz/new-cert/reg
// that Let's Encrypt's v01 boulder spoke) using an RSA account key.
package acme

// Directory is the ACME server's resource directory: a mapping from
// resource name to the absolute URL that serves it.
type Directory struct {
	NewReg    string `json:"new-reg"`
	NewAuthz  string `json:"new-authz"`
	NewCert   string `json:"new-cert"`
	RevokeURL string `json:"revoke-cert,omitempty"`
}

// JWK is the JSON Web Key representation of an RSA public key.
// Field order matters when it is marshaled for the key-authorization
// hash: e, kty, n — see canonicalJWK.
type JWK struct {
	E   string `json:"e"`
	Kty string `json:"kty"`
	N   string `json:"n"`
}

// Registration mirrors the account object the server returns from a
// new-reg or reg POST.
type Registration struct {
	// URI is the account's unique ID, also the URL used to fetch/update it.
	URI string `json:"-"`

	Contact   []string `json:"contact,omitempty"`
	Agreement string   `json:"agreement,omitempty"`
	Key       *JWK     `json:"key,omitempty"`
}

// AuthzID identifies the thing being authorized, e.g. a DNS name.
type AuthzID struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Challenge is one entry of an authorization's challenge list.
type Challenge struct {
	Type   string `json:"type"`
	URI    string `json:"uri"`
	Token  string `json:"token"`
	Status string `json:"status,omitempty"`
}

// Authorization is the object returned by new-authz and polled during
// challenge validation.
type Authorization struct {
	Identifier AuthzID     `json:"identifier"`
	Status     string      `json:"status"`
	Challenges []Challenge `json:"challenges"`

	// URI is the poll location, taken from the response's Location header
	// (never present in the JSON body itself).
	URI string `json:"-"`
}

// Authorization statuses, per the ACME draft.
const (
	StatusPending = "pending"
	StatusValid   = "valid"
	StatusInvalid = "invalid"
)
