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
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"
)

// Response is the tagged result of a GET or POST: either a parsed JSON
// object, a raw byte body, or nothing at all. Which one is populated is
// decided from content-type and content length, never guessed from shape.
type Response struct {
	Raw    []byte // body bytes, regardless of kind
	isJSON bool
	Bytes  []byte // == Raw when the body was not JSON; nil otherwise
	Header http.Header
	Status int
}

// IsJSON reports whether the response carried a JSON body.
func (r *Response) IsJSON() bool { return r.isJSON }

// Decode unmarshals the JSON body into v. It is an error to call this on
// a non-JSON response.
func (r *Response) Decode(v interface{}) error {
	if !r.isJSON {
		return decodeError("response has no JSON body")
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return decodeError("unmarshal response: %v", err)
	}
	return nil
}

// detail extracts the ACME "detail" field from a JSON error body, if any.
func (r *Response) detail() string {
	if !r.isJSON {
		return ""
	}
	var body struct {
		Detail string `json:"detail"`
	}
	json.Unmarshal(r.Raw, &body)
	return body.Detail
}

// nonceCache holds the single most recently observed replay-nonce. It is
// read by every POST and written by every GET and POST response, and must
// be safe for the overlapped-GET use allowed by the concurrency model.
type nonceCache struct {
	mu    sync.Mutex
	value string
}

func (c *nonceCache) take() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.value
	c.value = ""
	return v
}

func (c *nonceCache) set(v string) {
	if v == "" {
		return
	}
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
}

// Transport issues the HTTPS GET/JWS-POST pair the engine is built on. It
// owns the nonce cache; callers never see raw nonces.
type Transport struct {
	HTTPClient *http.Client
	Key        *rsa.PrivateKey

	// postMu serializes POSTs so the take-then-refill nonce sequence can
	// never race: the simplest correct implementation the concurrency
	// model calls for (§5).
	postMu sync.Mutex
	nonce  nonceCache
}

func newTransport(client *http.Client, key *rsa.PrivateKey) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{HTTPClient: client, Key: key}
}

// Get performs an HTTPS GET and classifies the body per content-type.
func (t *Transport) Get(url string) (*Response, error) {
	resp, err := t.HTTPClient.Get(url)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()
	return t.readResponse(resp)
}

// Post signs payload as a flattened JWS using the most recently cached
// nonce (if any) and POSTs it with content-type application/jose.
func (t *Transport) Post(url string, payload interface{}) (*Response, error) {
	t.postMu.Lock()
	defer t.postMu.Unlock()

	nonce := t.nonce.take()
	body, err := jwsEncode(payload, t.Key, nonce)
	if err != nil {
		return nil, decodeError("encode JWS: %v", err)
	}
	req, err := http.NewRequest("POST", url, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, newTransportError(err)
	}
	req.Header.Set("content-type", "application/jose")
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()
	return t.readResponse(resp)
}

func (t *Transport) readResponse(resp *http.Response) (*Response, error) {
	t.nonce.set(resp.Header.Get("replay-nonce"))

	r := &Response{Header: resp.Header, Status: resp.StatusCode}
	ct := resp.Header.Get("content-type")
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return r, newTransportError(err)
	}
	r.Raw = b
	if len(b) == 0 {
		return r, nil
	}
	if strings.Contains(ct, "json") {
		if !json.Valid(b) {
			return r, decodeError("invalid JSON body")
		}
		r.isJSON = true
		return r, nil
	}
	r.Bytes = b
	return r, nil
}

// statusOK, statusClientError and statusServerError classify a response
// per §4.1: 1xx-3xx ok, 4xx client error, 5xx server error.
func statusOK(code int) bool          { return code < 400 }
func statusClientError(code int) bool { return code >= 400 && code < 500 }
func statusServerError(code int) bool { return code >= 500 }
