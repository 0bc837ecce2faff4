package acme

import "time"

// The poll schedule is the exponential backoff shared by both pollers: delay
// starts at one unit of 500ms, the retry factor doubles each attempt, and
// polling gives up once the factor exceeds 128 — eight attempts total,
// roughly 127.5s of wall time.
const (
	pollBaseDelay = 500 * time.Millisecond
	pollMaxFactor = 128
)

// pollDelays yields the sequence of sleep durations a poller should use
// before each retry: 500ms, 1s, 2s, 4s, 8s, 16s, 32s, 64s (eight values;
// the ninth attempt is never scheduled).
func pollDelays() []time.Duration {
	var delays []time.Duration
	for factor := 1; factor <= pollMaxFactor; factor *= 2 {
		delays = append(delays, time.Duration(factor)*pollBaseDelay)
	}
	return delays
}

// sleeper abstracts time.Sleep so tests can drive the poll loop without
// real wall-clock delay.
type sleeper func(time.Duration)

// pollUntilValid polls uri until the authorization leaves "pending",
// times out, or a non-JSON response terminates the poll as a failure.
func (e *Engine) pollUntilValid(uri string, sleep sleeper) (*Authorization, error) {
	for _, delay := range pollDelays() {
		resp, err := e.transport.Get(uri)
		if err != nil {
			return nil, err
		}
		if !resp.IsJSON() {
			return nil, protocolError("authorization poll: non-JSON response")
		}
		var az Authorization
		if err := resp.Decode(&az); err != nil {
			return nil, err
		}
		az.URI = uri
		if az.Status != StatusPending {
			return &az, nil
		}
		sleep(delay)
	}
	return nil, timeoutError("pollUntilValid")
}

// pollUntilIssued polls uri until the certificate bytes are returned, the
// server reports a failing status, or the retry ceiling is hit.
func (e *Engine) pollUntilIssued(uri string, sleep sleeper) ([]byte, error) {
	for _, delay := range pollDelays() {
		resp, err := e.transport.Get(uri)
		if err != nil {
			return nil, err
		}
		if len(resp.Bytes) > 0 {
			return resp.Bytes, nil
		}
		if !statusOK(resp.Status) {
			return nil, responseErrorFromParts(resp)
		}
		sleep(delay)
	}
	return nil, timeoutError("pollUntilIssued")
}

// responseErrorFromParts builds a KindStatus Error from an already-parsed
// Response, used once the raw *http.Response is gone (it's been read into
// a Response by the transport layer already).
func responseErrorFromParts(resp *Response) *Error {
	return &Error{Kind: KindStatus, Code: resp.Status, Detail: resp.detail()}
}
