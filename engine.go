package acme

import (
	"crypto/rsa"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config holds the Engine's configuration options, per the component
// design's enumerated option table.
type Config struct {
	DirectoryURL string

	// DaysValid is the requested certificate validity, clamped to >= 1 by
	// makeCertRequest. The source's default is 1 — a one-day certificate —
	// which this client preserves deliberately; callers who want longer
	// validity (the reference CLI used -n=90) must set it explicitly.
	DaysValid int

	DefaultRSAKeySize int

	EmailOverride      string
	EmailDefaultPrefix string // default "hostmaster"
	Webroot            string
	WellKnownPath      string // default "/.well-known/acme-challenge/"
	WithInteraction    bool
}

func (c Config) emailDefaultPrefix() string {
	if c.EmailDefaultPrefix == "" {
		return "hostmaster"
	}
	return c.EmailDefaultPrefix
}

func (c Config) wellKnownPath() string {
	if c.WellKnownPath == "" {
		return "/.well-known/acme-challenge/"
	}
	return c.WellKnownPath
}

// CSRGenerator is the external collaborator that, given an RSA bit length
// and subject fields, produces "<commonName>.key" and "<commonName>.csr"
// in the current working directory. The core never generates keys or CSRs
// itself (§6 external tool contract).
type CSRGenerator interface {
	GenerateCSR(rsaBits int, country, organization, commonName, email string) error
}

// Engine orchestrates the ACME conversation described in §4.2: directory
// discovery, registration bootstrap, TOS agreement, domain authorization
// and certificate issuance. It holds exactly one account key pair and is
// not safe for concurrent POSTs beyond what Transport already serializes.
type Engine struct {
	cfg       Config
	key       *rsa.PrivateKey
	transport *Transport
	CSRGen    CSRGenerator

	// Interact is invoked between publishing the challenge file and
	// accepting the challenge when cfg.WithInteraction is set. A nil
	// Interact with WithInteraction true proceeds immediately; it is the
	// collaborator's job to block here for a "press enter to continue"
	// prompt.
	Interact func() error

	mu            sync.Mutex
	directory     *Directory
	regURI        string
	tosLink       string
	profilePubKey *JWK
}

// NewEngine constructs an Engine bound to a single RSA account key pair.
func NewEngine(cfg Config, key *rsa.PrivateKey, httpClient *http.Client) *Engine {
	return &Engine{
		cfg:       cfg,
		key:       key,
		transport: newTransport(httpClient, key),
	}
}

func (e *Engine) directoryURL(resource string) (string, error) {
	e.mu.Lock()
	d := e.directory
	e.mu.Unlock()
	if d == nil {
		return "", protocolError("directory not fetched yet")
	}
	switch resource {
	case "new-reg":
		return d.NewReg, nil
	case "new-authz":
		return d.NewAuthz, nil
	case "new-cert":
		return d.NewCert, nil
	}
	return "", protocolError("unknown resource %q", resource)
}

func (e *Engine) cachedTOSLink() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tosLink
}

func (e *Engine) cachedProfilePubKey() *JWK {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profilePubKey
}

func (e *Engine) cachedRegURI() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regURI
}

// CurrentTOSLink returns the terms-of-service link advertised by the most
// recent reg response, or "" if none has been cached yet. Collaborators
// (the CLI's info/reg commands) use this to display and act on the CA's
// current terms without reaching into engine internals.
func (e *Engine) CurrentTOSLink() string {
	return e.cachedTOSLink()
}

// RegistrationURI returns the cached account URL, or "" if no
// registration has been bootstrapped yet.
func (e *Engine) RegistrationURI() string {
	return e.cachedRegURI()
}

// GetDirectory fetches and caches the ACME resource directory.
func (e *Engine) GetDirectory() error {
	resp, err := e.transport.Get(e.cfg.DirectoryURL)
	if err != nil {
		return err
	}
	if !resp.IsJSON() {
		return decodeError("directory response is not a JSON object")
	}
	var d Directory
	if err := resp.Decode(&d); err != nil {
		return err
	}
	e.mu.Lock()
	e.directory = &d
	e.mu.Unlock()
	return nil
}

// NewRegistration POSTs a new-reg request. A nil/empty contact list is
// used both to create an account and as the profile-discovery probe: a
// successful response with a Location header reveals the account URL,
// which is cached on the engine.
func (e *Engine) NewRegistration(contact []string) (location string, status int, err error) {
	url, err := e.directoryURL("new-reg")
	if err != nil {
		return "", 0, err
	}
	resp, err := e.transport.Post(url, makeNewRegRequest(contact))
	if err != nil {
		return "", 0, err
	}
	if !statusOK(resp.Status) {
		return "", resp.Status, responseErrorFromParts(resp)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", resp.Status, missingHeaderError("location")
	}
	e.mu.Lock()
	e.regURI = loc
	e.mu.Unlock()
	return loc, resp.Status, nil
}

// GetRegistration POSTs a reg request to uri (an account URL). On a JSON
// response it caches the server-confirmed public key and refreshes the
// terms-of-service link (clearing it if the response carries none).
func (e *Engine) GetRegistration(uri string, payload map[string]interface{}) (*Registration, error) {
	payload["resource"] = "reg"
	resp, err := e.transport.Post(uri, payload)
	if err != nil {
		return nil, err
	}
	if !statusOK(resp.Status) {
		return nil, responseErrorFromParts(resp)
	}
	if !resp.IsJSON() {
		return nil, decodeError("reg response is not a JSON object")
	}
	var reg Registration
	if err := resp.Decode(&reg); err != nil {
		return nil, err
	}
	reg.URI = uri

	e.mu.Lock()
	if reg.Key != nil {
		e.profilePubKey = reg.Key
	}
	e.tosLink = tosLinkFromHeader(resp.Header)
	e.mu.Unlock()
	return &reg, nil
}

// GetProfile sequences get_directory -> new_registration(nil) ->
// get_registration(location), returning the resulting profile.
func (e *Engine) GetProfile() (*Registration, error) {
	if err := e.GetDirectory(); err != nil {
		return nil, err
	}
	loc, _, err := e.NewRegistration(nil)
	if err != nil {
		return nil, err
	}
	return e.GetRegistration(loc, makeRegRequest(""))
}

// CreateAccount registers a new account with the given contact email.
// It succeeds iff the server answers 201 Created with a Location header.
func (e *Engine) CreateAccount(email string) (string, error) {
	if err := e.GetDirectory(); err != nil {
		return "", err
	}
	loc, status, err := e.NewRegistration([]string{"mailto:" + email})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", protocolError("new-reg: expected 201 Created, got %d", status)
	}
	return loc, nil
}

// AgreeTOS records agreement to the given terms-of-service link against
// the cached registration URI.
func (e *Engine) AgreeTOS(tosLink string) (*Registration, error) {
	uri := e.cachedRegURI()
	if uri == "" {
		return nil, protocolError("no registration URI cached; call GetProfile or CreateAccount first")
	}
	return e.GetRegistration(uri, makeRegRequest(tosLink))
}

// AuthorizeDomain runs the full domain-authorization state machine (§4.2.a):
// profile bootstrap, new-authz, one bounded TOS-agreement retry cycle,
// http-01 challenge selection and preparation, acceptance, and polling to
// a terminal status.
func (e *Engine) AuthorizeDomain(domain string) (*Authorization, error) {
	if _, err := e.GetProfile(); err != nil {
		return nil, err
	}
	return e.authorizeDomainAttempt(domain, false)
}

func (e *Engine) authorizeDomainAttempt(domain string, retriedTOS bool) (*Authorization, error) {
	url, err := e.directoryURL("new-authz")
	if err != nil {
		return nil, err
	}
	resp, err := e.transport.Post(url, makeDomainAuthorizationRequest(domain))
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusForbidden {
		if retriedTOS {
			return nil, tosRequiredError(resp.Status, "new-authz still forbidden after one TOS agreement cycle")
		}
		tos := e.cachedTOSLink()
		if tos == "" {
			return nil, tosRequiredError(resp.Status, "new-authz forbidden and no terms of service link cached to agree to")
		}
		if _, err := e.AgreeTOS(tos); err != nil {
			return nil, err
		}
		return e.authorizeDomainAttempt(domain, true)
	}
	if !statusOK(resp.Status) {
		return nil, responseErrorFromParts(resp)
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, missingHeaderError("location")
	}
	if !resp.IsJSON() {
		return nil, protocolError("new-authz: non-JSON response")
	}
	var az Authorization
	if err := resp.Decode(&az); err != nil {
		return nil, err
	}
	az.URI = loc
	if len(az.Challenges) == 0 {
		return nil, protocolError("new-authz: no challenges in response")
	}

	chal := selectHTTP01(az.Challenges)
	if chal == nil {
		return nil, protocolError("no http-01 challenge offered")
	}

	keyAuth, err := makeKeyAuthorization(chal, e.cachedProfilePubKey())
	if err != nil {
		return nil, err
	}
	if err := e.publishChallengeFile(chal.Token, keyAuth); err != nil {
		return nil, err
	}
	if e.cfg.WithInteraction && e.Interact != nil {
		if err := e.Interact(); err != nil {
			return nil, err
		}
	}

	acceptResp, err := e.transport.Post(chal.URI, makeChallengeResponseRequest(keyAuth))
	if err != nil {
		return nil, err
	}
	if acceptResp.Status >= 400 {
		return nil, responseErrorFromParts(acceptResp)
	}

	return e.pollUntilValid(loc, time.Sleep)
}

func selectHTTP01(challenges []Challenge) *Challenge {
	for i := range challenges {
		if challenges[i].Type == "http-01" {
			return &challenges[i]
		}
	}
	return nil
}

// publishChallengeFile writes the key authorization under
// <webroot><well_known_path><token>, creating intermediate directories.
// The collaborator is expected to have created .well-known/acme-challenge
// under webroot already; MkdirAll here is just normal filesystem hygiene,
// not a substitute for that contract.
func (e *Engine) publishChallengeFile(token, keyAuth string) error {
	dir := filepath.Join(e.cfg.Webroot, e.cfg.wellKnownPath())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &Error{Kind: KindFilesystem, Detail: err.Error()}
	}
	path := filepath.Join(dir, token)
	if err := ioutil.WriteFile(path, []byte(keyAuth), 0644); err != nil {
		return &Error{Kind: KindFilesystem, Detail: err.Error()}
	}
	return nil
}

// RequestCertificate runs the full §4.2 certificate flow: get_profile to
// derive the account email, delegate to the external CSR generator, submit
// the CSR, and write the issued certificate to "<domain>.der".
func (e *Engine) RequestCertificate(domain, organization, country string) (string, error) {
	profile, err := e.GetProfile()
	if err != nil {
		return "", err
	}

	email := e.cfg.EmailOverride
	if email == "" && profile != nil {
		email = extractEmail(profile.Contact)
	}
	if email == "" {
		email = e.cfg.emailDefaultPrefix() + "@" + domain
	}

	safeDomain := safeName(domain, false)
	if e.CSRGen == nil {
		return "", &Error{Kind: KindExternalTool, Detail: "no CSR generator configured"}
	}
	if err := e.CSRGen.GenerateCSR(e.cfg.DefaultRSAKeySize, country, organization, domain, email); err != nil {
		return "", &Error{Kind: KindExternalTool, Detail: err.Error()}
	}

	cert, err := e.requestSigning(safeDomain)
	if err != nil {
		return "", err
	}

	derPath := safeDomain + ".der"
	if err := ioutil.WriteFile(derPath, cert, 0644); err != nil {
		return "", &Error{Kind: KindFilesystem, Detail: err.Error()}
	}
	return derPath, nil
}

// requestSigning implements §4.2.c: read "<domain>.csr", submit it, and
// either return the inline certificate bytes or poll the Location the
// server hands back for delayed issuance.
func (e *Engine) requestSigning(safeDomain string) ([]byte, error) {
	csr, err := ioutil.ReadFile(safeDomain + ".csr")
	if err != nil {
		return nil, &Error{Kind: KindFilesystem, Detail: err.Error()}
	}
	url, err := e.directoryURL("new-cert")
	if err != nil {
		return nil, err
	}
	resp, err := e.transport.Post(url, makeCertRequest(csr, e.cfg.DaysValid, time.Now()))
	if err != nil {
		return nil, err
	}
	if len(resp.Bytes) > 0 {
		return resp.Bytes, nil
	}
	if statusOK(resp.Status) {
		loc := resp.Header.Get("Location")
		if loc == "" {
			return nil, missingHeaderError("location")
		}
		return e.pollUntilIssued(loc, time.Sleep)
	}
	return nil, responseErrorFromParts(resp)
}
