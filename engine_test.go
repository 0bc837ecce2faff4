package acme

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestEngine(t *testing.T, dirURL string) *Engine {
	t.Helper()
	cfg := Config{DirectoryURL: dirURL, DaysValid: 1, DefaultRSAKeySize: 2048}
	return NewEngine(cfg, testKey(t), nil)
}

func TestGetDirectory(t *testing.T) {
	const (
		reg   = "https://example.com/acme/new-reg"
		authz = "https://example.com/acme/new-authz"
		cert  = "https://example.com/acme/new-cert"
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		fmt.Fprintf(w, `{"new-reg":%q,"new-authz":%q,"new-cert":%q}`, reg, authz, cert)
	}))
	defer ts.Close()

	e := newTestEngine(t, ts.URL)
	e.transport.HTTPClient = ts.Client()
	if err := e.GetDirectory(); err != nil {
		t.Fatal(err)
	}
	if e.directory.NewReg != reg || e.directory.NewAuthz != authz || e.directory.NewCert != cert {
		t.Errorf("directory = %+v", e.directory)
	}
}

func TestGetDirectoryFailsOnNonObject(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain")
		fmt.Fprint(w, "not json")
	}))
	defer ts.Close()

	e := newTestEngine(t, ts.URL)
	e.transport.HTTPClient = ts.Client()
	if err := e.GetDirectory(); err == nil {
		t.Fatal("expected an error for a non-JSON directory response")
	}
}

// acmeServer is a minimal in-memory ACME server used to drive full
// multi-step engine flows (profile, authorization, certificate) rather
// than asserting on a single request/response pair.
type acmeServer struct {
	mux               *http.ServeMux
	regCreated        bool
	agreedTerms       string
	currentTerms      string
	authzForbidden    bool // forces one 403 before succeeding
	usedForbiddenOnce bool
	challengeAccepted bool
	authzPollCount    int
	certPollCount     int
	certBytes         []byte
}

func newACMEServer() *acmeServer {
	s := &acmeServer{mux: http.NewServeMux(), currentTerms: "https://example.com/tos/v1"}
	s.mux.HandleFunc("/directory", s.directory)
	s.mux.HandleFunc("/new-reg", s.newReg)
	s.mux.HandleFunc("/reg/1", s.reg)
	s.mux.HandleFunc("/new-authz", s.newAuthz)
	s.mux.HandleFunc("/authz/1", s.authzPoll)
	s.mux.HandleFunc("/challenge/1", s.challenge)
	s.mux.HandleFunc("/new-cert", s.newCert)
	return s
}

func (s *acmeServer) directory(w http.ResponseWriter, r *http.Request) {
	base := "http://" + r.Host
	w.Header().Set("content-type", "application/json")
	fmt.Fprintf(w, `{"new-reg":%q,"new-authz":%q,"new-cert":%q}`,
		base+"/new-reg", base+"/new-authz", base+"/new-cert")
}

func (s *acmeServer) newReg(w http.ResponseWriter, r *http.Request) {
	base := "http://" + r.Host
	w.Header().Set("location", base+"/reg/1")
	w.Header().Set("content-type", "application/json")
	if !s.regCreated {
		s.regCreated = true
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	fmt.Fprint(w, `{"contact":["mailto:acct@example.com"]}`)
}

func (s *acmeServer) reg(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Agreement string
	}
	decodeJWSRequestBody(&body, r)
	if body.Agreement != "" {
		s.agreedTerms = body.Agreement
	}
	w.Header().Set("content-type", "application/json")
	w.Header().Set("link", fmt.Sprintf(`<%s>;rel="terms-of-service"`, s.currentTerms))
	fmt.Fprintf(w, `{"contact":["mailto:acct@example.com"],"agreement":%q,"key":{"kty":"RSA","n":"n-value","e":"AQAB"}}`, s.agreedTerms)
}

func (s *acmeServer) newAuthz(w http.ResponseWriter, r *http.Request) {
	if s.authzForbidden && !s.usedForbiddenOnce {
		s.usedForbiddenOnce = true
		w.WriteHeader(http.StatusForbidden)
		return
	}
	base := "http://" + r.Host
	w.Header().Set("location", base+"/authz/1")
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"identifier":{"type":"dns","value":"example.com"},"status":"pending","challenges":[{"type":"http-01","uri":%q,"token":"tok-1"}]}`, base+"/challenge/1")
}

func (s *acmeServer) authzPoll(w http.ResponseWriter, r *http.Request) {
	s.authzPollCount++
	w.Header().Set("content-type", "application/json")
	if s.challengeAccepted {
		fmt.Fprint(w, `{"identifier":{"type":"dns","value":"example.com"},"status":"valid","challenges":[]}`)
		return
	}
	fmt.Fprint(w, `{"identifier":{"type":"dns","value":"example.com"},"status":"pending","challenges":[]}`)
}

func (s *acmeServer) challenge(w http.ResponseWriter, r *http.Request) {
	s.challengeAccepted = true
	w.Header().Set("content-type", "application/json")
	fmt.Fprint(w, `{"type":"http-01","status":"pending"}`)
}

func (s *acmeServer) newCert(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "application/pkix-cert")
	w.WriteHeader(http.StatusCreated)
	w.Write(s.certBytes)
}

func decodeJWSRequestBody(v interface{}, r *http.Request) {
	var req struct{ Payload string }
	json.NewDecoder(r.Body).Decode(&req)
	payload, _ := base64.RawURLEncoding.DecodeString(req.Payload)
	json.Unmarshal(payload, v)
}

func TestGetProfile(t *testing.T) {
	srv := newACMEServer()
	ts := httptest.NewServer(srv.mux)
	defer ts.Close()

	e := newTestEngine(t, ts.URL+"/directory")
	e.transport.HTTPClient = ts.Client()

	profile, err := e.GetProfile()
	if err != nil {
		t.Fatal(err)
	}
	if extractEmail(profile.Contact) != "acct@example.com" {
		t.Errorf("profile contact = %v", profile.Contact)
	}
	if e.cachedRegURI() == "" {
		t.Error("expected a cached registration URI")
	}
	if e.cachedProfilePubKey() == nil {
		t.Error("expected a cached profile public key")
	}
}

func TestAuthorizeDomainHappyPath(t *testing.T) {
	srv := newACMEServer()
	ts := httptest.NewServer(srv.mux)
	defer ts.Close()

	dir := t.TempDir()
	e := newTestEngine(t, ts.URL+"/directory")
	e.transport.HTTPClient = ts.Client()
	e.cfg.Webroot = dir

	az, err := e.AuthorizeDomain("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if az.Status != StatusValid {
		t.Errorf("Status = %q; want valid", az.Status)
	}
}

// TestTOSRecoveryOnce implements property 6 and the §4.2.a TOS retry path:
// a 403 on new-authz followed by a successful agree_tos followed by a
// second new-authz that returns challenges terminates successfully.
func TestTOSRecoveryOnce(t *testing.T) {
	srv := newACMEServer()
	srv.authzForbidden = true
	ts := httptest.NewServer(srv.mux)
	defer ts.Close()

	dir := t.TempDir()
	e := newTestEngine(t, ts.URL+"/directory")
	e.transport.HTTPClient = ts.Client()
	e.cfg.Webroot = dir

	az, err := e.AuthorizeDomain("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if az.Status != StatusValid {
		t.Errorf("Status = %q; want valid", az.Status)
	}
	if srv.agreedTerms != srv.currentTerms {
		t.Errorf("agreedTerms = %q; want %q", srv.agreedTerms, srv.currentTerms)
	}
}

// TestTOSRecoveryBoundedToOneCycle: two consecutive 403s terminate
// unsuccessfully rather than looping forever.
func TestTOSRecoveryBoundedToOneCycle(t *testing.T) {
	srv := newACMEServer()
	srv.mux = http.NewServeMux()
	srv.mux.HandleFunc("/directory", srv.directory)
	srv.mux.HandleFunc("/new-reg", srv.newReg)
	srv.mux.HandleFunc("/reg/1", srv.reg)
	srv.mux.HandleFunc("/new-authz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	ts := httptest.NewServer(srv.mux)
	defer ts.Close()

	e := newTestEngine(t, ts.URL+"/directory")
	e.transport.HTTPClient = ts.Client()
	e.cfg.Webroot = t.TempDir()

	_, err := e.AuthorizeDomain("example.com")
	if err == nil {
		t.Fatal("expected an error after two consecutive 403s")
	}
	acmeErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if acmeErr.Kind != KindTOSRequired {
		t.Errorf("Kind = %q; want %q", acmeErr.Kind, KindTOSRequired)
	}
}

// TestAuthorizeDomainForbiddenWithNoCachedTOSLink covers the other
// KindTOSRequired path: a 403 from new-authz with nothing cached to agree
// to, which must terminate immediately rather than attempt a retry.
func TestAuthorizeDomainForbiddenWithNoCachedTOSLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/directory", func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		w.Header().Set("content-type", "application/json")
		fmt.Fprintf(w, `{"new-reg":%q,"new-authz":%q,"new-cert":%q}`,
			base+"/new-reg", base+"/new-authz", base+"/new-cert")
	})
	mux.HandleFunc("/new-reg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("location", "http://"+r.Host+"/reg/1")
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/reg/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/new-authz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	e := newTestEngine(t, ts.URL+"/directory")
	e.transport.HTTPClient = ts.Client()
	e.cfg.Webroot = t.TempDir()

	_, err := e.AuthorizeDomain("example.com")
	if err == nil {
		t.Fatal("expected an error for a 403 with no cached terms link")
	}
	acmeErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if acmeErr.Kind != KindTOSRequired {
		t.Errorf("Kind = %q; want %q", acmeErr.Kind, KindTOSRequired)
	}
}

func TestCreateAccount(t *testing.T) {
	srv := newACMEServer()
	ts := httptest.NewServer(srv.mux)
	defer ts.Close()

	e := newTestEngine(t, ts.URL+"/directory")
	e.transport.HTTPClient = ts.Client()

	loc, err := e.CreateAccount("me@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if loc == "" {
		t.Error("expected a non-empty location")
	}
}

func TestAuthorizeDomainFailsWhenNoHTTP01Offered(t *testing.T) {
	mux := http.NewServeMux()
	srv := newACMEServer()
	mux.HandleFunc("/directory", srv.directory)
	mux.HandleFunc("/new-reg", srv.newReg)
	mux.HandleFunc("/reg/1", srv.reg)
	mux.HandleFunc("/new-authz", func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		w.Header().Set("location", base+"/authz/1")
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"identifier":{"type":"dns","value":"example.com"},"status":"pending","challenges":[{"type":"dns-01","uri":"http://x/chal","token":"t"}]}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	e := newTestEngine(t, ts.URL+"/directory")
	e.transport.HTTPClient = ts.Client()
	e.cfg.Webroot = t.TempDir()

	_, err := e.AuthorizeDomain("example.com")
	if err == nil {
		t.Fatal("expected an error when no http-01 challenge is offered")
	}
	acmeErr, ok := err.(*Error)
	if !ok || acmeErr.Kind != KindProtocol {
		t.Fatalf("err = %v; want KindProtocol", err)
	}
}
