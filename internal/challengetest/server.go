// Package challengetest wraps github.com/letsencrypt/challtestsrv into a
// disposable http-01 challenge responder for integration tests of the
// domain-authorization flow, standing in for a real webroot-serving
// webserver in front of the engine's published challenge file.
package challengetest

import (
	"fmt"
	"io/ioutil"
	"log"
	"net"

	"github.com/letsencrypt/challtestsrv"
)

// Server runs an http-01 challenge responder on an ephemeral local port.
type Server struct {
	srv  *challtestsrv.ChallSrv
	addr string
}

// Start binds to an ephemeral port on 127.0.0.1 and begins serving
// http-01 challenge responses. Call Shutdown when done.
func Start() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	addr := ln.Addr().String()
	ln.Close()

	srv, err := challtestsrv.New(challtestsrv.Config{
		HTTPOneAddrs: []string{addr},
		Log:          log.New(ioutil.Discard, "", 0),
	})
	if err != nil {
		return nil, err
	}
	go srv.Run()
	return &Server{srv: srv, addr: addr}, nil
}

// Addr returns the "host:port" the server is listening on for http-01
// validation requests.
func (s *Server) Addr() string {
	return s.addr
}

// BaseURL returns the http:// base URL a challenge client would GET
// "/.well-known/acme-challenge/<token>" against.
func (s *Server) BaseURL() string {
	return fmt.Sprintf("http://%s", s.addr)
}

// Publish registers the key authorization for token so a GET to
// "/.well-known/acme-challenge/<token>" returns it.
func (s *Server) Publish(token, keyAuthorization string) {
	s.srv.AddHTTPOneChallenge(token, keyAuthorization)
}

// Unpublish removes a previously published token.
func (s *Server) Unpublish(token string) {
	s.srv.DeleteHTTPOneChallenge(token)
}

// Shutdown stops the underlying challenge server.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}
