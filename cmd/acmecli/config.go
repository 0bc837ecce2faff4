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

package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/thegoacme/acmeclient"
)

const (
	defaultConfig = "account.json"

	rsaPrivateKey = "RSA PRIVATE KEY"
)

// userConfig is the CLI's durable account record: everything needed to
// resume talking to the same CA account across invocations, since the
// engine itself keeps no state beyond a single process run (spec §1,
// "never persisted by the core").
type userConfig struct {
	DirectoryURL string   `json:"directoryURL"`
	URI          string   `json:"uri"`
	Contact      []string `json:"contact,omitempty"`
	Agreement    string   `json:"agreement,omitempty"`
	CurrentTerms string   `json:"currentTerms,omitempty"`

	key *rsa.PrivateKey
}

// configDir returns the local path to the acmecli config directory, based
// on the current user's home directory. Empty if the user cannot be
// determined.
func configDir() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return filepath.Join(u.HomeDir, ".config", "acme")
}

func configFile(name string) string {
	return filepath.Join(configDir(), name)
}

// keyPath returns the account key file tied to a config file name, by
// replacing its extension with ".key".
func keyPath(configName string) string {
	ext := filepath.Ext(configName)
	return configName[:len(configName)-len(ext)] + ".key"
}

// readConfig reads userConfig from name and the sibling private key found
// at keyPath(name).
func readConfig(name string) (*userConfig, error) {
	b, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, err
	}
	uc := &userConfig{}
	if err := json.Unmarshal(b, uc); err != nil {
		return nil, err
	}
	if key, err := readKey(keyPath(name)); err == nil {
		uc.key = key
	}
	return uc, nil
}

// writeConfig writes uc to path, creating parent directories as needed.
// It does not persist uc.key.
func writeConfig(path string, uc *userConfig) error {
	if d := filepath.Dir(path); d != "" {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(uc, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, b, 0600)
}

func readKey(path string) (*rsa.PrivateKey, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, _ := pem.Decode(b)
	if d == nil {
		return nil, fmt.Errorf("no block found in %q", path)
	}
	if d.Type != rsaPrivateKey {
		return nil, fmt.Errorf("%q is unsupported", d.Type)
	}
	return x509.ParsePKCS1PrivateKey(d.Bytes)
}

func writeKey(path string, k *rsa.PrivateKey) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	b := &pem.Block{Type: rsaPrivateKey, Bytes: x509.MarshalPKCS1PrivateKey(k)}
	if err := pem.Encode(f, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// anyKey reads the key at filename, or generates and stores a new one if
// gen is set and none exists yet.
func anyKey(filename string, gen bool) (*rsa.PrivateKey, error) {
	k, err := readKey(filename)
	if err == nil {
		return k, nil
	}
	if !os.IsNotExist(err) || !gen {
		return nil, err
	}
	k, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return k, writeKey(filename, k)
}

// printRegistration formats a registration for display with a tabwriter.
func printRegistration(w io.Writer, reg *acme.Registration, tosLink, kp string) {
	tw := tabwriter.NewWriter(w, 0, 8, 0, '\t', 0)
	fmt.Fprintln(tw, "URI:\t", reg.URI)
	fmt.Fprintln(tw, "Key:\t", kp)
	fmt.Fprintln(tw, "Contact:\t", strings.Join(reg.Contact, ", "))
	fmt.Fprintln(tw, "Terms:\t", tosLink)
	agreed := "no"
	if reg.Agreement != "" && reg.Agreement == tosLink {
		agreed = "yes"
	}
	fmt.Fprintln(tw, "Accepted:\t", agreed)
	tw.Flush()
}
