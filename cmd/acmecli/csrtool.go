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
	"fmt"
	"os/exec"
	"strconv"
)

// externalCSRTool shells out to the key/CSR-generation tool named by the
// external tool contract (§6): given (rsa_bits, country, organization,
// common_name, email) it must produce "<cn>.key" and "<cn>.csr" in the
// current directory. acmecli never generates domain keys or CSRs itself.
type externalCSRTool struct {
	path string
}

func (t externalCSRTool) GenerateCSR(rsaBits int, country, organization, commonName, email string) error {
	cmd := exec.Command(t.path, "csr",
		strconv.Itoa(rsaBits), country, organization, commonName, email)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s", err, out)
	}
	return nil
}

// GenerateAccountKey invokes the tool contract's second variant: given
// (rsa_bits, filename), it produces an RSA private key file suitable for
// use as an account key. Not called by the current reg flow (which
// generates account keys in-process via anyKey), but kept as an
// alternative path for deployments that standardize all key
// material on the external tool.
func (t externalCSRTool) GenerateAccountKey(rsaBits int, filename string) error {
	cmd := exec.Command(t.path, "key", strconv.Itoa(rsaBits), filename)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s", err, out)
	}
	return nil
}
