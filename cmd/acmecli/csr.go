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

	"github.com/thegoacme/acmeclient"
)

var (
	cmdCSR = &command{
		UsageLine: "csr [-c config] [-k csrtool] [-n days] [-o org] [-r country] domain",
		Short:     "generate a CSR and request a signed certificate",
		Long: `
Csr invokes the external key/CSR-generation tool named by -k to produce
"<domain>.key" and "<domain>.csr", submits the CSR to the CA, and writes
the issued certificate to "<domain>.der".

Default location for the config file is
%s.
		`,
	}

	csrC       *string
	csrTool    = cmdCSR.flag.String("k", "acme-csr-tool", "")
	csrDays    = cmdCSR.flag.Int("n", 1, "")
	csrOrg     = cmdCSR.flag.String("o", "", "")
	csrCountry = cmdCSR.flag.String("r", "", "")
	csrEmail   = cmdCSR.flag.String("e", "", "")
)

func init() {
	p := configFile(defaultConfig)
	csrC = cmdCSR.flag.String("c", p, "")
	cmdCSR.Long = fmt.Sprintf(cmdCSR.Long, p)
	cmdCSR.run = runCSR
}

func runCSR(args []string) {
	if len(args) == 0 {
		fatalf("no domain specified")
	}
	domain := args[0]

	uc, err := readConfig(*csrC)
	if err != nil {
		fatalf("read config: %v", err)
	}
	if uc.key == nil {
		fatalf("no key found for %s", uc.URI)
	}

	cfg := acme.Config{
		DirectoryURL:      uc.DirectoryURL,
		DaysValid:         *csrDays,
		DefaultRSAKeySize: 2048,
		EmailOverride:     *csrEmail,
	}
	e := acme.NewEngine(cfg, uc.key, nil)
	e.CSRGen = externalCSRTool{path: *csrTool}

	path, err := e.RequestCertificate(domain, *csrOrg, *csrCountry)
	if err != nil {
		fatalf("request certificate: %v", err)
	}
	logf("certificate written to %s", path)
}
