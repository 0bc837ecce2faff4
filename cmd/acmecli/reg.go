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
	"os"

	"github.com/thegoacme/acmeclient"
)

var (
	cmdReg = &command{
		run:       runReg,
		UsageLine: "reg [-c config] [-gen] [-d url] [-e email] [-accept]",
		Short:     "create or load an account, optionally accepting the CA's terms",
		Long: `
Reg creates a new account at the CA specified by -d, or loads an existing
one from the config file.

Default location for the config file is %s.
A new config and account key are created if -gen is given and none exists.

With -accept, reg fetches the account's current terms of service and
agrees to them before saving the config.
		`,
	}

	regC      *string
	regD      = cmdReg.flag.String("d", "https://acme-staging.api.letsencrypt.org/directory", "")
	regGen    = cmdReg.flag.Bool("gen", false, "")
	regEmail  = cmdReg.flag.String("e", "", "")
	regAccept = cmdReg.flag.Bool("accept", false, "")
)

func init() {
	p := configFile(defaultConfig)
	regC = cmdReg.flag.String("c", p, "")
	cmdReg.Long = fmt.Sprintf(cmdReg.Long, p)
}

func runReg(args []string) {
	uc, err := readConfig(*regC)
	if err != nil {
		if !os.IsNotExist(err) || !*regGen {
			fatalf("read config: %v", err)
		}
		uc = &userConfig{DirectoryURL: *regD}
	}
	if uc.key == nil {
		if !*regGen {
			fatalf("no key found for %s; pass -gen to create one", *regC)
		}
		key, err := anyKey(keyPath(*regC), true)
		if err != nil {
			fatalf("account key: %v", err)
		}
		uc.key = key
	}
	if uc.DirectoryURL == "" {
		uc.DirectoryURL = *regD
	}

	e := acme.NewEngine(acme.Config{DirectoryURL: uc.DirectoryURL}, uc.key, nil)

	if uc.URI == "" {
		if err := e.GetDirectory(); err != nil {
			fatalf("directory: %v", err)
		}
		contact := uc.Contact
		if *regEmail != "" {
			contact = []string{"mailto:" + *regEmail}
		}
		loc, _, err := e.NewRegistration(contact)
		if err != nil {
			fatalf("register: %v", err)
		}
		uc.URI = loc
	}
	reg, err := e.GetRegistration(uc.URI, map[string]interface{}{})
	if err != nil {
		fatalf("get registration: %v", err)
	}
	uc.Contact = reg.Contact
	uc.CurrentTerms = e.CurrentTOSLink()

	if *regAccept && uc.CurrentTerms != "" {
		reg, err = e.GetRegistration(uc.URI, map[string]interface{}{"Agreement": uc.CurrentTerms})
		if err != nil {
			fatalf("agree tos: %v", err)
		}
		uc.Agreement = reg.Agreement
	}

	if err := writeConfig(*regC, uc); err != nil {
		fatalf("write config: %v", err)
	}
	printRegistration(os.Stdout, reg, uc.CurrentTerms, keyPath(*regC))
}
