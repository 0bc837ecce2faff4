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
	cmdInfo = &command{
		UsageLine: "info [-c config]",
		Short:     "display info about the account",
		Long: `
Info makes a request to the ACME server signed with the account's private
key and displays the formatted result. It is a simple way to verify that
an account key is still valid.

Default location for the config file is
%s.
		`,
	}

	infoC *string
)

func init() {
	p := configFile(defaultConfig)
	infoC = cmdInfo.flag.String("c", p, "")
	cmdInfo.Long = fmt.Sprintf(cmdInfo.Long, p)
	cmdInfo.run = runInfo
}

func runInfo([]string) {
	uc, err := readConfig(*infoC)
	if err != nil {
		fatalf("read config: %v", err)
	}
	if uc.key == nil {
		fatalf("no key found for %s", uc.URI)
	}
	if uc.URI == "" {
		fatalf("no registration URI in %s; run 'acmecli reg' first", *infoC)
	}

	e := acme.NewEngine(acme.Config{DirectoryURL: uc.DirectoryURL}, uc.key, nil)
	reg, err := e.GetRegistration(uc.URI, map[string]interface{}{})
	if err != nil {
		fatalf(err.Error())
	}
	printRegistration(os.Stdout, reg, e.CurrentTOSLink(), keyPath(*infoC))
}
