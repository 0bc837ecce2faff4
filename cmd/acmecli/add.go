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
	"bufio"
	"fmt"
	"os"

	"github.com/thegoacme/acmeclient"
)

var (
	cmdAdd = &command{
		UsageLine: "add [-c config] [-u webroot] [-w well-known-path] [-y] domain",
		Short:     "authorize a domain using the http-01 challenge",
		Long: `
Add runs the http-01 domain-authorization flow for the given domain: it
requests a challenge, publishes the key authorization file under
-u/.well-known/acme-challenge/ (or -w if given), accepts the challenge, and
polls until the authorization reaches a terminal status.

Unless -y is given, add pauses after publishing the challenge file and
waits for Enter, so the webserver in front of -u can be confirmed serving
the file before the challenge is accepted.

Default location for the config file is
%s.
		`,
	}

	addC    *string
	addRoot = cmdAdd.flag.String("u", ".", "")
	addWK   = cmdAdd.flag.String("w", "", "")
	addYes  = cmdAdd.flag.Bool("y", false, "")
)

func init() {
	p := configFile(defaultConfig)
	addC = cmdAdd.flag.String("c", p, "")
	cmdAdd.Long = fmt.Sprintf(cmdAdd.Long, p)
	cmdAdd.run = runAdd
}

func runAdd(args []string) {
	if len(args) == 0 {
		fatalf("no domain specified")
	}
	domain := args[0]

	uc, err := readConfig(*addC)
	if err != nil {
		fatalf("read config: %v", err)
	}
	if uc.key == nil {
		fatalf("no key found for %s", uc.URI)
	}

	cfg := acme.Config{
		DirectoryURL:    uc.DirectoryURL,
		Webroot:         *addRoot,
		WellKnownPath:   *addWK,
		WithInteraction: !*addYes,
	}
	e := acme.NewEngine(cfg, uc.key, nil)
	e.Interact = func() error {
		fmt.Fprintf(os.Stderr, "challenge file published under %s; press Enter once it is reachable...\n", *addRoot)
		bufio.NewReader(os.Stdin).ReadString('\n')
		return nil
	}

	az, err := e.AuthorizeDomain(domain)
	if err != nil {
		fatalf("authorize %s: %v", domain, err)
	}
	logf("%s: %s", domain, az.Status)
}
