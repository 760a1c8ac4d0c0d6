// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command pairwise scores every pair of submissions in a corpus with one or
// more external similarity detectors.
//
// # Usage
//
//	pairwise init-config                 # write ~/.pairwise/pairwise.yaml
//	pairwise detectors --check           # verify detector runtimes and payloads
//	pairwise evaluate ./submissions      # score every pair
//	pairwise compare ./a ./b --files     # file-by-file matrix for one pair
//
// # Exit Codes
//
//	0 - Success
//	1 - Command failed
//	2 - Invalid arguments or configuration
//	3 - Detector provisioning failed
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
