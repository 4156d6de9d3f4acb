// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command datagate runs component graphs built from gates, passers and
// recorders.
//
// Usage:
//
//	datagate run graph.yaml
//	datagate watch graph.yaml --data input.json --node data
//	datagate serve graph.yaml --addr :8080
//	datagate settings get hist record-empty
//	datagate settings set hist record-empty true
//
// Example requests against serve:
//
//	curl http://localhost:8080/v1/components/hist
//	curl -X POST http://localhost:8080/v1/components/data -d '{"{0}": [3]}'
//	curl http://localhost:8080/metrics
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
