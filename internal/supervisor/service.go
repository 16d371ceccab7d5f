// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package supervisor

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// serviceFunc adapts a run function to suture.Service with a stable
// name for supervisor logs.
type serviceFunc struct {
	name string
	run  func(ctx context.Context) error
}

func (s serviceFunc) Serve(ctx context.Context) error {
	return s.run(ctx)
}

func (s serviceFunc) String() string {
	return s.name
}

// Wrap turns a context-aware run function into a named suture service.
// Used for components that expose RunWithContext-style loops rather
// than implementing suture.Service themselves.
func Wrap(name string, run func(ctx context.Context) error) suture.Service {
	return serviceFunc{name: name, run: run}
}
