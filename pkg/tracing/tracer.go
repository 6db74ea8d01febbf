// Copyright 2025 The Sigstore Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracing wraps sign and verify stages in spans. The default build
// uses a no-op tracer; building with the "otel" tag and setting the usual
// OTEL_* environment variables exports spans over OTLP/HTTP.
package tracing

import (
	"context"

	"github.com/sigstore/playbook-integrity/pkg/integrity"
)

// Span is a single traced stage.
type Span interface {
	SetAttribute(key string, value interface{})
	// Fail marks the span as failed with err.
	Fail(err error)
	End()
}

// Tracer creates spans for named operations.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

// NoopSpan discards everything.
type NoopSpan struct{}

func (NoopSpan) SetAttribute(string, interface{}) {}
func (NoopSpan) Fail(error)                       {}
func (NoopSpan) End()                             {}

// NoopTracer is used until a real tracer is configured.
type NoopTracer struct{}

func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, NoopSpan{}
}

var globalTracer Tracer = NoopTracer{}

// SetTracer replaces the global tracer. nil restores the no-op tracer.
func SetTracer(t Tracer) {
	if t == nil {
		globalTracer = NoopTracer{}
		return
	}
	globalTracer = t
}

// GetTracer returns the current global tracer, never nil.
func GetTracer() Tracer {
	return globalTracer
}

// Start starts a span on the global tracer.
func Start(ctx context.Context, name string) (context.Context, Span) {
	return globalTracer.Start(ctx, name)
}

// Enabled reports whether spans are recorded anywhere.
func Enabled() bool {
	_, noop := globalTracer.(NoopTracer)
	return !noop
}

// Run wraps fn in a span carrying attrs. A failure marks the span failed and
// records the integrity error category as "playbook_integrity.error".
func Run(ctx context.Context, name string, attrs map[string]interface{}, fn func(context.Context) error) error {
	if !Enabled() {
		return fn(ctx)
	}
	ctx, span := globalTracer.Start(ctx, name)
	defer span.End()
	for k, v := range attrs {
		span.SetAttribute(k, v)
	}
	err := fn(ctx)
	if err != nil {
		span.SetAttribute("playbook_integrity.error", integrity.TypeOf(err).String())
		span.Fail(err)
	}
	return err
}
