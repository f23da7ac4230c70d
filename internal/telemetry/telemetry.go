//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the shared tracing and metrics constants for the
// meeting pipeline, plus the OTLP collector connection helper.
package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// telemetry service constants.
const (
	ServiceName      = "trpc-council-go"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-go-council"
	InstrumentName   = "trpc.council.go"

	SpanNamePrefixStep = "run_step"
	SpanNameIngest     = "ingest_meeting"
	SpanNameResume     = "resume_session"
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporter.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporter.
	ProtocolHTTP string = "http"
)

// telemetry attribute constants.
var (
	KeySessionID    = "trpc.go.council.session_id"
	KeyInvocationID = "trpc.go.council.invocation_id"
	KeyStep         = "trpc.go.council.step"
	KeyPosition     = "trpc.go.council.position"
	KeyAttempt      = "trpc.go.council.attempt"
	KeyStatus       = "trpc.go.council.status"
	KeyDecision     = "trpc.go.council.decision"
)

// TraceStep annotates a step span with its session and attempt.
func TraceStep(span trace.Span, sessionID, step string, attempt int) {
	span.SetAttributes(
		attribute.String(KeySessionID, sessionID),
		attribute.String(KeyStep, step),
		attribute.Int(KeyAttempt, attempt),
	)
}

// NewConn creates a gRPC connection to the OpenTelemetry Collector.
func NewConn(endpoint string) (*grpc.ClientConn, error) {
	// Note the use of insecure transport here. TLS is recommended in production.
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}
