// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	ProcessIDKey       = "process.id"
	ProcessCategoryKey = "process.category"
	ProcessRunKey      = "process.run"
	ProcessStatusKey   = "process.status"

	CaptureIDKey       = "capture.id"
	CaptureArtifactKey = "capture.artifact"
	CaptureCachedKey   = "capture.cached"

	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
)

// ProcessAttributes creates span attributes for one process run.
func ProcessAttributes(id, category string, run int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ProcessIDKey, id),
		attribute.String(ProcessCategoryKey, category),
		attribute.Int(ProcessRunKey, run),
	}
}

// CaptureAttributes creates span attributes for a derived capture artifact.
func CaptureAttributes(id, artifact string, cached bool) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if id != "" {
		attrs = append(attrs, attribute.String(CaptureIDKey, id))
	}
	if artifact != "" {
		attrs = append(attrs, attribute.String(CaptureArtifactKey, artifact))
	}
	attrs = append(attrs, attribute.Bool(CaptureCachedKey, cached))
	return attrs
}

// HTTPAttributes creates span attributes for a served request.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}
