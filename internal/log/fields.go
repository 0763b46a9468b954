// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldProcessID = "process_id"
	FieldCaptureID = "capture_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldCategory  = "category"
	FieldRun       = "run"

	// Device fields
	FieldDevice      = "device"
	FieldTemperature = "temperature_c"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)
