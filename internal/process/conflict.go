// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package process

// ConflictRules assigns categories to mutually exclusive groups. Two
// processes conflict when their categories share a group. A category
// without a group only conflicts with its own running process.
//
// The rules are advisory: the registry trusts callers to declare the right
// category for the hardware they touch.
type ConflictRules map[Category]string

const (
	GroupCameraThermal  = "camera.thermal"
	GroupCameraExposure = "camera.exposure"
)

// DefaultConflictRules serialises cooler ramps and camera exposures.
func DefaultConflictRules() ConflictRules {
	return ConflictRules{
		CategoryCameraCool: GroupCameraThermal,
		CategoryCameraWarm: GroupCameraThermal,
		CategoryCapture:    GroupCameraExposure,
	}
}

// Conflicts reports whether a and b may not run at the same time.
func (r ConflictRules) Conflicts(a, b Category) bool {
	ga, ok := r[a]
	if !ok {
		return false
	}
	gb, ok := r[b]
	return ok && ga == gb
}

// Group returns the conflict group of c, or "" when c is ungrouped.
func (r ConflictRules) Group(c Category) string {
	return r[c]
}
