// Package hp implements hanging protocol matching for a DICOM viewer:
// given a normalized study/series/instance snapshot and a library of
// declarative protocols, it selects the best-matching protocol, picks a
// stage (layout) by first-fit activation thresholds, and resolves each
// viewport slot to a concrete display set.
//
// The engine is synchronous, side-effect free, and never fails for
// data-shape problems in protocols or metadata; it degrades through a
// fallback chain ending at a locked default protocol.
package hp
