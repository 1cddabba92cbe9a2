// Package layout decides where the artifacts of a run live and writes them.
//
// # Naming
//
// A run is identified by a [RunContext]: a base name (the input file name
// without extension) and an output root. Artifacts land in
// root/base/ under canonical names:
//
//	000_cat_view.png … 005_cat_view.png   tiles, in split order
//	cat_views_grid.png                    the composite as returned by the backend
//	cat_views_sheet.png                   optional contact sheet
//	cat_manifest.json                     optional result manifest
//
// # Writing
//
// A [Manager] walks one run through a one-way state machine:
//
//	Init → DirectoryReady → TilesWritten → [GridWritten] → [SheetWritten] → Complete
//
// Every artifact is written to a temporary file in the run directory and
// renamed over its destination, so readers never see a half-written PNG and
// a repeated run replaces earlier files instead of interleaving with them.
// Files left over from an earlier run with the same base name that this run
// did not produce (extra tiles, an old sheet) are removed before Complete.
//
// Any I/O failure moves the manager to a failed state and is returned as a
// STORAGE_ERROR. Files written before the failure are left in place.
package layout
