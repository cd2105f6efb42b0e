// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the satfetch pipeline:
// stage configuration (FetchConfig, PrepareConfig), the Property rows read
// from the housing dataset, and the ImageRecord manifest entries written by
// the fetch stage.
package types
