package model

// Package model defines domain data structures used across the service:
// download jobs, playlist aggregates, track metadata, and status enums.
// Structures are designed for snapshot copies out of the registry and
// explicit state transitions.
