// Package models provides data model definitions for the QuartzCRM record
// locking engine.
package models

// UUID is a string-typed UUID v4 identifier.
type UUID string
