// Package repository implements the persistent-store boundary of the
// allocation engine on MySQL. Every multi-row mutation (hold creation
// with conflict check, assignment commit, release) runs inside a
// single transaction so no partial state is ever observable. Sentinel
// errors let the service layer distinguish failure scenarios without
// inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by the session repository when a
// compare-and-set update matched no row because another actor already
// advanced the selection version.
var ErrVersionConflict = errors.New("version conflict")
