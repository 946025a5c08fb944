// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package backup

import (
	"errors"
	"fmt"
)

// ErrSnapshotAssembly means a domain-store read failed while building a
// snapshot. Always fatal: no partial snapshot is ever written.
var ErrSnapshotAssembly = errors.New("snapshot assembly failed")

// ErrInvalidSnapshot means a snapshot failed validation before restore.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// ErrNotFound means the requested backup or record does not exist.
var ErrNotFound = errors.New("backup not found")

// ErrNetwork means a remote transport failure, including caller-enforced
// timeouts.
var ErrNetwork = errors.New("network error")

// ErrRemoteRejected means the remote service refused the request (quota,
// auth, malformed key).
var ErrRemoteRejected = errors.New("remote rejected request")

// ErrSafetyPoint means the pre-restore safety snapshot could not be
// created. Restoring without a rollback path is disallowed, so this
// aborts the restore.
var ErrSafetyPoint = errors.New("safety point creation failed")

// ErrOperationInProgress means another backup or restore is already in
// flight. The second request is rejected, not queued.
var ErrOperationInProgress = errors.New("another backup or restore operation is in progress")

// errInvalidSnapshot wraps ErrInvalidSnapshot with a reason.
func errInvalidSnapshot(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidSnapshot, reason)
}

// ImportFormatError means imported data could not be parsed. Line is the
// offending 1-based line number when determinable, 0 otherwise.
type ImportFormatError struct {
	Line   int
	Reason string
}

// Error implements the error interface.
func (e *ImportFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("import format error at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("import format error: %s", e.Reason)
}
