// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when a lock is already held by another owner.
const ErrLocked = ConstError("file is locked by another owner")

// LockFile is an inter-process synchronization primitive facilitating mutual
// exclusion of writers on a shared file. The lock is an advisory lock on the
// file itself; it is released explicitly or when the owning process exits.
type LockFile interface {
	// Release gives up the exclusive ownership provided by a valid
	// instance of this type. Each lock may only be released once.
	// Subsequent calls produce errors.
	Release() error
	// Valid checks whether this lock still owns the underlying resource
	// or whether it has already been released.
	Valid() bool
}

type lockFile struct {
	lock *flock.Flock
}

// AcquireLockFile obtains an exclusive advisory lock on the file with the
// given path without blocking. If the lock is held by another owner, in this
// or any other process, ErrLocked is returned. The file is created if it
// does not exist and is not removed when the lock is released.
func AcquireLockFile(path string) (LockFile, error) {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire file lock on %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to acquire file lock on %s: %w", path, ErrLocked)
	}
	return &lockFile{lock: lock}, nil
}

func (f *lockFile) Valid() bool {
	return f.lock != nil && f.lock.Locked()
}

func (f *lockFile) Release() error {
	if !f.Valid() {
		return fmt.Errorf("unable to release invalid lock")
	}
	if err := f.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release file lock: %w", err)
	}
	f.lock = nil
	return nil
}
