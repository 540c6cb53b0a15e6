// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ondisk

import (
	"os"
	"sync/atomic"

	"github.com/Fantom-foundation/pagestore/common"
	"golang.org/x/sys/unix"
)

// ErrMaxMapCountReached is returned when mapping a file would exceed MaxMapCount.
const ErrMaxMapCountReached = common.ConstError("maximum map count reached")

// MaxMapCount limits the number of simultaneously active mappings created by
// this package. It defaults to slightly less than the typical Linux default
// of 65K to leave some headroom for the Go runtime.
var MaxMapCount uint64 = 60000

var mapCount uint64

// mapFile maps the first length bytes of the given file into memory. The
// mapping is shared, so modifications become visible in the file.
func mapFile(file *os.File, length int, writable bool) ([]byte, error) {
	if newCount := atomic.AddUint64(&mapCount, 1); newCount > MaxMapCount {
		atomic.AddUint64(&mapCount, ^uint64(0))
		return nil, ErrMaxMapCountReached
	}
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(file.Fd()), 0, length, prot, unix.MAP_SHARED)
	if err != nil {
		atomic.AddUint64(&mapCount, ^uint64(0))
		return nil, err
	}
	return data, nil
}

// unmapFile releases a mapping obtained from mapFile.
func unmapFile(data []byte) error {
	if data == nil {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return err
	}
	atomic.AddUint64(&mapCount, ^uint64(0))
	return nil
}

// syncMapping flushes modifications of a writable mapping to the file.
func syncMapping(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Msync(data, unix.MS_SYNC)
}

// activeMappings returns the number of mappings currently held by this package.
func activeMappings() uint64 {
	return atomic.LoadUint64(&mapCount)
}
