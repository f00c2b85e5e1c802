// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockstore

import (
	"github.com/quillchain/quilld/fault"
)

// recover - the every-run consistency pass
//
// the committed write cursor in the index is the authority for how
// much flat file data is real; disk ahead of the cursor is the
// expected remnant of a torn write and is silently truncated away,
// disk behind the cursor means indexed blocks are gone and the engine
// must not start
func (s *Store) recover() error {
	expectedFile, expectedOffset, committed, err := s.pools.GetCursor()
	if nil != err {
		return err
	}
	if !committed {
		// fresh index: any flat file content is unindexed
		expectedFile = 0
		expectedOffset = 0
	}

	diskFile, diskOffset := s.files.WriteCursor()

	switch {
	case diskFile == expectedFile && diskOffset == expectedOffset:
		// clean shutdown
		return nil

	case diskFile > expectedFile || (diskFile == expectedFile && diskOffset > expectedOffset):
		// torn write: prefer losing an unindexed partial write over
		// trusting bytes no index entry vouches for
		s.log.Warnf("unindexed tail: disk: %d/%d  committed: %d/%d",
			diskFile, diskOffset, expectedFile, expectedOffset)
		return s.files.TruncateTo(expectedFile, expectedOffset)

	default:
		// the index vouches for data the disk no longer has
		s.log.Criticalf("flat files behind index: disk: %d/%d  committed: %d/%d",
			diskFile, diskOffset, expectedFile, expectedOffset)
		return fault.ErrBlockFileTooShort
	}
}
