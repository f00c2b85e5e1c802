// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockstore

import (
	"encoding/binary"

	"github.com/quillchain/quilld/blockdigest"
	"github.com/quillchain/quilld/blockfile"
	"github.com/quillchain/quilld/fault"
)

// BlockMetadata - ancestry data stored with every index entry
type BlockMetadata struct {
	Height        uint64
	PreviousBlock blockdigest.Digest
}

// serialized entry layout:
//
//	[0:12]  location
//	[12:20] height (big endian)
//	[20:52] previous block digest
const entrySize = blockfile.LocationSize + 8 + blockdigest.Length

func serializeEntry(loc blockfile.Location, meta BlockMetadata) []byte {
	entry := make([]byte, 0, entrySize)
	entry = append(entry, loc.Serialize()...)

	var height [8]byte
	binary.BigEndian.PutUint64(height[:], meta.Height)
	entry = append(entry, height[:]...)

	entry = append(entry, meta.PreviousBlock[:]...)
	return entry
}

func deserializeEntry(entry []byte) (blockfile.Location, BlockMetadata, error) {
	if entrySize != len(entry) {
		return blockfile.Location{}, BlockMetadata{}, fault.ErrIndexEntryCorrupt
	}

	loc, err := blockfile.DeserializeLocation(entry[0:blockfile.LocationSize])
	if nil != err {
		return blockfile.Location{}, BlockMetadata{}, err
	}

	meta := BlockMetadata{
		Height: binary.BigEndian.Uint64(entry[blockfile.LocationSize : blockfile.LocationSize+8]),
	}
	copy(meta.PreviousBlock[:], entry[blockfile.LocationSize+8:])

	return loc, meta, nil
}
