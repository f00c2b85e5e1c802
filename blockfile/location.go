// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockfile

import (
	"encoding/binary"

	"github.com/quillchain/quilld/fault"
)

// LocationSize - number of bytes in a serialized location
const LocationSize = 12

// Location - where one block record lives in the flat files
//
// a location is only handed out after the record is recoverable from
// disk, so holding one is a durability promise, not just a coordinate
type Location struct {
	FileNumber uint32 // flat file sequence number
	Offset     uint32 // start of the record frame
	Length     uint32 // payload length, excluding framing
}

// Serialize - pack a location into its index representation
//
// The serialized format is:
//
//	[0:4]  file number (4 bytes)
//	[4:8]  file offset (4 bytes)
//	[8:12] payload length (4 bytes)
func (loc Location) Serialize() []byte {
	var serialized [LocationSize]byte
	binary.BigEndian.PutUint32(serialized[0:4], loc.FileNumber)
	binary.BigEndian.PutUint32(serialized[4:8], loc.Offset)
	binary.BigEndian.PutUint32(serialized[8:12], loc.Length)
	return serialized[:]
}

// DeserializeLocation - unpack an index representation
func DeserializeLocation(serialized []byte) (Location, error) {
	if len(serialized) < LocationSize {
		return Location{}, fault.ErrIndexEntryCorrupt
	}
	return Location{
		FileNumber: binary.BigEndian.Uint32(serialized[0:4]),
		Offset:     binary.BigEndian.Uint32(serialized[4:8]),
		Length:     binary.BigEndian.Uint32(serialized[8:12]),
	}, nil
}
