// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain - names of the networks a node can join
//
// Each chain keeps its data in its own subdirectory of the storage
// root so that several network configurations can share one root
// without ever touching each other's files.
package chain

// names of all chains
const (
	Quill   = "quill"
	Testnet = "testnet"
	Regtest = "regtest"
)

// network magic prepended to every block record, one value per chain
// so that a block file copied between namespaces is detected
var magic = map[string]uint32{
	Quill:   0x51554c4c, // "QULL"
	Testnet: 0x5455514c, // "TUQL"
	Regtest: 0x5255514c, // "RUQL"
}

// Valid - validate a chain name
func Valid(name string) bool {
	switch name {
	case Quill, Testnet, Regtest:
		return true
	default:
		return false
	}
}

// Subdirectory - the directory component holding a chain's data
//
// the mapping is simply the chain name itself: injective over the
// valid names and stable across restarts; the empty string return
// marks an invalid chain name
func Subdirectory(name string) string {
	if !Valid(name) {
		return ""
	}
	return name
}

// Magic - the network magic number for a chain
//
// returns zero for an invalid chain name
func Magic(name string) uint32 {
	return magic[name]
}
