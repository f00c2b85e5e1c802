// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain_test

import (
	"testing"

	"github.com/quillchain/quilld/chain"
)

func TestValid(t *testing.T) {
	valid := []string{chain.Quill, chain.Testnet, chain.Regtest}
	for _, name := range valid {
		if !chain.Valid(name) {
			t.Errorf("valid chain rejected: %q", name)
		}
	}

	invalid := []string{"", "main", "QUILL", "quill ", "regtest/../regtest"}
	for _, name := range invalid {
		if chain.Valid(name) {
			t.Errorf("invalid chain accepted: %q", name)
		}
	}
}

// distinct chains must never collide on a subdirectory and the
// mapping must be stable call to call
func TestSubdirectory(t *testing.T) {
	names := []string{chain.Quill, chain.Testnet, chain.Regtest}

	seen := make(map[string]string)
	for _, name := range names {
		dir := chain.Subdirectory(name)
		if "" == dir {
			t.Fatalf("no subdirectory for valid chain: %q", name)
		}
		if previous, ok := seen[dir]; ok {
			t.Errorf("chains %q and %q collide on subdirectory %q", previous, name, dir)
		}
		seen[dir] = name

		if dir != chain.Subdirectory(name) {
			t.Errorf("unstable subdirectory for chain: %q", name)
		}
	}

	if "" != chain.Subdirectory("no-such-chain") {
		t.Error("invalid chain mapped to a subdirectory")
	}
}

func TestMagic(t *testing.T) {
	names := []string{chain.Quill, chain.Testnet, chain.Regtest}

	seen := make(map[uint32]string)
	for _, name := range names {
		m := chain.Magic(name)
		if 0 == m {
			t.Fatalf("no magic for valid chain: %q", name)
		}
		if previous, ok := seen[m]; ok {
			t.Errorf("chains %q and %q share magic: %08x", previous, name, m)
		}
		seen[m] = name
	}

	if 0 != chain.Magic("no-such-chain") {
		t.Error("invalid chain has a magic number")
	}
}
