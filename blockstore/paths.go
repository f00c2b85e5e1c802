// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockstore

import (
	"os"
	"path/filepath"

	"github.com/quillchain/quilld/fault"
)

// resolveDataRoot - absolute path of the default storage root
//
// the data root belongs to the engine and may be created later, so
// only the path itself is validated here
func resolveDataRoot(dataDirectory string) (string, error) {
	if "" == dataDirectory {
		return "", fault.ErrDataDirectoryMissing
	}
	root, err := filepath.Abs(dataDirectory)
	if nil != err {
		return "", err
	}
	if info, err := os.Stat(root); nil == err && !info.IsDir() {
		return "", fault.ErrNotADirectory
	}
	return root, nil
}

// resolveBlocksRoot - absolute path of the root holding the flat
// block files
//
// with no override the blocks live under the data root; an operator
// supplied override must already exist as a directory - it is never
// created here or anywhere else
func resolveBlocksRoot(blocksDirectory string, dataRoot string) (string, error) {
	if "" == blocksDirectory {
		return dataRoot, nil
	}

	root, err := filepath.Abs(blocksDirectory)
	if nil != err {
		return "", err
	}

	info, err := os.Stat(root)
	if nil != err {
		if os.IsNotExist(err) {
			return "", fault.ErrBlocksDirectoryMissing
		}
		return "", err
	}
	if !info.IsDir() {
		return "", fault.ErrNotADirectory
	}
	return root, nil
}

// create a directory beneath an already validated root, mapping a
// permission refusal to its configuration error
func createUnder(directory string) error {
	err := os.MkdirAll(directory, 0o700)
	if nil != err {
		if os.IsPermission(err) {
			return fault.ErrDataDirectoryNotWritable
		}
		return err
	}
	return nil
}
