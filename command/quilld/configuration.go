// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"strings"

	"github.com/bitmark-inc/logger"

	"github.com/quillchain/quilld/chain"
	"github.com/quillchain/quilld/configuration"
	"github.com/quillchain/quilld/fault"
	"github.com/quillchain/quilld/util"
)

// basic defaults (directories and files are relative to the
// "DataDirectory" from the configuration file)
const (
	defaultDataDirectory = "" // this will error; use "." for the same directory as the config file

	defaultLogDirectory = "log"
	defaultLogFile      = "quilld.log"
	defaultLogCount     = 10          //  number of log files retained
	defaultLogSize      = 1024 * 1024 // rotate when <logfile> exceeds this size
)

var defaultLogLevels = map[string]string{
	logger.DefaultTag: "critical",
}

// Configuration - the daemon configuration read from the Lua file
type Configuration struct {
	DataDirectory    string               `gluamapper:"data_directory"`
	BlocksDirectory  string               `gluamapper:"blocks_directory"`
	PidFile          string               `gluamapper:"pidfile"`
	Chain            string               `gluamapper:"chain"`
	MaxBlockFileSize int                  `gluamapper:"max_block_file_size"`
	SyncWrites       bool                 `gluamapper:"sync_writes"`
	Logging          logger.Configuration `gluamapper:"logging"`
}

// read, decode and verify the configuration
func getConfiguration(configurationFileName string) (*Configuration, error) {

	configurationFileName, err := filepath.Abs(filepath.Clean(configurationFileName))
	if nil != err {
		return nil, err
	}

	// absolute path to the main directory
	dataDirectory, _ := filepath.Split(configurationFileName)

	options := &Configuration{

		DataDirectory:   defaultDataDirectory,
		BlocksDirectory: "", // block files stay under DataDirectory by default
		PidFile:         "", // no PidFile by default
		Chain:           chain.Quill,
		SyncWrites:      true,

		Logging: logger.Configuration{
			Directory: defaultLogDirectory,
			File:      defaultLogFile,
			Size:      defaultLogSize,
			Count:     defaultLogCount,
			Levels:    defaultLogLevels,
		},
	}

	if err := configuration.ParseConfigurationFile(configurationFileName, options); err != nil {
		return nil, err
	}

	options.Chain = strings.ToLower(options.Chain)
	if !chain.Valid(options.Chain) {
		return nil, fault.ErrInvalidChain
	}

	// ensure absolute data directory
	if "" == options.DataDirectory || "~" == options.DataDirectory {
		return nil, fault.ErrDataDirectoryMissing
	} else if "." == options.DataDirectory {
		options.DataDirectory = dataDirectory // same directory as the configuration file
	}
	options.DataDirectory = filepath.Clean(options.DataDirectory)

	// this directory must exist - i.e. must be created prior to running
	if !util.EnsureFileExists(options.DataDirectory) {
		return nil, fault.ErrDataDirectoryMissing
	}

	// optional relocation of the block files; relative paths hang
	// off the data directory
	if "" != options.BlocksDirectory {
		options.BlocksDirectory = util.EnsureAbsolute(options.DataDirectory, options.BlocksDirectory)
	}

	// optional files and directories are relative to the data directory
	if "" != options.PidFile {
		options.PidFile = util.EnsureAbsolute(options.DataDirectory, options.PidFile)
	}
	options.Logging.Directory = util.EnsureAbsolute(options.DataDirectory, options.Logging.Directory)

	return options, nil
}
