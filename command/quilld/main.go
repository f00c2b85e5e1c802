// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/logger"
	"github.com/urfave/cli"

	"github.com/quillchain/quilld/blockstore"
	"github.com/quillchain/quilld/version"
)

func main() {
	// ensure exit handler is first
	defer exitwithstatus.Handler()

	app := cli.NewApp()
	app.Name = "quilld"
	app.Usage = "block storage daemon"
	app.Version = version.Version

	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config-file, c",
			Value: "",
			Usage: "*configuration `FILE`",
		},
		cli.StringFlag{
			Name:  "chain, n",
			Value: "",
			Usage: " override the configured `CHAIN` [quill|testnet|regtest]",
		},
		cli.StringFlag{
			Name:  "blocksdir, b",
			Value: "",
			Usage: " override the block files `DIRECTORY`, must already exist",
		},
	}
	app.Action = runDaemon

	err := app.Run(os.Args)
	if nil != err {
		exitwithstatus.Message("%s: error: %s", app.Name, err)
	}
}

func runDaemon(c *cli.Context) error {

	configurationFile := c.GlobalString("config-file")
	if "" == configurationFile {
		exitwithstatus.Message("%s: config-file option is required", c.App.Name)
	}

	theConfiguration, err := getConfiguration(configurationFile)
	if nil != err {
		exitwithstatus.Message("%s: failed to read configuration from: %q  error: %s", c.App.Name, configurationFile, err)
	}

	// command line overrides
	if chainName := c.GlobalString("chain"); "" != chainName {
		theConfiguration.Chain = chainName
	}
	if blocksDir := c.GlobalString("blocksdir"); "" != blocksDir {
		theConfiguration.BlocksDirectory = blocksDir
	}

	// start logging
	if err = logger.Initialise(theConfiguration.Logging); nil != err {
		exitwithstatus.Message("%s: logger setup failed with error: %s", c.App.Name, err)
	}
	defer logger.Finalise()

	log := logger.New("main")
	defer log.Info("finished")
	log.Info("starting…")
	log.Infof("version: %s", version.Version)
	log.Debugf("theConfiguration: %v", theConfiguration)

	// optional PID file
	// use if not running under a supervisor program like daemon(8)
	if "" != theConfiguration.PidFile {
		lockFile, err := os.OpenFile(theConfiguration.PidFile, os.O_WRONLY|os.O_EXCL|os.O_CREATE, os.ModeExclusive|0600)
		if nil != err {
			if os.IsExist(err) {
				exitwithstatus.Message("%s: another instance is already running", c.App.Name)
			}
			exitwithstatus.Message("%s: PID file: %q creation failed, error: %s", c.App.Name, theConfiguration.PidFile, err)
		}
		fmt.Fprintf(lockFile, "%d\n", os.Getpid())
		lockFile.Close()
		defer os.Remove(theConfiguration.PidFile)
	}

	store, err := blockstore.Initialise(blockstore.Config{
		DataDirectory:    theConfiguration.DataDirectory,
		BlocksDirectory:  theConfiguration.BlocksDirectory,
		Chain:            theConfiguration.Chain,
		MaxBlockFileSize: uint32(theConfiguration.MaxBlockFileSize),
		SyncWrites:       theConfiguration.SyncWrites,
	})
	if nil != err {
		log.Criticalf("block storage initialise error: %s", err)
		exitwithstatus.Message("%s: block storage initialise error: %s", c.App.Name, err)
	}
	defer store.Close()

	log.Infof("block files: %s", store.BlocksPath())
	log.Infof("block index: %s", store.IndexPath())

	// wait for CTRL-C or signal
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	sig := <-ch
	log.Infof("received signal: %v", sig)
	log.Info("shutting down…")

	return nil
}
