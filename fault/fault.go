// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// error instances
//
// Provides a single instance of errors to allow easy comparison
package fault

// error base
type GenericError string

// to allow for different classes of errors
type ConfigurationError GenericError
type CorruptionError GenericError
type InvariantViolation GenericError
type NotFoundError GenericError
type ResourceError GenericError

// common errors - keep in alphabetic order
var (
	ErrAlreadyInitialised       = InvariantViolation("already initialised")
	ErrBlockFileChecksum        = CorruptionError("block record checksum mismatch")
	ErrBlockFileTooShort        = CorruptionError("block file is shorter than indexed data")
	ErrBlockNotFound            = NotFoundError("block not found")
	ErrBlocksDirectoryMissing   = ConfigurationError("specified blocks directory does not exist")
	ErrCursorCorrupt            = CorruptionError("write cursor metadata is corrupt")
	ErrDataDirectoryMissing     = ConfigurationError("data directory does not exist")
	ErrDataDirectoryNotWritable = ConfigurationError("data directory is not writable")
	ErrIndexEntryConflict       = InvariantViolation("conflicting index entry for block digest")
	ErrIndexEntryCorrupt        = CorruptionError("index entry is corrupt")
	ErrIndexVersionTooNew       = ConfigurationError("index database version is newer than this program")
	ErrInvalidChain             = ConfigurationError("invalid chain name")
	ErrInvalidCount             = InvariantViolation("invalid count")
	ErrInvalidDigestLength      = InvariantViolation("digest length is invalid")
	ErrInvalidCursor            = InvariantViolation("invalid cursor")
	ErrInvalidLoggerChannel     = ConfigurationError("invalid logger channel")
	ErrNotADirectory            = ConfigurationError("path is not a directory")
	ErrNotInitialised           = InvariantViolation("not initialised")
	ErrRecordTooLarge           = InvariantViolation("record exceeds maximum block file size")
	ErrWrongNetworkMagic        = CorruptionError("block record has wrong network magic")
)

// the error interface base method
func (e GenericError) Error() string { return string(e) }

// the error interface methods
func (e ConfigurationError) Error() string { return string(e) }
func (e CorruptionError) Error() string    { return string(e) }
func (e InvariantViolation) Error() string { return string(e) }
func (e NotFoundError) Error() string      { return string(e) }
func (e ResourceError) Error() string      { return string(e) }

// determine the class of an error
func IsErrConfiguration(e error) bool { _, ok := e.(ConfigurationError); return ok }
func IsErrCorruption(e error) bool    { _, ok := e.(CorruptionError); return ok }
func IsErrInvariant(e error) bool     { _, ok := e.(InvariantViolation); return ok }
func IsErrNotFound(e error) bool      { _, ok := e.(NotFoundError); return ok }
func IsErrResource(e error) bool      { _, ok := e.(ResourceError); return ok }
