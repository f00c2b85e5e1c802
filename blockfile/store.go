// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockfile

import (
	"container/list"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/quillchain/quilld/fault"
)

const (
	// file names are five zero-padded digits: blk00000.dat upward;
	// numbers are never reused within a chain subdirectory
	fileNameTemplate = "blk%05d.dat"

	// maximum number of read-only file handles kept open; the
	// current write file is extra
	maxOpenFiles = 25

	// bytes added around every payload:
	// 4 magic + 4 length before, 4 checksum after
	frameOverhead = 12
)

// castagnoli houses the polynomial used for the record checksums
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// byteOrder of the frame fields
var byteOrder = binary.LittleEndian

// filer is the subset of *os.File used by the store, split out so
// corruption and full-disk conditions can be simulated in tests
type filer interface {
	io.Closer
	io.WriterAt
	io.ReaderAt
	Truncate(size int64) error
	Sync() error
}

// a flat file opened for read or read/write access; the lock keeps
// the file from being closed under a concurrent reader
type lockableFile struct {
	sync.RWMutex
	file filer
}

// the current append position
type writeCursor struct {
	sync.RWMutex

	curFile    *lockableFile
	curFileNum uint32
	curOffset  uint32
}

// Store - an open flat file sequence for one chain subdirectory
//
// a single writer must be enforced by the caller; any number of
// concurrent readers are allowed and share a bounded LRU cache of
// read-only handles
type Store struct {
	path        string
	magic       uint32
	maxFileSize uint32
	syncWrites  bool
	log         *logger.L

	// obfMutex protects openFiles; lruMutex protects the LRU list
	// and lookup map; lock order: obfMutex, lruMutex, writeCursor,
	// individual file locks
	obfMutex         sync.RWMutex
	lruMutex         sync.Mutex
	openFilesLRU     *list.List // uint32 file numbers
	fileNumToLRUElem map[uint32]*list.Element
	openFiles        map[uint32]*lockableFile

	writeCursor *writeCursor

	// replaced by tests to simulate file system failures
	openFileFunc      func(fileNum uint32) (*lockableFile, error)
	openWriteFileFunc func(fileNum uint32) (filer, error)
	deleteFileFunc    func(fileNum uint32) error
}

// FilePath - the full path of a numbered block file
func FilePath(directory string, fileNumber uint32) string {
	return filepath.Join(directory, fmt.Sprintf(fileNameTemplate, fileNumber))
}

// scan the directory for the last block file and its length; returns
// -1 when no block file exists
func scanFiles(directory string) (int, uint32) {
	lastFile := -1
	fileLength := uint32(0)
	for i := 0; ; i += 1 {
		st, err := os.Stat(FilePath(directory, uint32(i)))
		if nil != err {
			break
		}
		lastFile = i
		fileLength = uint32(st.Size())
	}
	return lastFile, fileLength
}

// OpenStore - open the flat file sequence in a directory
//
// positions the write cursor at the end of the highest numbered file
// found on disk; the directory must already exist
func OpenStore(directory string, magic uint32, maxFileSize uint32, syncWrites bool, log *logger.L) (*Store, error) {
	if nil == log {
		return nil, fault.ErrInvalidLoggerChannel
	}

	if info, err := os.Stat(directory); nil != err {
		return nil, err
	} else if !info.IsDir() {
		return nil, fault.ErrNotADirectory
	}

	fileNum, fileOff := scanFiles(directory)
	if -1 == fileNum {
		fileNum = 0
		fileOff = 0
	}
	log.Infof("write cursor from disk: file: %d  offset: %d", fileNum, fileOff)

	s := &Store{
		path:             directory,
		magic:            magic,
		maxFileSize:      maxFileSize,
		syncWrites:       syncWrites,
		log:              log,
		openFilesLRU:     list.New(),
		fileNumToLRUElem: make(map[uint32]*list.Element),
		openFiles:        make(map[uint32]*lockableFile),
		writeCursor: &writeCursor{
			curFile:    &lockableFile{},
			curFileNum: uint32(fileNum),
			curOffset:  fileOff,
		},
	}
	s.openFileFunc = s.openFile
	s.openWriteFileFunc = s.openWriteFile
	s.deleteFileFunc = s.deleteFile
	return s, nil
}

// WriteCursor - the on-disk append position
func (s *Store) WriteCursor() (fileNumber uint32, offset uint32) {
	wc := s.writeCursor
	wc.RLock()
	defer wc.RUnlock()
	return wc.curFileNum, wc.curOffset
}

// open the numbered file read/write for appending; not tracked by
// the LRU cache
func (s *Store) openWriteFile(fileNum uint32) (filer, error) {
	filePath := FilePath(s.path, fileNum)
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0o600)
	if nil != err {
		return nil, fault.ResourceError(fmt.Sprintf("failed to open file %q: %s", filePath, err))
	}
	return file, nil
}

// open a read-only handle, evicting the least recently used handle
// when over the limit
//
// must be called with obfMutex locked for writes
func (s *Store) openFile(fileNum uint32) (*lockableFile, error) {
	file, err := os.Open(FilePath(s.path, fileNum))
	if nil != err {
		return nil, fault.ResourceError(fmt.Sprintf("failed to open file %q: %s", FilePath(s.path, fileNum), err))
	}
	blockFile := &lockableFile{file: file}

	s.lruMutex.Lock()
	lruList := s.openFilesLRU
	if lruList.Len() >= maxOpenFiles {
		lruFileNum := lruList.Remove(lruList.Back()).(uint32)
		oldFile := s.openFiles[lruFileNum]

		// close under the file write lock so it is not pulled out
		// from under a current reader
		oldFile.Lock()
		_ = oldFile.file.Close()
		oldFile.Unlock()

		delete(s.openFiles, lruFileNum)
		delete(s.fileNumToLRUElem, lruFileNum)
	}
	s.fileNumToLRUElem[fileNum] = lruList.PushFront(fileNum)
	s.lruMutex.Unlock()

	s.openFiles[fileNum] = blockFile
	return blockFile, nil
}

// deleteFile removes the numbered block file; the file must already
// be closed
func (s *Store) deleteFile(fileNum uint32) error {
	if err := os.Remove(FilePath(s.path, fileNum)); nil != err {
		return fault.ResourceError(fmt.Sprintf("failed to remove file %q: %s", FilePath(s.path, fileNum), err))
	}
	return nil
}

// blockFile returns a handle for the numbered file, read locked; the
// caller MUST RUnlock it when finished reading
func (s *Store) blockFile(fileNum uint32) (*lockableFile, error) {
	// the current write file can be read directly
	wc := s.writeCursor
	wc.RLock()
	if fileNum == wc.curFileNum && nil != wc.curFile.file {
		obf := wc.curFile
		obf.RLock()
		wc.RUnlock()
		return obf, nil
	}
	wc.RUnlock()

	// already open?
	s.obfMutex.RLock()
	if obf, ok := s.openFiles[fileNum]; ok {
		s.lruMutex.Lock()
		s.openFilesLRU.MoveToFront(s.fileNumToLRUElem[fileNum])
		s.lruMutex.Unlock()

		obf.RLock()
		s.obfMutex.RUnlock()
		return obf, nil
	}
	s.obfMutex.RUnlock()

	// re-check under write lock in case another reader just opened it
	s.obfMutex.Lock()
	if obf, ok := s.openFiles[fileNum]; ok {
		obf.RLock()
		s.obfMutex.Unlock()
		return obf, nil
	}

	obf, err := s.openFileFunc(fileNum)
	if nil != err {
		s.obfMutex.Unlock()
		return nil, err
	}
	obf.RLock()
	s.obfMutex.Unlock()
	return obf, nil
}

// write data at the current cursor offset advancing the cursor by
// the number of bytes actually written
//
// must only be called by the single writer with the cursor file lock
// held and the cursor file non-nil
func (s *Store) writeData(data []byte, fieldName string) error {
	wc := s.writeCursor
	n, err := wc.curFile.file.WriteAt(data, int64(wc.curOffset))
	wc.curOffset += uint32(n)
	if nil != err {
		return fault.ResourceError(fmt.Sprintf("failed to write %s to file %d at offset %d: %s",
			fieldName, wc.curFileNum, wc.curOffset-uint32(n), err))
	}
	return nil
}

// Append - add one record to the tail file, rotating first if the
// frame would push the file over the size ceiling
//
// the returned location is durable: the data has been flushed (and
// synced, when the store was opened with syncWrites or a file was
// finalized) before return; on a write failure the cursor still
// advances over the partial bytes so recovery can truncate them
//
// the caller must serialise calls to Append
func (s *Store) Append(payload []byte) (Location, error) {
	payloadLen := uint32(len(payload))
	fullLen := payloadLen + frameOverhead
	if fullLen > s.maxFileSize {
		return Location{}, fault.ErrRecordTooLarge
	}

	// rotate when the frame would not fit; the finalized file is
	// synced so its contents stay recoverable without any further
	// writes to it
	wc := s.writeCursor
	finalOffset := wc.curOffset + fullLen
	if finalOffset < wc.curOffset || finalOffset > s.maxFileSize {
		wc.Lock()
		wc.curFile.Lock()
		if nil != wc.curFile.file {
			err := wc.curFile.file.Sync()
			if nil == err {
				err = wc.curFile.file.Close()
			}
			wc.curFile.file = nil
			if nil != err {
				wc.curFile.Unlock()
				wc.Unlock()
				return Location{}, fault.ResourceError(fmt.Sprintf("failed to finalize file %d: %s", wc.curFileNum, err))
			}
		}
		wc.curFile.Unlock()

		s.log.Debugf("rotating to file: %d", wc.curFileNum+1)
		wc.curFileNum += 1
		wc.curOffset = 0
		wc.Unlock()
	}

	// writes are done under the file write lock to block readers of
	// the same file
	wc.curFile.Lock()
	defer wc.curFile.Unlock()

	if nil == wc.curFile.file {
		file, err := s.openWriteFileFunc(wc.curFileNum)
		if nil != err {
			return Location{}, err
		}
		wc.curFile.file = file
	}

	origOffset := wc.curOffset
	hasher := crc32.New(castagnoli)
	var scratch [4]byte

	byteOrder.PutUint32(scratch[:], s.magic)
	if err := s.writeData(scratch[:], "magic"); nil != err {
		return Location{}, err
	}
	_, _ = hasher.Write(scratch[:])

	byteOrder.PutUint32(scratch[:], payloadLen)
	if err := s.writeData(scratch[:], "payload length"); nil != err {
		return Location{}, err
	}
	_, _ = hasher.Write(scratch[:])

	if err := s.writeData(payload, "payload"); nil != err {
		return Location{}, err
	}
	_, _ = hasher.Write(payload)

	if err := s.writeData(hasher.Sum(nil), "checksum"); nil != err {
		return Location{}, err
	}

	if s.syncWrites {
		if err := wc.curFile.file.Sync(); nil != err {
			return Location{}, fault.ResourceError(fmt.Sprintf("failed to sync file %d: %s", wc.curFileNum, err))
		}
	}

	return Location{
		FileNumber: wc.curFileNum,
		Offset:     origOffset,
		Length:     payloadLen,
	}, nil
}

// Read - return the payload stored at a location
//
// verifies the frame checksum and the chain magic; fails with a
// corruption error when the file is shorter than the frame demands
func (s *Store) Read(loc Location) ([]byte, error) {
	blockFile, err := s.blockFile(loc.FileNumber)
	if nil != err {
		return nil, err
	}

	frame := make([]byte, loc.Length+frameOverhead)
	n, err := blockFile.file.ReadAt(frame, int64(loc.Offset))
	blockFile.RUnlock()
	if nil != err {
		if io.EOF == err || io.ErrUnexpectedEOF == err {
			return nil, fault.ErrBlockFileTooShort
		}
		return nil, fault.ResourceError(fmt.Sprintf("failed to read file %d at offset %d: %s", loc.FileNumber, loc.Offset, err))
	}

	serializedChecksum := binary.BigEndian.Uint32(frame[n-4:])
	calculatedChecksum := crc32.Checksum(frame[:n-4], castagnoli)
	if serializedChecksum != calculatedChecksum {
		s.log.Errorf("checksum mismatch: file: %d  offset: %d  got: %08x  want: %08x",
			loc.FileNumber, loc.Offset, calculatedChecksum, serializedChecksum)
		return nil, fault.ErrBlockFileChecksum
	}

	serializedMagic := byteOrder.Uint32(frame[0:4])
	if serializedMagic != s.magic {
		s.log.Errorf("magic mismatch: file: %d  got: %08x  want: %08x",
			loc.FileNumber, serializedMagic, s.magic)
		return nil, fault.ErrWrongNetworkMagic
	}

	// payload excludes magic, length and checksum
	return frame[8 : n-4], nil
}

// Sync - force the current write file to stable storage
//
// safe to call when nothing has been written yet
func (s *Store) Sync() error {
	wc := s.writeCursor
	wc.RLock()
	defer wc.RUnlock()

	wc.curFile.RLock()
	defer wc.curFile.RUnlock()
	if nil == wc.curFile.file {
		return nil
	}

	if err := wc.curFile.file.Sync(); nil != err {
		return fault.ResourceError(fmt.Sprintf("failed to sync file %d: %s", wc.curFileNum, err))
	}
	return nil
}

// TruncateTo - cut the flat files back to an exact position
//
// used by startup recovery to drop bytes that were written but never
// indexed: files after the target are deleted, the target file is
// truncated to the target offset and synced, and the write cursor is
// repositioned; indexed data is never touched because the target is
// always the last committed cursor
func (s *Store) TruncateTo(fileNumber uint32, offset uint32) error {
	wc := s.writeCursor
	wc.Lock()
	defer wc.Unlock()

	if wc.curFileNum == fileNumber && wc.curOffset == offset {
		return nil
	}

	s.log.Warnf("truncating to file: %d  offset: %d (was file: %d  offset: %d)",
		fileNumber, offset, wc.curFileNum, wc.curOffset)

	// close the current write file before deleting anything newer
	// than the target
	wc.curFile.Lock()
	if nil != wc.curFile.file {
		_ = wc.curFile.file.Close()
		wc.curFile.file = nil
	}
	wc.curFile.Unlock()

	for ; wc.curFileNum > fileNumber; wc.curFileNum -= 1 {
		if err := s.deleteFileFunc(wc.curFileNum); nil != err {
			return err
		}
	}
	wc.curFileNum = fileNumber

	wc.curFile.Lock()
	defer wc.curFile.Unlock()

	file, err := s.openWriteFileFunc(wc.curFileNum)
	if nil != err {
		return err
	}
	wc.curFile.file = file

	if err := file.Truncate(int64(offset)); nil != err {
		return fault.ResourceError(fmt.Sprintf("failed to truncate file %d: %s", wc.curFileNum, err))
	}
	if err := file.Sync(); nil != err {
		return fault.ResourceError(fmt.Sprintf("failed to sync file %d: %s", wc.curFileNum, err))
	}

	wc.curOffset = offset
	return nil
}

// Close - sync the tail file and release every open handle
func (s *Store) Close() error {
	wc := s.writeCursor
	wc.Lock()
	wc.curFile.Lock()
	var err error
	if nil != wc.curFile.file {
		err = wc.curFile.file.Sync()
		if closeErr := wc.curFile.file.Close(); nil == err {
			err = closeErr
		}
		wc.curFile.file = nil
	}
	wc.curFile.Unlock()
	wc.Unlock()

	s.obfMutex.Lock()
	for fileNum, openFile := range s.openFiles {
		openFile.Lock()
		_ = openFile.file.Close()
		openFile.Unlock()
		delete(s.openFiles, fileNum)
	}
	s.lruMutex.Lock()
	s.openFilesLRU.Init()
	s.fileNumToLRUElem = make(map[uint32]*list.Element)
	s.lruMutex.Unlock()
	s.obfMutex.Unlock()

	return err
}
