package filelock

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
)

// The holder writes its pid as a little endian uint32 at offset 0 of the lock file.
const pidSize = 4

// readPID reads the stored pid. found is false if the file is too short to hold one.
func readPID(r io.ReaderAt) (pid int, found bool, err error) {
	var buf [pidSize]byte
	n, err := r.ReadAt(buf[:], 0)
	if n < pidSize {
		if err == nil || errors.Is(err, io.EOF) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return int(binary.LittleEndian.Uint32(buf[:])), true, nil
}

// persistPID is the pid writer used while locking, replaceable in tests
var persistPID = writePID

// writePID overwrites the pid at offset 0 and flushes it to disk.
func writePID(f *os.File, pid int) error {
	var buf [pidSize]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(pid))
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return err
	}
	return f.Sync()
}

// peekPID returns the pid stored in the lock file at path, or 0.
// It is only used to decorate error messages, so all errors are swallowed.
func peekPID(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	pid, found, err := readPID(f)
	if err != nil || !found {
		return 0
	}
	return pid
}
