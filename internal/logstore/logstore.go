// Package logstore implements the Log Store (spec §4.G): per-record
// stdout and stderr append-only files with bounded tail reads. File paths
// are derived from the record id; renaming a record does not rename its
// log files (spec §4.G).
//
// Tail reads use a fixed-size ring buffer over scanned lines — the same
// idiom the teacher uses for `grove daemon logs -n N`
// (cmd/grove/cmd_daemon.go printLastLines), generalized from one daemon
// log file to per-record stdout/stderr files.
package logstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// Store resolves log file paths for records under a single logs directory.
type Store struct {
	dir string
}

// New returns a Store rooted at dir (spec §6 "logs/ (two files per
// record)"). The directory is created if missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Stream selects which of a record's two log files to operate on.
type Stream string

const (
	StreamOut Stream = "out"
	StreamErr Stream = "err"
)

// Path returns the log file path for id's given stream.
func (s *Store) Path(id int, stream Stream) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d-%s.log", id, stream))
}

const defaultTailLines = 15

// Tail returns the last n lines of id's stream (n<=0 defaults to 15, spec
// §6 "default 15"). A missing log file (never launched yet) returns no
// lines and no error.
func (s *Store) Tail(id int, stream Stream, n int) ([]string, error) {
	if n <= 0 {
		n = defaultTailLines
	}
	f, err := os.Open(s.Path(id, stream))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ring := make([]string, n)
	count := 0
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	start := 0
	lines := count
	if count > n {
		start = count % n
		lines = n
	}
	out := make([]string, lines)
	for i := 0; i < lines; i++ {
		out[i] = ring[(start+i)%n]
	}
	return out, nil
}

// Flush truncates both of id's log files (spec §4.G `flush`).
func (s *Store) Flush(id int) error {
	for _, stream := range []Stream{StreamOut, StreamErr} {
		if err := os.Truncate(s.Path(id, stream), 0); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Remove deletes both of id's log files, used when a record is removed.
func (s *Store) Remove(id int) {
	os.Remove(s.Path(id, StreamOut))
	os.Remove(s.Path(id, StreamErr))
}
