package archive

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEmpty is returned by Latest when a stream has no records yet.
var ErrEmpty = errors.New("archive stream is empty")

// Latest returns the last record written to the current file of a stream.
func Latest(dir, stream string) ([]byte, error) {
	f, err := os.Open(filepath.Join(dir, FileName(stream)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to open stream %s: %w", stream, err)
	}
	defer f.Close()

	var last []byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			last = append(last[:0], line...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", stream, err)
	}
	if last == nil {
		return nil, ErrEmpty
	}
	return last, nil
}
