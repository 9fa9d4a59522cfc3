package storage

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Stdio is the path that stands for stdin when reading and stdout when
// writing.
const Stdio = "-"

type Storage struct {
	Stdin  io.Reader
	Stdout io.Writer
}

// FileStats holds metadata about a file without reading its contents.
type FileStats struct {
	SizeBytes int64
	ModTime   time.Time
}

// SaveFile writes content to filePath. An empty path or "-" writes to
// stdout.
func (s *Storage) SaveFile(filePath string, content []byte) error {
	if filePath == "" || filePath == Stdio {
		if _, err := s.stdout().Write(content); err != nil {
			return fmt.Errorf("error writing output: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("error saving file: %w", err)
	}
	return nil
}

// ReadFile reads filePath, or stdin for "-".
func (s *Storage) ReadFile(filePath string) ([]byte, error) {
	if filePath == Stdio {
		data, err := io.ReadAll(s.stdin())
		if err != nil {
			return nil, fmt.Errorf("error reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return data, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

func (s *Storage) HasFile(fn string) bool {
	if fn == Stdio {
		return true
	}
	return fileExists(fn)
}

// GetFileStats returns metadata about a file using os.Stat (no I/O overhead).
func (s *Storage) GetFileStats(filePath string) (*FileStats, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("error getting file stats: %w", err)
	}

	return &FileStats{
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}, nil
}

func (s *Storage) stdin() io.Reader {
	if s.Stdin != nil {
		return s.Stdin
	}
	return os.Stdin
}

func (s *Storage) stdout() io.Writer {
	if s.Stdout != nil {
		return s.Stdout
	}
	return os.Stdout
}
