// Package store records the references of every indexed template so that
// backlinks can be answered without reparsing and unchanged files can be
// skipped on startup.
package store

import "fmt"

var (
	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = fmt.Errorf("record not found")

	// ErrInvalidTransaction is returned when a transaction operation fails
	ErrInvalidTransaction = fmt.Errorf("invalid transaction")
)

// FileRecord is an indexed template. LastModified is in unix nanoseconds.
type FileRecord struct {
	Path         string
	LastModified int64
}

// LinkRecord is one reference of a template. Target is empty when the
// reference did not resolve.
type LinkRecord struct {
	Source    string
	Target    string
	Raw       string
	Kind      string
	PathStart int
	PathEnd   int
}

// Store is the link database.
type Store interface {
	// File operations
	GetFile(path string) (*FileRecord, error)
	AllFiles() ([]FileRecord, error)
	ReplaceFile(file FileRecord, links []LinkRecord) error
	DeleteFile(path string) error

	// Link operations
	GetLinks(source string) ([]LinkRecord, error)
	GetBacklinks(target string) ([]LinkRecord, error)
	UnresolvedSources() ([]string, error)

	// Maintenance
	Clear() error
	Close() error
}
