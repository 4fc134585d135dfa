package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"gmaps-engine/internal/domain"
)

var ErrNotFound = errors.New("batch not found")

// Sink persists normalized place batches. Save returns a reference (path, URI)
// to the stored batch.
type Sink interface {
	Name() string
	Save(ctx context.Context, records []domain.Place, filename string) (string, error)
	Load(ctx context.Context, filename string) ([]domain.Place, error)
}

const (
	TypeJSON     = "json"
	TypeSQLite   = "sqlite"
	TypeDynamoDB = "dynamodb"
	TypeS3       = "s3"
)

type Options struct {
	Type      string
	OutputDir string

	DynamoTable  string
	DynamoRegion string

	S3Bucket string
	S3Prefix string
	S3Region string
}

// cleanFilename rejects names that would escape the sink's namespace.
func cleanFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty filename")
	}
	if strings.ContainsAny(name, `/\`) || name != path.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid filename %q", name)
	}
	return name, nil
}

// Inventory summarizes what a sink currently holds. Counts are only filled in
// for sinks that can produce them cheaply.
type Inventory struct {
	Type   string `json:"type"`
	Files  *int   `json:"files,omitempty"`
	Places *int   `json:"places,omitempty"`
}

// Describe reports the file count of a JSON sink or the stored place count of a
// SQLite sink. Remote sinks only report their type.
func Describe(ctx context.Context, s Sink) (Inventory, error) {
	inv := Inventory{Type: s.Name()}
	switch v := s.(type) {
	case *JSONSink:
		names, err := v.List()
		if err != nil {
			return inv, err
		}
		n := len(names)
		inv.Files = &n
	case *SQLiteSink:
		n, err := v.CountPlaces(ctx)
		if err != nil {
			return inv, err
		}
		inv.Places = &n
	}
	return inv, nil
}
