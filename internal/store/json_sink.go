package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gmaps-engine/internal/domain"
)

// JSONSink writes each batch as an indented JSON array under Dir.
type JSONSink struct {
	Dir string
}

func NewJSONSink(dir string) (*JSONSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("json sink dir: %w", err)
	}
	return &JSONSink{Dir: dir}, nil
}

func (s *JSONSink) Name() string { return TypeJSON }

func (s *JSONSink) Save(ctx context.Context, records []domain.Place, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := cleanFilename(filename)
	if err != nil {
		return "", err
	}
	if records == nil {
		records = []domain.Place{}
	}

	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", err
	}
	b = append(b, '\n')

	dst := filepath.Join(s.Dir, name)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return dst, nil
}

func (s *JSONSink) Load(ctx context.Context, filename string) ([]domain.Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := cleanFilename(filename)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var out []domain.Place
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}

// List returns batch filenames in Dir, sorted.
func (s *JSONSink) List() ([]string, error) {
	ents, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}
