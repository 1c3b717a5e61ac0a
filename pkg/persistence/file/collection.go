package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var errInvalidID = errors.New("id contains invalid characters")

// collection stores one JSON document per file under dir.
type collection[T any] struct {
	dir string
}

func newCollection[T any](root, name string) collection[T] {
	return collection[T]{dir: filepath.Join(root, name)}
}

func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errInvalidID
	}

	return nil
}

func (c collection[T]) path(id string) (string, error) {
	err := validateID(id)
	if err != nil {
		return "", err
	}

	return filepath.Join(c.dir, id+".json"), nil
}

// read returns fs.ErrNotExist when the document is missing.
func (c collection[T]) read(id string) (*T, error) {
	filePath, err := c.path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath) // #nosec G304 -- id is validated against path traversal
	if err != nil {
		return nil, err
	}

	var doc T

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", filePath, err)
	}

	return &doc, nil
}

func (c collection[T]) exists(id string) bool {
	filePath, err := c.path(id)
	if err != nil {
		return false
	}

	_, err = os.Stat(filePath)

	return err == nil
}

// write replaces the document atomically through a rename.
func (c collection[T]) write(id string, doc *T) error {
	filePath, err := c.path(id)
	if err != nil {
		return err
	}

	err = os.MkdirAll(c.dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.dir, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp := filePath + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return os.Rename(tmp, filePath)
}

func (c collection[T]) all() ([]*T, error) {
	files, err := fs.Glob(os.DirFS(c.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.dir, err)
	}

	docs := make([]*T, 0, len(files))

	for _, file := range files {
		doc, err := c.read(strings.TrimSuffix(file, ".json"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func (c collection[T]) filter(match func(*T) bool) ([]*T, error) {
	docs, err := c.all()
	if err != nil {
		return nil, err
	}

	matched := docs[:0]

	for _, doc := range docs {
		if match(doc) {
			matched = append(matched, doc)
		}
	}

	return matched, nil
}
