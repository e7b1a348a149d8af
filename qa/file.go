package qa

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ReadFile loads the items of one document.
func ReadFile(path string) ([]*Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []*Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return items, nil
}

// WriteFile stores the items of one document as a JSON array, writing to a
// temporary name and renaming it into place.
func WriteFile(path string, items []*Item) error {
	data, err := FormatJSON(items)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
