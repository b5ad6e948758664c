// Package directory maps decoded company ids to their reporting addresses.
// It is loaded once at startup and never written afterwards.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// Unknown is returned for companies with no directory entry.
const Unknown = "N/A"

// Directory is an immutable company id → sender address map.
type Directory struct {
	entries map[string]string
}

// New builds a directory from a map. The map is copied.
func New(entries map[string]string) *Directory {
	d := &Directory{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		d.entries[k] = v
	}
	return d
}

// Empty returns a directory with no entries.
func Empty() *Directory {
	return New(nil)
}

// Load reads a JSON or YAML (by extension) object of id → address. A missing
// or empty path yields an empty directory together with an error wrapping
// domain.ErrDirectoryLoad, which callers treat as a warning. A file that
// exists but cannot be parsed is a hard error.
func Load(path string) (*Directory, error) {
	if path == "" {
		return Empty(), fmt.Errorf("%w: no directory file configured", domain.ErrDirectoryLoad)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Empty(), fmt.Errorf("%w: %s not found", domain.ErrDirectoryLoad, path)
		}
		return nil, fmt.Errorf("Load: reading %s: %w", path, err)
	}

	entries := map[string]string{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &entries)
	default:
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("Load: parsing %s: %w", path, err)
	}
	return New(entries), nil
}

// Lookup returns the address for companyID, or Unknown.
func (d *Directory) Lookup(companyID string) string {
	if d == nil {
		return Unknown
	}
	if addr, ok := d.entries[companyID]; ok && addr != "" {
		return addr
	}
	return Unknown
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}
