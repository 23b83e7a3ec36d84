package catalog

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"fvrip/internal/services"
)

// Dir serves a book that was mirrored to the local filesystem, laid out the
// same way as the origin's web root (metadata document plus asset hrefs
// relative to it).
type Dir struct {
	root string
	name string
}

// NewDir opens a mirrored book directory. name is the metadata document's
// base name without extension; empty means the single .xml file in the
// directory.
func NewDir(root, name string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "open dir", root, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "open dir", root+": not a directory", nil)
	}
	if name == "" {
		name, err = soleMetadataName(root)
		if err != nil {
			return nil, err
		}
	}
	return &Dir{root: root, name: name}, nil
}

// ID is the cache namespace for the mirrored book.
func (d *Dir) ID() string {
	return filepath.Base(d.root) + "_" + d.name
}

// FetchMetadata reads the package document.
func (d *Dir) FetchMetadata(_ context.Context) ([]byte, error) {
	return d.read(d.name + ".xml")
}

// FetchAsset reads raw bytes for an href relative to the book root.
func (d *Dir) FetchAsset(_ context.Context, href string) ([]byte, error) {
	return d.read(href)
}

func (d *Dir) read(rel string) ([]byte, error) {
	rel = filepath.FromSlash(strings.TrimPrefix(rel, "/"))
	full := filepath.Join(d.root, rel)
	if !strings.HasPrefix(full, filepath.Clean(d.root)+string(os.PathSeparator)) && full != filepath.Clean(d.root) {
		return nil, services.Wrap(services.ErrFetchFailed, "catalog", "read", rel+": escapes book root", nil)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, services.Wrap(services.ErrFetchFailed, "catalog", "read", full, err)
	}
	return data, nil
}

func soleMetadataName(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "catalog", "scan dir", root, err)
	}
	var found []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xml") {
			continue
		}
		found = append(found, strings.TrimSuffix(entry.Name(), ".xml"))
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", services.Wrap(services.ErrConfiguration, "catalog", "scan dir", root+": no metadata document", fs.ErrNotExist)
	default:
		return "", services.Wrap(services.ErrConfiguration, "catalog", "scan dir",
			root+": multiple metadata documents, pass the name explicitly", nil)
	}
}
