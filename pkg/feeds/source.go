package feeds

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentstation/enrollsync/pkg/errors"
)

// Dir is a Source backed by a local directory.
type Dir string

// Open implements Source. Directory entries are visited in name order.
func (d Dir) Open(_ context.Context, ext string) (string, io.ReadCloser, error) {
	entries, err := os.ReadDir(string(d))
	if err != nil {
		return "", nil, errors.WrapIO("read directory", string(d), err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !HasExtension(entry.Name(), ext) {
			continue
		}
		path := filepath.Join(string(d), entry.Name())
		f, err := os.Open(path)
		if err != nil {
			return "", nil, errors.WrapIO("open", path, err)
		}
		return path, f, nil
	}

	return "", nil, errors.NewNotFoundError("feed file", filepath.Join(string(d), "*"+ext))
}

func (d Dir) String() string {
	return string(d)
}

// HasExtension reports whether name ends in ext, ignoring case.
func HasExtension(name, ext string) bool {
	if ext == "" {
		return true
	}
	return strings.EqualFold(filepath.Ext(name), ext)
}
