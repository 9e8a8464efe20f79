package backup

import (
	"compress/gzip"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// Target receives exported document states. LocalTarget writes them to
// a directory; tests substitute their own.
type Target interface {
	Write(documentID string, state []byte) error
	Close() error
}

// LocalTarget stores each document as a gzip compressed state file
// named after the escaped document id.
type LocalTarget struct {
	dir string
}

func NewLocalTarget(dir string) (*LocalTarget, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &LocalTarget{dir: dir}, nil
}

func (t *LocalTarget) Write(documentID string, state []byte) error {
	path := filepath.Join(t.dir, url.PathEscape(documentID)+".json.gz")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(state); err != nil {
		f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (t *LocalTarget) Close() error {
	return nil
}
