package services

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ZipScaffold packs the scaffold directory into an in-memory zip archive with
// slash-separated paths relative to the scaffold root.
func ZipScaffold(sc *Scaffold) ([]byte, error) {
	if sc == nil || sc.Dir == "" {
		return nil, fmt.Errorf("zip scaffold: empty scaffold")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	err := filepath.WalkDir(sc.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sc.Dir, p)
		if err != nil {
			return err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: filepath.ToSlash(rel), Method: zip.Deflate})
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("zip scaffold: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip scaffold: %w", err)
	}
	return buf.Bytes(), nil
}
