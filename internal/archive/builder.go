// Package archive packages a directory of audio artifacts into a single
// zip file at maximum compression.
package archive

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

// ErrArchiveBuild means the archive could not be produced; no partial
// archive file remains on disk
var ErrArchiveBuild = errors.New("archive build failed")

// Builder writes zip archives of playlist output directories
type Builder struct{}

// NewBuilder creates an archive builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build packages every regular file under sourceDir into the zip file at
// outPath, using the highest compression level. On failure the partial
// archive is removed.
func (b *Builder) Build(sourceDir, outPath string) error {
	if err := b.build(sourceDir, outPath); err != nil {
		if rmErr := os.Remove(outPath); rmErr != nil && !os.IsNotExist(rmErr) {
			return errors.Wrapf(ErrArchiveBuild, "%v (partial archive left at %s)", err, outPath)
		}
		return errors.Wrapf(ErrArchiveBuild, "%v", err)
	}
	return nil
}

func (b *Builder) build(sourceDir, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(err, "create archive file")
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	err = filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}

		entry, err := zw.Create(filepath.ToSlash(relPath))
		if err != nil {
			return errors.Wrapf(err, "create archive entry %s", relPath)
		}

		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()

		if _, err := io.Copy(entry, f); err != nil {
			return errors.Wrapf(err, "compress %s", relPath)
		}
		return nil
	})
	if err != nil {
		zw.Close()
		return err
	}

	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "finalize archive")
	}
	return out.Sync()
}
