package layout

import (
	"bufio"
	"context"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/tiles"
)

const (
	writeBufSize = 64 * 1024
	tempPattern  = ".tmp-*"
)

// chmod is replaced in tests.
var chmod = os.Chmod

// writeAtomic writes the output of encode to dest through a temporary file in
// the same directory followed by a rename. The destination either keeps its
// previous content or holds the complete new content.
func writeAtomic(ctx context.Context, dest string, perm os.FileMode, encode func(io.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "create temp file in %s", dir)
	}
	tmpPath := tmp.Name()

	fail := func(err error, msg string) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeStorage, err, "%s %s", msg, dest)
	}
	if err := chmod(tmpPath, perm); err != nil {
		return fail(err, "chmod")
	}

	bw := bufio.NewWriterSize(tmp, writeBufSize)
	if err := encode(bw); err != nil {
		return fail(err, "encode")
	}
	if err := bw.Flush(); err != nil {
		return fail(err, "flush")
	}
	if err := tmp.Sync(); err != nil {
		return fail(err, "sync")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeStorage, err, "close %s", dest)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeStorage, err, "replace %s", dest)
	}
	// Best effort: persist the rename itself.
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// removeTemps deletes temporary files left in dir by interrupted writes.
func removeTemps(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, tempPattern))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "list temp files in %s", dir)
	}
	for _, m := range matches {
		if _, err := removeIfExists(m); err != nil {
			return err
		}
	}
	return nil
}

// removeIfExists deletes path, treating a missing file as success.
func removeIfExists(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrap(errors.ErrCodeStorage, err, "remove %s", path)
}

// WritePNG atomically writes img as a PNG file at path, outside of any run.
func WritePNG(ctx context.Context, path string, img image.Image) error {
	if img == nil {
		return errors.New(errors.ErrCodeInvalidInput, "nil image for %s", filepath.Base(path))
	}
	return writeAtomic(ctx, path, 0o644, func(w io.Writer) error {
		return tiles.EncodePNG(w, img)
	})
}
