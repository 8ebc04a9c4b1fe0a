// Package artifact reads and writes model artifact archives.
//
// The platform uploads the model directory as model.tar.gz after training,
// and the same archive is what users download from "Model Artifacts Location".
package artifact

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ArchiveName is the file name of model artifact archives.
const ArchiveName = "model.tar.gz"

// ErrUnsafePath is returned when an archive entry points outside of the destination.
var ErrUnsafePath = errors.New("artifact: unsafe path in archive")

// Pack writes regular files under dir into dest as tar.gz.
//
// Entry names are relative to dir. Symlinks and other special files are skipped.
func Pack(ctx context.Context, dir string, dest io.Writer) error {
	gz := gzip.NewWriter(dest)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(dir, func(fullpath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relpath, err := filepath.Rel(dir, fullpath)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(relpath)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		f, err := os.Open(fullpath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, &ctxReader{ctx: ctx, r: f})
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// PackFile writes the archive of dir as the file dest.
func PackFile(ctx context.Context, dir string, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := Pack(ctx, dir, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Unpack extracts regular files in the tar.gz stream src into dest.
//
// Directories are created as needed. Entries escaping dest are rejected with ErrUnsafePath.
// It returns relative paths of extracted files.
func Unpack(ctx context.Context, src io.Reader, dest string) ([]string, error) {
	gz, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("artifact: not a gzip stream: %w", err)
	}
	defer gz.Close()

	extracted := []string{}
	tr := tar.NewReader(&ctxReader{ctx: ctx, r: gz})
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return extracted, nil
		}
		if err != nil {
			return extracted, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
			return extracted, fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}
		fullpath := filepath.Join(dest, name)
		if err := os.MkdirAll(filepath.Dir(fullpath), 0o755); err != nil {
			return extracted, err
		}

		if err := func() error {
			f, err := os.OpenFile(fullpath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(f, tr)
			return err
		}(); err != nil {
			return extracted, err
		}
		extracted = append(extracted, filepath.ToSlash(name))
	}
}

// UnpackFile extracts the archive file src into dest.
func UnpackFile(ctx context.Context, src string, dest string) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Unpack(ctx, f, dest)
}

// ctxReader stops reading when ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
	}
	return r.r.Read(p)
}
