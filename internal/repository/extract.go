package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// maxExtracted caps the unpacked size of one bundle.
const maxExtracted = 256 << 20

// Extract unpacks archive into dest. The format is identified from name
// and the archive header, so zip, tar.gz and friends all work.
func Extract(ctx context.Context, name string, archive []byte, dest string) error {
	format, stream, err := archives.Identify(ctx, path.Base(name), bytes.NewReader(archive))
	if err != nil {
		return fmt.Errorf("unrecognised bundle archive: %w", err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("bundle archive format %s cannot be extracted", format.Extension())
	}
	if _, ok := stream.(io.ReaderAt); !ok {
		stream = bytes.NewReader(archive)
	}

	var written int64
	return extractor.Extract(ctx, stream, func(ctx context.Context, f archives.FileInfo) error {
		target, err := safeJoin(dest, f.NameInArchive)
		if err != nil {
			return err
		}
		if f.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !f.Mode().IsRegular() {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		src, err := f.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		n, err := io.Copy(out, io.LimitReader(src, maxExtracted-written+1))
		written += n
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if written > maxExtracted {
			return fmt.Errorf("bundle archive expands beyond %d bytes", maxExtracted)
		}
		return nil
	})
}

// safeJoin resolves an archive path below dest, rejecting entries that
// would land outside it.
func safeJoin(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes the bundle", name)
	}
	return filepath.Join(dest, clean), nil
}
