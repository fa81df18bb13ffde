package modelcache

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

// TarGzArchiver converts a directory tree to a single compressed archive
// and back. Packing and extraction stream file by file so memory stays
// bounded even for multi-gigabyte models, and extraction validates entry
// paths to prevent traversal outside the destination.
type TarGzArchiver struct{}

// NewTarGzArchiver creates an archiver using the standard tar.gz format.
func NewTarGzArchiver() *TarGzArchiver {
	return &TarGzArchiver{}
}

// Pack writes a tar.gz archive of sourceDir to output. Entry names are
// relative to sourceDir so Unpack reproduces the same tree layout.
func (a *TarGzArchiver) Pack(ctx context.Context, sourceDir string, output io.Writer) error {
	if sourceDir == "" {
		return fmt.Errorf("source directory cannot be empty")
	}
	if output == nil {
		return fmt.Errorf("output writer cannot be nil")
	}
	if _, err := os.Stat(sourceDir); err != nil {
		return fmt.Errorf("source directory: %w", err)
	}

	gzw := gzip.NewWriter(output)
	tw := tar.NewWriter(gzw)

	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == sourceDir {
			return nil
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		// Only regular files and directories travel; symlinks and
		// specials are skipped the same way the origin snapshot layout
		// never contains them.
		switch {
		case info.IsDir():
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = rel + "/"
			return tw.WriteHeader(header)
		case info.Mode().IsRegular():
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = rel
			if err := tw.WriteHeader(header); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return fmt.Errorf("archive %s: %w", rel, err)
			}
			return nil
		default:
			return nil
		}
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar stream: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("close gzip stream: %w", err)
	}
	return nil
}

// PackFile archives sourceDir into a new file at archivePath.
func (a *TarGzArchiver) PackFile(ctx context.Context, sourceDir, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	if err := a.Pack(ctx, sourceDir, out); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Unpack extracts a tar.gz stream into destDir, creating it if needed.
// Entries resolving outside destDir are rejected.
func (a *TarGzArchiver) Unpack(ctx context.Context, input io.Reader, destDir string) error {
	if input == nil {
		return fmt.Errorf("input reader cannot be nil")
	}
	if destDir == "" {
		return fmt.Errorf("destination directory cannot be empty")
	}

	gzr, err := gzip.NewReader(input)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gzr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err := a.extractEntry(tr, header, destDir); err != nil {
			return err
		}
	}
}

// UnpackFile extracts the archive at archivePath into destDir.
func (a *TarGzArchiver) UnpackFile(ctx context.Context, archivePath, destDir string) error {
	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()
	return a.Unpack(ctx, in, destDir)
}

// extractEntry writes one tar entry under destDir after path validation.
func (a *TarGzArchiver) extractEntry(tr *tar.Reader, header *tar.Header, destDir string) error {
	name := filepath.FromSlash(header.Name)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("archive entry %q escapes destination", header.Name)
	}
	dest := filepath.Join(destDir, name)

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, sanitizeMode(header.Mode, 0o755))
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, sanitizeMode(header.Mode, 0o644))
		if err != nil {
			return err
		}
		n, err := io.Copy(f, tr)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("extract %s: %w", header.Name, err)
		}
		if n != header.Size {
			return fmt.Errorf("extract %s: wrote %d of %d bytes", header.Name, n, header.Size)
		}
		return nil
	default:
		// Symlinks, devices, and other specials never appear in model
		// snapshots; refusing them keeps extraction predictable.
		if strings.HasPrefix(header.Name, "._") {
			return nil // macOS resource forks in hand-built archives
		}
		return fmt.Errorf("archive entry %q has unsupported type %d", header.Name, header.Typeflag)
	}
}

// sanitizeMode strips setuid/setgid/sticky bits and falls back to a sane
// default for zero modes.
func sanitizeMode(mode int64, fallback os.FileMode) os.FileMode {
	m := os.FileMode(mode) & 0o777
	if m == 0 {
		return fallback
	}
	return m
}
