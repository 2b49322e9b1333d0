package services

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// errUnsafeArchivePath is returned for entries that would extract outside the target.
var errUnsafeArchivePath = errors.New("archive entry escapes target directory")

// writeArchive packs srcDir into dest. Entries are stored under the base name of srcDir.
func writeArchive(ctx context.Context, srcDir, dest string, format domain.ArchiveFormat) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}

	switch format {
	case domain.ArchiveZip:
		err = writeZip(ctx, srcDir, f)
	default:
		err = writeTarGz(ctx, srcDir, f)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dest)
	}
	return err
}

// walkArchiveFiles calls fn for every entry under srcDir with its slash-separated archive name.
func walkArchiveFiles(ctx context.Context, srcDir string, fn func(p, name string, info fs.FileInfo) error) error {
	root := filepath.Base(srcDir)
	return filepath.Walk(srcDir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		name := path.Join(root, filepath.ToSlash(rel))
		return fn(p, name, info)
	})
}

func writeTarGz(ctx context.Context, srcDir string, w io.Writer) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := walkArchiveFiles(ctx, srcDir, func(p, name string, info fs.FileInfo) error {
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return copyFileTo(tw, p)
	})

	if closeErr := tw.Close(); err == nil {
		err = closeErr
	}
	if closeErr := gz.Close(); err == nil {
		err = closeErr
	}
	return err
}

func writeZip(ctx context.Context, srcDir string, w io.Writer) error {
	zw := zip.NewWriter(w)

	err := walkArchiveFiles(ctx, srcDir, func(p, name string, info fs.FileInfo) error {
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
		} else {
			hdr.Method = zip.Deflate
		}
		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return copyFileTo(entry, p)
	})

	if closeErr := zw.Close(); err == nil {
		err = closeErr
	}
	return err
}

func copyFileTo(w io.Writer, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// extractArchive unpacks src into destDir and returns the single top-level directory it created.
func extractArchive(ctx context.Context, src, destDir string, format domain.ArchiveFormat) (string, error) {
	var err error
	switch format {
	case domain.ArchiveZip:
		err = extractZip(ctx, src, destDir)
	default:
		err = extractTarGz(ctx, src, destDir)
	}
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(destDir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("archive %s contains no backup directory", filepath.Base(src))
}

// safeJoin resolves an archive entry name under destDir, rejecting traversal.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", errUnsafeArchivePath, name)
	}
	return target, nil
}

func extractTarGz(ctx context.Context, src, destDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeExtracted(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		}
	}
}

func extractZip(ctx context.Context, src, destDir string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(destDir, zf.Name)
		if err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o700); err != nil {
				return err
			}
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		err = writeExtracted(target, rc, zf.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeExtracted(target string, r io.Reader, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o600
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// readArchiveManifest reads the manifest from an archive without extracting it.
func readArchiveManifest(src string, format domain.ArchiveFormat) (*domain.BackupManifest, error) {
	var data []byte
	switch format {
	case domain.ArchiveZip:
		zr, err := zip.OpenReader(src)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		for _, zf := range zr.File {
			if path.Base(zf.Name) != domain.ManifestFileName || strings.Count(zf.Name, "/") != 1 {
				continue
			}
			rc, err := zf.Open()
			if err != nil {
				return nil, err
			}
			data, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, err
			}
			break
		}
	default:
		f, err := os.Open(src)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		tr := tar.NewReader(gz)
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
			if path.Base(hdr.Name) == domain.ManifestFileName && strings.Count(hdr.Name, "/") == 1 {
				if data, err = io.ReadAll(tr); err != nil {
					return nil, err
				}
				break
			}
		}
	}

	if data == nil {
		return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, domain.ManifestFileName)
	}
	var m domain.BackupManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
