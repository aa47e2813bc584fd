package buildhandler

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extractArchive unpacks a tar.gz snapshot into a fresh crab_repo_*
// temp directory and returns its path. Entries that would resolve
// outside the directory are skipped, as are special files.
func extractArchive(archivePath string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", errNotValidDirectory(fmt.Sprintf("The path %q is neither a directory nor a tar archive.", archivePath))
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", errNotValidDirectory(fmt.Sprintf("The path %q is neither a directory nor a tar archive.", archivePath))
	}
	defer gz.Close()

	dir, err := os.MkdirTemp("", "crab_repo_")
	if err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}

	if err := untar(tar.NewReader(gz), dir); err != nil {
		os.RemoveAll(dir)
		return "", errNotValidDirectory(fmt.Sprintf("The path %q is neither a directory nor a tar archive.", archivePath))
	}
	return dir, nil
}

func untar(tr *tar.Reader, dir string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, ok := confine(dir, hdr.Name)
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			// Links pointing outside the extraction root are dropped.
			if filepath.IsAbs(hdr.Linkname) {
				continue
			}
			resolved := filepath.Join(filepath.Dir(target), hdr.Linkname)
			if rel, err := filepath.Rel(dir, resolved); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return err
			}
		default:
			// Block/char devices, fifos etc. have no business in a repo snapshot.
			continue
		}
	}
}

// confine joins name onto dir and reports whether the result stays
// inside dir.
func confine(dir, name string) (string, bool) {
	target := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}
