package ingest

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// ExtractArchive unpacks an archive into the scratch directory. The
// format is dispatched on the file extension: .tgz is gzip-compressed
// tar, .zip is zip. Entries whose canonicalised path would land outside
// the scratch directory are rejected outright.
func ExtractArchive(archivePath, scratchDir string) error {
	switch strings.ToLower(filepath.Ext(archivePath)) {
	case ".tgz":
		return extractTarGz(archivePath, scratchDir)
	case ".zip":
		if err := extractZip(archivePath, scratchDir); err != nil {
			return err
		}
		// Windows clients produce UTF-16 text files.
		return transcodeUTF16Files(scratchDir)
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}
}

// resolveEntry maps an archive entry name to a path inside scratchDir,
// rejecting absolute paths and traversal. Separators are canonicalised
// to forward slashes before resolution.
func resolveEntry(scratchDir, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	target := filepath.Join(scratchDir, filepath.FromSlash(name))

	rel, err := filepath.Rel(scratchDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction directory", name)
	}

	return target, nil
}

func extractTarGz(archivePath, scratchDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		target, err := resolveEntry(scratchDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr); err != nil {
				return err
			}
			if !hdr.ModTime.IsZero() {
				os.Chtimes(target, hdr.ModTime, hdr.ModTime)
			}
		default:
			// Symlinks and device nodes have no business in an
			// inventory archive.
		}
	}
}

func extractZip(archivePath, scratchDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		target, err := resolveEntry(scratchDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("failed to open zip entry: %w", err)
		}
		err = writeEntry(target, rc)
		rc.Close()
		if err != nil {
			return err
		}
		if !entry.Modified.IsZero() {
			os.Chtimes(target, entry.Modified, entry.Modified)
		}
	}

	return nil
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}

	return f.Close()
}

// transcodeUTF16Files rewrites every regular file starting with a
// UTF-16 LE byte order mark (FF FE) as UTF-8 in place.
func transcodeUTF16Files(scratchDir string) error {
	return filepath.WalkDir(scratchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if len(data) < 2 || data[0] != 0xFF || data[1] != 0xFE {
			return nil
		}

		decoder := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		decoded, err := decoder.Bytes(data)
		if err != nil {
			return fmt.Errorf("failed to transcode %s: %w", path, err)
		}

		return os.WriteFile(path, decoded, 0644)
	})
}

// sensitiveFiles are removed unconditionally after extraction, before any
// file is considered for ingestion.
var sensitiveFiles = []string{
	"files/etc/ssh/ssh_host_rsa_key",
	"files/etc/ssh/ssh_host_dsa_key",
	"files/etc/ssh/ssh_host_ecdsa_key",
}

// RemoveSensitiveFiles deletes host keys and log spool content from the
// scratch directory.
func RemoveSensitiveFiles(scratchDir string) error {
	for _, rel := range sensitiveFiles {
		path := filepath.Join(scratchDir, filepath.FromSlash(rel))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", rel, err)
		}
	}

	logDir := filepath.Join(scratchDir, "files", "var", "log")
	if err := os.RemoveAll(logDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", logDir, err)
	}

	return nil
}

// firstLine splits content into its first line and the remainder, used
// for command output files where the first line carries the original
// command string.
func firstLine(content string) (string, string) {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return strings.TrimRight(content[:i], "\r"), content[i+1:]
	}
	return content, ""
}
