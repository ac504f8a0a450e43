package ingest

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTgz(t *testing.T, dir string, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "archive.tgz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
			ModTime:  time.Unix(1700000000, 0),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return path
}

func writeZip(t *testing.T, dir string, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(dir, "archive.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestExtractTgz(t *testing.T) {
	dir := t.TempDir()
	archive := writeTgz(t, dir, map[string]string{
		"files/etc/hostname":    "web1\n",
		"commands/uname_-a":     "uname -a\nLinux web1\n",
		"files/deep/nested/f.c": "int main() {}\n",
	})

	scratch := t.TempDir()
	require.NoError(t, ExtractArchive(archive, scratch))

	data, err := os.ReadFile(filepath.Join(scratch, "files", "etc", "hostname"))
	require.NoError(t, err)
	assert.Equal(t, "web1\n", string(data))

	data, err = os.ReadFile(filepath.Join(scratch, "files", "deep", "nested", "f.c"))
	require.NoError(t, err)
	assert.Equal(t, "int main() {}\n", string(data))
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := writeTgz(t, dir, map[string]string{
		"../evil": "owned\n",
	})

	scratch := t.TempDir()
	err := ExtractArchive(archive, scratch)
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(scratch), "evil"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.rar")
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0644))

	assert.Error(t, ExtractArchive(path, t.TempDir()))
}

func TestExtractZipBackslashSeparators(t *testing.T) {
	dir := t.TempDir()
	archive := writeZip(t, dir, map[string][]byte{
		`files\etc\hostname`: []byte("winhost\r\n"),
	})

	scratch := t.TempDir()
	require.NoError(t, ExtractArchive(archive, scratch))

	data, err := os.ReadFile(filepath.Join(scratch, "files", "etc", "hostname"))
	require.NoError(t, err)
	assert.Equal(t, "winhost\r\n", string(data))
}

func TestExtractZipTranscodesUTF16(t *testing.T) {
	// "hello\n" as UTF-16 LE with BOM
	utf16 := []byte{0xFF, 0xFE}
	for _, r := range "hello æøå\n" {
		if r < 0x80 {
			utf16 = append(utf16, byte(r), 0x00)
		} else {
			utf16 = append(utf16, byte(r&0xFF), byte(r>>8))
		}
	}

	dir := t.TempDir()
	archive := writeZip(t, dir, map[string][]byte{
		"files/etc/issue": utf16,
		"files/etc/plain": []byte("untouched\n"),
	})

	scratch := t.TempDir()
	require.NoError(t, ExtractArchive(archive, scratch))

	data, err := os.ReadFile(filepath.Join(scratch, "files", "etc", "issue"))
	require.NoError(t, err)
	assert.Equal(t, "hello æøå\n", string(data))

	data, err = os.ReadFile(filepath.Join(scratch, "files", "etc", "plain"))
	require.NoError(t, err)
	assert.Equal(t, "untouched\n", string(data))
}

func TestRemoveSensitiveFiles(t *testing.T) {
	dir := t.TempDir()
	archive := writeTgz(t, dir, map[string]string{
		"files/etc/ssh/ssh_host_rsa_key":   "SECRET",
		"files/etc/ssh/ssh_host_dsa_key":   "SECRET",
		"files/etc/ssh/ssh_host_ecdsa_key": "SECRET",
		"files/var/log/messages":           "log data",
		"files/etc/hostname":               "web1\n",
	})

	scratch := t.TempDir()
	require.NoError(t, ExtractArchive(archive, scratch))
	require.NoError(t, RemoveSensitiveFiles(scratch))

	for _, rel := range []string{
		"files/etc/ssh/ssh_host_rsa_key",
		"files/etc/ssh/ssh_host_dsa_key",
		"files/etc/ssh/ssh_host_ecdsa_key",
		"files/var/log/messages",
	} {
		_, err := os.Stat(filepath.Join(scratch, filepath.FromSlash(rel)))
		assert.True(t, os.IsNotExist(err), "%s should be gone", rel)
	}

	_, err := os.Stat(filepath.Join(scratch, "files", "etc", "hostname"))
	assert.NoError(t, err)
}

func TestFirstLine(t *testing.T) {
	cmd, rest := firstLine("uname -a\nLinux web1\nmore\n")
	assert.Equal(t, "uname -a", cmd)
	assert.Equal(t, "Linux web1\nmore\n", rest)

	cmd, rest = firstLine("lonely")
	assert.Equal(t, "lonely", cmd)
	assert.Equal(t, "", rest)

	cmd, _ = firstLine("dos command\r\noutput")
	assert.Equal(t, "dos command", cmd)
}
