package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tgz.meta")
	content := "received = 1700000000\r\n" +
		"certfp=AA11BB22\n" +
		"ip   =   192.0.2.7\n" +
		"os_hostname = web1.example.org\n" +
		"certcn = web1.example.org\n" +
		"clientversion = 2.1\n" +
		"unknown_key = ignored\n" +
		"not a key value line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	meta, err := ReadMetadata(path)
	require.NoError(t, err)

	assert.Equal(t, time.Unix(1700000000, 0).UTC(), meta.Received)
	assert.Equal(t, "AA11BB22", meta.CertFP)
	assert.Equal(t, "192.0.2.7", meta.IPAddr)
	assert.Equal(t, "web1.example.org", meta.OSHostname)
	assert.Equal(t, "web1.example.org", meta.CertCN)
	assert.Equal(t, "2.1", meta.ClientVersion)
}

func TestReadMetadataMissingCertFP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tgz.meta")
	require.NoError(t, os.WriteFile(path, []byte("ip = 10.0.0.1\n"), 0644))

	_, err := ReadMetadata(path)
	assert.Error(t, err)
}

func TestMetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.zip.meta")
	in := &Metadata{
		Received:      time.Unix(1712345678, 0).UTC(),
		CertFP:        "0011AABB",
		IPAddr:        "10.1.2.3",
		OSHostname:    "db2",
		CertCN:        "db2.example.org",
		ClientVersion: "2.0",
	}
	require.NoError(t, WriteMetadata(path, in))

	out, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
