package ingest

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Metadata is the sidecar information the front server stores next to a
// queued archive.
type Metadata struct {
	Received      time.Time
	CertFP        string
	IPAddr        string
	OSHostname    string
	CertCN        string
	ClientVersion string
}

// ReadMetadata parses a sidecar metadata file: one "key = value" per
// line, whitespace around the separator trimmed, trailing CR/LF
// stripped. Unknown keys are ignored.
func ReadMetadata(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer f.Close()

	meta := &Metadata{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "received":
			epoch, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid received timestamp %q: %w", value, err)
			}
			meta.Received = time.Unix(epoch, 0).UTC()
		case "certfp":
			meta.CertFP = value
		case "ip":
			meta.IPAddr = value
		case "os_hostname":
			meta.OSHostname = value
		case "certcn":
			meta.CertCN = value
		case "clientversion":
			meta.ClientVersion = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if meta.CertFP == "" {
		return nil, fmt.Errorf("metadata file %s has no certfp", path)
	}

	return meta, nil
}

// WriteMetadata stores the sidecar file for a queued archive.
func WriteMetadata(path string, meta *Metadata) error {
	var b strings.Builder
	fmt.Fprintf(&b, "received = %d\n", meta.Received.Unix())
	fmt.Fprintf(&b, "certfp = %s\n", meta.CertFP)
	fmt.Fprintf(&b, "ip = %s\n", meta.IPAddr)
	fmt.Fprintf(&b, "os_hostname = %s\n", meta.OSHostname)
	fmt.Fprintf(&b, "certcn = %s\n", meta.CertCN)
	fmt.Fprintf(&b, "clientversion = %s\n", meta.ClientVersion)

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}
