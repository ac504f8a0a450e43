// Package ingest processes queued inventory archives: safe extraction,
// per-file text normalization, duplicate suppression by content hash and
// transactional insertion of new file versions.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nivlheim/nivlheim/internal/db"
	"github.com/nivlheim/nivlheim/internal/db/repository"
	"github.com/nivlheim/nivlheim/internal/metrics"
	"github.com/nivlheim/nivlheim/internal/models"
)

// ErrGone is returned when the named archive is no longer in the queue.
var ErrGone = errors.New("archive is not in the queue")

// Ingestor pulls archives from the queue directory and ingests them.
// One archive is one database transaction: on any database error the
// whole archive rolls back and the source files stay queued.
type Ingestor struct {
	db       *db.DB
	files    *repository.FileRepository
	hostInfo *repository.HostInfoRepository
	queueDir string
}

// NewIngestor creates an Ingestor over the given queue directory.
func NewIngestor(database *db.DB, files *repository.FileRepository, hostInfo *repository.HostInfoRepository, queueDir string) *Ingestor {
	return &Ingestor{
		db:       database,
		files:    files,
		hostInfo: hostInfo,
		queueDir: queueDir,
	}
}

// QueueDir returns the directory the ingestor pulls from.
func (ing *Ingestor) QueueDir() string {
	return ing.queueDir
}

// ProcessArchive ingests the named archive from the queue. name must be
// a bare file name; callers are responsible for rejecting path
// separators before this point. On success the archive and its metadata
// sidecar are removed from the queue.
func (ing *Ingestor) ProcessArchive(name string) error {
	archivePath := filepath.Join(ing.queueDir, name)
	metaPath := archivePath + ".meta"

	if _, err := os.Stat(archivePath); err != nil {
		if os.IsNotExist(err) {
			return ErrGone
		}
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	meta, err := ReadMetadata(metaPath)
	if err != nil {
		return err
	}

	scratchDir := filepath.Join(os.TempDir(), "nivlheim-"+uuid.NewString())
	if err := os.MkdirAll(scratchDir, 0700); err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	if err := ExtractArchive(archivePath, scratchDir); err != nil {
		return err
	}

	if err := RemoveSensitiveFiles(scratchDir); err != nil {
		return err
	}

	if err := ing.ingestTree(scratchDir, meta); err != nil {
		metrics.ArchivesFailed.Inc()
		return err
	}

	metrics.ArchivesIngested.Inc()

	// The queue entry is spent.
	if err := os.Remove(archivePath); err != nil {
		log.Printf("Failed to remove ingested archive %s: %v", archivePath, err)
	}
	if err := os.Remove(metaPath); err != nil {
		log.Printf("Failed to remove metadata file %s: %v", metaPath, err)
	}

	return nil
}

// ingestTree walks the extracted archive and commits it in a single
// transaction.
func (ing *Ingestor) ingestTree(scratchDir string, meta *Metadata) error {
	tx, err := ing.db.BeginTx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	markedNonCurrent := false

	err = filepath.WalkDir(scratchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		filename, isCommand, ok := classifyPath(scratchDir, path)
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Failed to read %s, skipping: %v", path, err)
			return nil
		}

		content, err := DecodeText(data)
		if err != nil {
			log.Printf("Failed to decode %s, skipping: %v", path, err)
			return nil
		}
		content = ScrubControlChars(content)

		if isCommand {
			// The first line of a command file is the original
			// command string; it becomes the filename.
			cmd, rest := firstLine(content)
			if cmd == "" {
				return nil
			}
			filename = cmd
			content = rest
		}

		crc := SignedCRC32(content)

		prev, err := ing.files.LatestCRC(tx, meta.CertFP, filename)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err == nil && prev == crc {
			// Unchanged since the last archive; nothing to store.
			metrics.FilesSuppressed.Inc()
			return nil
		}

		if !markedNonCurrent {
			if err := ing.files.MarkAllNonCurrent(tx, meta.CertFP); err != nil {
				return err
			}
			markedNonCurrent = true
		}

		rec := &models.FileRecord{
			CertFP:        meta.CertFP,
			Filename:      filename,
			Received:      meta.Received,
			MTime:         info.ModTime().UTC(),
			Content:       content,
			CRC32:         crc,
			IsCommand:     isCommand,
			ClientVersion: meta.ClientVersion,
			IPAddr:        meta.IPAddr,
			OSHostname:    meta.OSHostname,
			CertCN:        meta.CertCN,
		}
		if err := ing.files.Insert(tx, rec); err != nil {
			return err
		}

		metrics.FilesStored.Inc()
		return nil
	})
	if err != nil {
		return err
	}

	if err := ing.hostInfo.Touch(tx, meta.CertFP, meta.IPAddr, meta.OSHostname, meta.ClientVersion, meta.Received); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}

	return nil
}

// classifyPath decides whether an extracted file takes part in ingestion
// and under what name. Files under a files/ segment keep their sub-path;
// files under a commands/ segment are command output.
func classifyPath(scratchDir, path string) (filename string, isCommand, ok bool) {
	rel, err := filepath.Rel(scratchDir, path)
	if err != nil {
		return "", false, false
	}
	rel = filepath.ToSlash(rel)

	if i := strings.Index("/"+rel, "/files/"); i >= 0 {
		sub := ("/" + rel)[i+len("/files"):]
		return sub, false, true
	}
	if strings.Contains("/"+rel, "/commands/") {
		return "", true, true
	}

	return "", false, false
}
