// Package metrics defines the Prometheus instrumentation shared by the
// enrollment and ingestion paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CertsIssued counts certificates issued for new identities.
	CertsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nivlheim_certificates_issued_total",
		Help: "Certificates issued to newly enrolled hosts.",
	})

	// CertsRenewed counts certificate renewals.
	CertsRenewed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nivlheim_certificates_renewed_total",
		Help: "Certificates issued as renewals of existing identities.",
	})

	// ArchivesIngested counts archives committed to the database.
	ArchivesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nivlheim_archives_ingested_total",
		Help: "Archives successfully ingested.",
	})

	// ArchivesFailed counts archives rolled back and left for retry.
	ArchivesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nivlheim_archives_failed_total",
		Help: "Archives that failed ingestion and were kept for reprocessing.",
	})

	// FilesStored counts new file versions inserted.
	FilesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nivlheim_files_stored_total",
		Help: "File versions inserted into the files table.",
	})

	// FilesSuppressed counts files skipped because their content hash
	// matched the newest stored version.
	FilesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nivlheim_files_suppressed_total",
		Help: "Files skipped by duplicate suppression.",
	})
)
