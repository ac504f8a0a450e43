package repository

import (
	"database/sql"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nivlheim/nivlheim/internal/db"
	"github.com/nivlheim/nivlheim/internal/models"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))
	return database
}

func TestInsertIssuedRootEnrollment(t *testing.T) {
	database := newTestDB(t)
	repo := NewCertRepository(database.DB)

	cert := &models.Certificate{
		Fingerprint: "AA11",
		CommonName:  "web1.example.org",
		CertPEM:     "-----BEGIN CERTIFICATE-----\n...",
	}
	certid, err := repo.InsertIssued(cert)
	require.NoError(t, err)

	got, err := repo.GetByFingerprint("AA11")
	require.NoError(t, err)
	assert.Equal(t, certid, got.CertID)
	assert.Equal(t, certid, got.First, "first must equal certid for a root enrollment")
	assert.False(t, got.Previous.Valid, "previous must be null for a root enrollment")
	assert.False(t, got.Revoked)
	assert.Equal(t, "web1.example.org", got.CommonName)
}

func TestInsertIssuedRenewalChain(t *testing.T) {
	database := newTestDB(t)
	repo := NewCertRepository(database.DB)

	first, err := repo.InsertIssued(&models.Certificate{
		Fingerprint: "F1", CommonName: "h", CertPEM: "pem1",
	})
	require.NoError(t, err)

	second, err := repo.InsertIssued(&models.Certificate{
		Fingerprint: "F2", CommonName: "h", CertPEM: "pem2",
		Previous: sql.NullInt64{Int64: first, Valid: true},
		First:    first,
	})
	require.NoError(t, err)

	third, err := repo.InsertIssued(&models.Certificate{
		Fingerprint: "F3", CommonName: "h", CertPEM: "pem3",
		Previous: sql.NullInt64{Int64: second, Valid: true},
		First:    first,
	})
	require.NoError(t, err)

	got, err := repo.GetByFingerprint("F3")
	require.NoError(t, err)
	assert.Equal(t, third, got.CertID)
	assert.Equal(t, second, got.Previous.Int64)
	assert.Equal(t, first, got.First, "first must be stable across the whole chain")

	// The older rows stay unchanged
	old, err := repo.GetByFingerprint("F1")
	require.NoError(t, err)
	assert.Equal(t, first, old.First)
	assert.False(t, old.Previous.Valid)
}

func TestGetByFingerprintNotFound(t *testing.T) {
	database := newTestDB(t)
	repo := NewCertRepository(database.DB)

	_, err := repo.GetByFingerprint("NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetRevoked(t *testing.T) {
	database := newTestDB(t)
	repo := NewCertRepository(database.DB)

	_, err := repo.InsertIssued(&models.Certificate{Fingerprint: "AA", CommonName: "h", CertPEM: "p"})
	require.NoError(t, err)

	require.NoError(t, repo.SetRevoked("AA"))

	got, err := repo.GetByFingerprint("AA")
	require.NoError(t, err)
	assert.True(t, got.Revoked)

	assert.ErrorIs(t, repo.SetRevoked("MISSING"), ErrNotFound)
}

func TestWaitingLifecycle(t *testing.T) {
	database := newTestDB(t)
	repo := NewWaitingRepository(database.DB)

	_, err := repo.GetByIP("192.0.2.10")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Create(&models.WaitingEntry{
		IPAddr:   "192.0.2.10",
		Hostname: "foo",
		Received: time.Now(),
	}))

	entry, err := repo.GetByIP("192.0.2.10")
	require.NoError(t, err)
	assert.Equal(t, "foo", entry.Hostname)
	assert.False(t, entry.Approved)

	require.NoError(t, repo.SetApproved("192.0.2.10", true))
	entry, err = repo.GetByIP("192.0.2.10")
	require.NoError(t, err)
	assert.True(t, entry.Approved)

	require.NoError(t, repo.Delete("192.0.2.10"))
	_, err = repo.GetByIP("192.0.2.10")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing entry is not an error
	assert.NoError(t, repo.Delete("192.0.2.10"))
}

func TestIPRangeContains(t *testing.T) {
	database := newTestDB(t)
	repo := NewIPRangeRepository(database.DB)

	require.NoError(t, repo.Add("10.0.0.0/24"))
	require.NoError(t, repo.Add("2001:db8::/64"))

	ok, err := repo.Contains(net.ParseIP("10.0.0.5"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Contains(net.ParseIP("10.0.1.5"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Contains(net.ParseIP("2001:db8::17"))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Error(t, repo.Add("not-a-cidr"))
}

func TestRewriteFingerprint(t *testing.T) {
	database := newTestDB(t)
	hostRepo := NewHostInfoRepository(database.DB)
	fileRepo := NewFileRepository(database.DB)

	tx, err := database.BeginTx()
	require.NoError(t, err)
	require.NoError(t, hostRepo.Touch(tx, "F1", "10.0.0.5", "web1", "2.1", time.Unix(1700000000, 0).UTC()))
	require.NoError(t, fileRepo.Insert(tx, &models.FileRecord{
		CertFP: "F1", Filename: "/etc/hostname", Received: time.Now(), Content: "web1\n",
	}))
	require.NoError(t, tx.Commit())

	require.NoError(t, hostRepo.RewriteFingerprint("F1", "F2"))

	_, err = hostRepo.GetByFingerprint("F1")
	assert.ErrorIs(t, err, ErrNotFound)

	info, err := hostRepo.GetByFingerprint("F2")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", info.IPAddr)

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM files WHERE certfp='F2'`).Scan(&count))
	assert.Equal(t, 1, count)
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM files WHERE certfp='F1'`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestHostInfoTouchMonotonic(t *testing.T) {
	database := newTestDB(t)
	repo := NewHostInfoRepository(database.DB)

	later := time.Unix(1700010000, 0).UTC()
	earlier := time.Unix(1700000000, 0).UTC()

	tx, err := database.BeginTx()
	require.NoError(t, err)
	require.NoError(t, repo.Touch(tx, "F1", "10.0.0.5", "web1", "2.1", later))
	require.NoError(t, tx.Commit())

	// An older archive must not rewind lastseen
	tx, err = database.BeginTx()
	require.NoError(t, err)
	require.NoError(t, repo.Touch(tx, "F1", "10.0.0.5", "web1", "2.0", earlier))
	require.NoError(t, tx.Commit())

	info, err := repo.GetByFingerprint("F1")
	require.NoError(t, err)
	assert.Equal(t, later.Unix(), info.LastSeen.Unix())
	assert.Equal(t, "2.1", info.ClientVersion)
}

func TestHostInfoTouchIdentityDrift(t *testing.T) {
	database := newTestDB(t)
	repo := NewHostInfoRepository(database.DB)

	tx, err := database.BeginTx()
	require.NoError(t, err)
	require.NoError(t, repo.Touch(tx, "F1", "10.0.0.5", "web1", "2.1", time.Unix(1700000000, 0).UTC()))
	require.NoError(t, tx.Commit())

	// Set a dnsttl so we can observe it being invalidated
	_, err = database.Exec(`UPDATE hostinfo SET dnsttl = ? WHERE certfp = 'F1'`, time.Now())
	require.NoError(t, err)

	tx, err = database.BeginTx()
	require.NoError(t, err)
	require.NoError(t, repo.Touch(tx, "F1", "10.9.9.9", "web1-renamed", "2.1", time.Unix(1700003600, 0).UTC()))
	require.NoError(t, tx.Commit())

	info, err := repo.GetByFingerprint("F1")
	require.NoError(t, err)
	assert.Equal(t, "10.9.9.9", info.IPAddr)
	assert.Equal(t, "web1-renamed", info.OSHostname)
	assert.False(t, info.DNSTTL.Valid, "identity drift must clear the DNS cache")
}

func TestLatestCRCAndCurrentFlag(t *testing.T) {
	database := newTestDB(t)
	repo := NewFileRepository(database.DB)

	tx, err := database.BeginTx()
	require.NoError(t, err)

	_, err = repo.LatestCRC(tx, "F1", "/etc/hostname")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Insert(tx, &models.FileRecord{
		CertFP: "F1", Filename: "/etc/hostname",
		Received: time.Unix(1700000000, 0).UTC(), Content: "a\n", CRC32: -123,
	}))
	require.NoError(t, tx.Commit())

	tx, err = database.BeginTx()
	require.NoError(t, err)
	crc, err := repo.LatestCRC(tx, "F1", "/etc/hostname")
	require.NoError(t, err)
	assert.Equal(t, int32(-123), crc)

	require.NoError(t, repo.MarkAllNonCurrent(tx, "F1"))
	require.NoError(t, repo.Insert(tx, &models.FileRecord{
		CertFP: "F1", Filename: "/etc/hostname",
		Received: time.Unix(1700003600, 0).UTC(), Content: "b\n", CRC32: 456,
	}))
	require.NoError(t, tx.Commit())

	n, err := repo.CountCurrent("F1", "/etc/hostname")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
