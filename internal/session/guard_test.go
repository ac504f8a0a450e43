package session

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nivlheim/nivlheim/internal/ca"
	"github.com/nivlheim/nivlheim/internal/db"
	"github.com/nivlheim/nivlheim/internal/db/repository"
	"github.com/nivlheim/nivlheim/internal/models"
)

func newTestGuard(t *testing.T) (*Guard, *repository.CertRepository, *repository.HostInfoRepository, *db.DB) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))

	certs := repository.NewCertRepository(database.DB)
	hostInfo := repository.NewHostInfoRepository(database.DB)
	return NewGuard(certs, hostInfo), certs, hostInfo, database
}

func makeClientCert(t *testing.T, cn string, notAfter time.Time) *x509.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestCheckOK(t *testing.T) {
	guard, _, _, _ := newTestGuard(t)
	now := time.Now()
	cert := makeClientCert(t, "web1.example.org", now.Add(90*24*time.Hour))

	res, err := guard.Check(cert, cert.NotAfter, now)
	require.NoError(t, err)
	assert.Equal(t, VerdictOK, res.Verdict)
	assert.Equal(t, "pong", res.Reason)
}

func TestCheckExpiryWindow(t *testing.T) {
	guard, _, _, _ := newTestGuard(t)
	now := time.Now()

	cases := []struct {
		name     string
		notAfter time.Time
		verdict  Verdict
	}{
		{"expiring in 10 days", now.Add(10 * 24 * time.Hour), VerdictRejected},
		{"one second short of the window", now.Add(RenewalWindow - time.Second), VerdictRejected},
		{"just past the window", now.Add(RenewalWindow + time.Second), VerdictOK},
		{"already expired", now.Add(-time.Hour), VerdictRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cert := makeClientCert(t, "web1.example.org", tc.notAfter)
			res, err := guard.Check(cert, tc.notAfter, now)
			require.NoError(t, err)
			assert.Equal(t, tc.verdict, res.Verdict)
			if tc.verdict == VerdictRejected {
				assert.Equal(t, "Your certificate is about to expire, please renew it", res.Reason)
			}
		})
	}
}

func TestCheckRevoked(t *testing.T) {
	guard, certs, _, _ := newTestGuard(t)
	now := time.Now()
	cert := makeClientCert(t, "web1.example.org", now.Add(90*24*time.Hour))
	fp := ca.Fingerprint(cert)

	_, err := certs.InsertIssued(&models.Certificate{
		Fingerprint: fp, CommonName: "web1.example.org", CertPEM: "pem",
	})
	require.NoError(t, err)
	require.NoError(t, certs.SetRevoked(fp))

	res, err := guard.Check(cert, cert.NotAfter, now)
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, res.Verdict)
	assert.Equal(t, "Your certificate has been revoked", res.Reason)
}

func TestCheckHostnameDrift(t *testing.T) {
	guard, _, hostInfo, database := newTestGuard(t)
	now := time.Now()
	cert := makeClientCert(t, "web1.example.org", now.Add(90*24*time.Hour))
	fp := ca.Fingerprint(cert)

	tx, err := database.BeginTx()
	require.NoError(t, err)
	require.NoError(t, hostInfo.Touch(tx, fp, "10.0.0.5", "web1", "2.1", now))
	require.NoError(t, tx.Commit())

	// No confirmed hostname yet: drift check does not apply
	res, err := guard.Check(cert, cert.NotAfter, now)
	require.NoError(t, err)
	assert.Equal(t, VerdictOK, res.Verdict)

	// Confirmed hostname matches the CN: still fine
	require.NoError(t, hostInfo.SetHostname(fp, "web1.example.org"))
	res, err = guard.Check(cert, cert.NotAfter, now)
	require.NoError(t, err)
	assert.Equal(t, VerdictOK, res.Verdict)

	// The machine was renamed since the certificate was issued
	require.NoError(t, hostInfo.SetHostname(fp, "web1-new.example.org"))
	res, err = guard.Check(cert, cert.NotAfter, now)
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, res.Verdict)
	assert.Equal(t, "Please renew your certificate", res.Reason)
}
