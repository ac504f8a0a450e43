// Package session implements the ping-time policy that decides whether a
// client may keep using its current certificate.
package session

import (
	"crypto/x509"
	"errors"
	"time"

	"github.com/nivlheim/nivlheim/internal/ca"
	"github.com/nivlheim/nivlheim/internal/db/repository"
)

// RenewalWindow is how close to expiry a certificate may get before ping
// starts demanding a renewal.
const RenewalWindow = 30 * 24 * time.Hour

// Verdict is the outcome of a ping check.
type Verdict int

const (
	// VerdictOK means the session is valid.
	VerdictOK Verdict = iota
	// VerdictRejected means the client must re-enroll or renew; Reason
	// carries the operator-visible explanation.
	VerdictRejected
)

// Result of a ping check.
type Result struct {
	Verdict Verdict
	Reason  string
}

// Guard evaluates the ping policy.
type Guard struct {
	certs    *repository.CertRepository
	hostInfo *repository.HostInfoRepository
}

// NewGuard creates a Guard.
func NewGuard(certs *repository.CertRepository, hostInfo *repository.HostInfoRepository) *Guard {
	return &Guard{certs: certs, hostInfo: hostInfo}
}

// Check runs the policy checks in order and stops at the first failure:
// expiry window, revocation, hostname drift. notAfter is supplied by the
// front server together with the certificate.
func (g *Guard) Check(peerCert *x509.Certificate, notAfter time.Time, now time.Time) (*Result, error) {
	if notAfter.Sub(now) < RenewalWindow {
		return &Result{Verdict: VerdictRejected, Reason: "Your certificate is about to expire, please renew it"}, nil
	}

	fp := ca.Fingerprint(peerCert)

	cert, err := g.certs.GetByFingerprint(fp)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if cert != nil && cert.Revoked {
		return &Result{Verdict: VerdictRejected, Reason: "Your certificate has been revoked"}, nil
	}

	info, err := g.hostInfo.GetByFingerprint(fp)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if info != nil && info.Hostname.Valid && info.Hostname.String != peerCert.Subject.CommonName {
		return &Result{Verdict: VerdictRejected, Reason: "Please renew your certificate"}, nil
	}

	return &Result{Verdict: VerdictOK, Reason: "pong"}, nil
}
