// Package enroll implements the certificate enrollment flows: first-time
// requests with IP-range auto-approval or a manual waiting list, and
// renewals authenticated by the current certificate.
package enroll

import (
	"crypto/x509"
	"database/sql"
	"errors"
	"log"
	"net"
	"time"

	"github.com/nivlheim/nivlheim/internal/ca"
	"github.com/nivlheim/nivlheim/internal/db/repository"
	"github.com/nivlheim/nivlheim/internal/dnsutil"
	"github.com/nivlheim/nivlheim/internal/metrics"
	"github.com/nivlheim/nivlheim/internal/models"
)

var (
	// ErrMissingHostname is returned when a first-time request outside
	// the auto-approved ranges carries no hostname parameter.
	ErrMissingHostname = errors.New("hostname parameter is required")

	// ErrRevoked is returned when the presented certificate is revoked.
	ErrRevoked = errors.New("certificate is revoked")

	// ErrUnknownCert is returned when the presented certificate is not
	// in the database.
	ErrUnknownCert = errors.New("certificate is not known")

	// ErrNoHostname is returned when a renewal cannot determine the
	// hostname from either hostinfo or the presented certificate.
	ErrNoHostname = errors.New("unable to determine hostname")
)

// Outcome classifies the result of a certificate request.
type Outcome int

const (
	// OutcomeIssued means a certificate bundle was issued.
	OutcomeIssued Outcome = iota
	// OutcomeWaiting means the request was added to the waiting list.
	OutcomeWaiting
	// OutcomePending means the request is already on the waiting list
	// and not yet approved.
	OutcomePending
	// OutcomeBusy means the signing lock was held; the client should
	// retry shortly.
	OutcomeBusy
)

// Result is the outcome of RequestCert. Bundle is only set for
// OutcomeIssued.
type Result struct {
	Outcome Outcome
	Bundle  string
}

// Enroller coordinates the certificate store, the CA issuer and DNS.
type Enroller struct {
	issuer   *ca.Issuer
	caCert   *x509.Certificate
	certs    *repository.CertRepository
	waiting  *repository.WaitingRepository
	ipRanges *repository.IPRangeRepository
	hostInfo *repository.HostInfoRepository
	resolver *dnsutil.Resolver
}

// New creates an Enroller. A nil resolver means the system resolver.
func New(
	issuer *ca.Issuer,
	caCert *x509.Certificate,
	certs *repository.CertRepository,
	waiting *repository.WaitingRepository,
	ipRanges *repository.IPRangeRepository,
	hostInfo *repository.HostInfoRepository,
	resolver *dnsutil.Resolver,
) *Enroller {
	if resolver == nil {
		resolver = dnsutil.Default
	}
	return &Enroller{
		issuer:   issuer,
		caCert:   caCert,
		certs:    certs,
		waiting:  waiting,
		ipRanges: ipRanges,
		hostInfo: hostInfo,
		resolver: resolver,
	}
}

// RequestCert handles a first-time (unauthenticated) certificate
// request from peerIP. Hosts inside an approved IP range are issued a
// certificate immediately; everyone else goes through the waiting list.
func (e *Enroller) RequestCert(peerIP net.IP, paramHostname string) (*Result, error) {
	auto, err := e.ipRanges.Contains(peerIP)
	if err != nil {
		return nil, err
	}

	if auto {
		hostname := e.resolver.ForwardConfirmed(peerIP)
		if hostname == "" {
			hostname = paramHostname
		}
		result, _, err := e.issue(peerIP, hostname, nil)
		return result, err
	}

	entry, err := e.waiting.GetByIP(peerIP.String())
	if errors.Is(err, repository.ErrNotFound) {
		if paramHostname == "" {
			return nil, ErrMissingHostname
		}
		hostname := e.resolver.ForwardConfirmed(peerIP)
		if hostname == "" {
			hostname = paramHostname
		}
		if err := e.waiting.Create(&models.WaitingEntry{
			IPAddr:   peerIP.String(),
			Hostname: hostname,
			Received: time.Now(),
		}); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeWaiting}, nil
	}
	if err != nil {
		return nil, err
	}

	if !entry.Approved {
		return &Result{Outcome: OutcomePending}, nil
	}

	result, _, err := e.issue(peerIP, entry.Hostname, nil)
	return result, err
}

// RenewCert issues a new certificate for the identity behind peerCert.
// The new row links back to the old one through previous/first, and the
// hostinfo and files tables are repointed at the new fingerprint in a
// single transaction.
func (e *Enroller) RenewCert(peerCert *x509.Certificate) (string, error) {
	fp := ca.Fingerprint(peerCert)

	old, err := e.certs.GetByFingerprint(fp)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrUnknownCert
	}
	if err != nil {
		return "", err
	}
	if old.Revoked {
		return "", ErrRevoked
	}

	hostname := ""
	if info, err := e.hostInfo.GetByFingerprint(fp); err == nil && info.Hostname.Valid {
		hostname = info.Hostname.String
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}
	if hostname == "" {
		hostname = peerCert.Subject.CommonName
	}
	if hostname == "" {
		return "", ErrNoHostname
	}

	result, newFp, err := e.issue(nil, hostname, old)
	if err != nil {
		return "", err
	}
	if result.Outcome == OutcomeBusy {
		return "", ca.ErrBusy
	}

	if err := e.hostInfo.RewriteFingerprint(fp, newFp); err != nil {
		return "", err
	}

	metrics.CertsRenewed.Inc()
	return result.Bundle, nil
}

// issue runs the signing sequence under the CA lock and records the new
// certificate. previous is nil for a root enrollment. Returns the
// fingerprint of the issued certificate alongside the result.
func (e *Enroller) issue(peerIP net.IP, hostname string, previous *models.Certificate) (*Result, string, error) {
	release, err := e.issuer.Acquire()
	if errors.Is(err, ca.ErrBusy) {
		return &Result{Outcome: OutcomeBusy}, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	defer release()

	keyCSR, err := e.issuer.GenerateKeyAndCSR(hostname)
	if err != nil {
		return nil, "", err
	}

	signed, err := e.issuer.Sign(keyCSR.CSRPEM, hostname)
	if err != nil {
		return nil, "", err
	}

	cert, err := ca.ParseCertPEM(signed.CertPEM)
	if err != nil {
		return nil, "", err
	}
	fp := ca.Fingerprint(cert)

	row := &models.Certificate{
		Fingerprint: fp,
		CommonName:  hostname,
		CertPEM:     string(signed.CertPEM),
	}
	if previous != nil {
		row.Previous = sql.NullInt64{Int64: previous.CertID, Valid: true}
		row.First = previous.First
	}

	if _, err := e.certs.InsertIssued(row); err != nil {
		return nil, "", err
	}

	bundle, err := ca.BuildBundle(signed.CertPEM, keyCSR.KeyPEM, e.caCert)
	if err != nil {
		return nil, "", err
	}

	// The waiting entry has served its purpose; failing to remove it is
	// an annoyance, not an error.
	if peerIP != nil {
		if err := e.waiting.Delete(peerIP.String()); err != nil {
			log.Printf("Failed to delete waiting entry for %s: %v", peerIP, err)
		}
	}

	if previous == nil {
		metrics.CertsIssued.Inc()
	}

	return &Result{Outcome: OutcomeIssued, Bundle: bundle}, fp, nil
}
