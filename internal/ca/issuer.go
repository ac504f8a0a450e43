package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

const keyBits = 4096

// Issuer signs client certificates with the CA key. The underlying serial
// log is not safe for concurrent use, so every signing sequence must run
// under the advisory lock: Acquire, then GenerateKeyAndCSR and Sign, then
// release.
type Issuer struct {
	keyPair  *KeyPair
	serial   *serialLog
	lock     fileLock
	validity time.Duration
}

// NewIssuer creates an issuer around the CA key pair and serial log.
func NewIssuer(kp *KeyPair, serialPath, lockPath string, validity time.Duration) *Issuer {
	return &Issuer{
		keyPair:  kp,
		serial:   &serialLog{path: serialPath},
		lock:     fileLock{path: lockPath},
		validity: validity,
	}
}

// Acquire takes the process-wide signing lock without blocking. It
// returns ErrBusy when another signing operation is in flight; the
// returned release function must be called exactly once otherwise.
func (i *Issuer) Acquire() (func(), error) {
	if err := i.lock.TryAcquire(); err != nil {
		return nil, err
	}
	return i.lock.Release, nil
}

// KeyAndCSR is the output of GenerateKeyAndCSR
type KeyAndCSR struct {
	KeyPEM []byte
	CSRPEM []byte
}

// GenerateKeyAndCSR generates a fresh 4096-bit RSA key and a CSR for the
// given common name.
func (i *Issuer) GenerateKeyAndCSR(commonName string) (*KeyAndCSR, error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	tmpl := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: commonName},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, tmpl, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSR: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	csrPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE REQUEST",
		Bytes: csrDER,
	})

	return &KeyAndCSR{KeyPEM: keyPEM, CSRPEM: csrPEM}, nil
}

// SignedCert is the output of Sign
type SignedCert struct {
	CertPEM []byte
	Serial  int64
}

// Sign issues a certificate for the CSR under the given common name. A
// serial is drawn from the log before signing because it becomes the
// certificate's SerialNumber; a failed signing therefore leaves a gap
// in the counter, which is harmless for a monotonic sequence. The
// caller must hold the signing lock.
func (i *Issuer) Sign(csrPEM []byte, commonName string) (*SignedCert, error) {
	block, _ := pem.Decode(csrPEM)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return nil, fmt.Errorf("no CERTIFICATE REQUEST block in CSR")
	}

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSR: %w", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("CSR signature check failed: %w", err)
	}

	serial, err := i.serial.Next()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(i.validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, i.keyPair.Cert, csr.PublicKey, i.keyPair.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	})

	return &SignedCert{CertPEM: certPEM, Serial: serial}, nil
}

// Fingerprint computes the SHA-1 fingerprint of a certificate: uppercase
// hex of the DER bytes, no separators. This is the key used throughout
// the database.
func Fingerprint(cert *x509.Certificate) string {
	return fmt.Sprintf("%X", sha1.Sum(cert.Raw))
}

// ParseCertPEM parses the first CERTIFICATE block in a PEM buffer.
func ParseCertPEM(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no CERTIFICATE block")
	}
	return x509.ParseCertificate(block.Bytes)
}
