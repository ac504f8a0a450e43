package ca

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"
)

const p12LineLength = 60

// BuildBundle assembles the enrollment response body: the certificate and
// key as literal PEM blocks, followed by a PKCS#12 container framed by
// BEGIN P12 / END P12 markers with 60-character base64 lines. Clients
// parse these markers by regex, so the framing is part of the protocol.
func BuildBundle(certPEM, keyPEM []byte, caCert *x509.Certificate) (string, error) {
	cert, err := ParseCertPEM(certPEM)
	if err != nil {
		return "", fmt.Errorf("failed to parse issued certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return "", fmt.Errorf("no PEM block in key")
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	p12, err := pkcs12.Legacy.Encode(key, cert, []*x509.Certificate{caCert}, "")
	if err != nil {
		return "", fmt.Errorf("failed to encode PKCS#12: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(certPEM)
	buf.Write(keyPEM)
	buf.WriteString("-----BEGIN P12-----\n")
	writeBase64Lines(&buf, p12)
	buf.WriteString("-----END P12-----\n")

	return buf.String(), nil
}

func writeBase64Lines(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > p12LineLength {
		buf.WriteString(encoded[:p12LineLength])
		buf.WriteByte('\n')
		encoded = encoded[p12LineLength:]
	}
	if len(encoded) > 0 {
		buf.WriteString(encoded)
		buf.WriteByte('\n')
	}
}
