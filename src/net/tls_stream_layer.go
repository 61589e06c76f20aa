package net

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"time"
)

// exporter label for the keying material peers sign during identify
const identifyExporterLabel = "EXPORTER-hive-identify"

// TLSStreamLayer encrypts the connections of an underlying StreamLayer.
//
// Certificates are self-signed and not verified: peers authenticate each
// other afterwards by signing keying material exported from the TLS session
// with their node key (see the identify protocol).
type TLSStreamLayer struct {
	inner  StreamLayer
	config *tls.Config
}

// NewTLSStreamLayer wraps inner with TLS, using a fresh self-signed
// certificate.
func NewTLSStreamLayer(inner StreamLayer) (*TLSStreamLayer, error) {
	cert, err := selfSignedCertificate()
	if err != nil {
		return nil, err
	}

	return &TLSStreamLayer{
		inner:  inner,
		config: TLSConfig([]tls.Certificate{cert}),
	}, nil
}

// TLSConfig returns the TLS configuration shared by the dialing and listening
// sides of a TLSStreamLayer.
func TLSConfig(certificates []tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates:       certificates,
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		ClientAuth:         tls.RequireAnyClientCert,
	}
}

// Dial implements the StreamLayer interface. The handshake completes before
// Dial returns.
func (t *TLSStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	conn, err := t.inner.Dial(address, timeout)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(conn, t.config)
	if err := handshake(tlsConn, timeout); err != nil {
		conn.Close()
		return nil, err
	}

	return tlsConn, nil
}

// Accept implements the net.Listener interface. The handshake is left to the
// first read or write so that a slow client cannot stall the accept loop.
func (t *TLSStreamLayer) Accept() (net.Conn, error) {
	conn, err := t.inner.Accept()
	if err != nil {
		return nil, err
	}
	return tls.Server(conn, t.config), nil
}

// Close implements the net.Listener interface.
func (t *TLSStreamLayer) Close() error {
	return t.inner.Close()
}

// Addr implements the net.Listener interface.
func (t *TLSStreamLayer) Addr() net.Addr {
	return t.inner.Addr()
}

// AdvertiseAddr implements the SteamLayer interface.
func (t *TLSStreamLayer) AdvertiseAddr() string {
	return t.inner.AdvertiseAddr()
}

func handshake(conn *tls.Conn, timeout time.Duration) error {
	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
		defer conn.SetDeadline(time.Time{})
	}
	return conn.Handshake()
}

// channelBinding returns keying material that is identical on both ends of
// conn if conn is a TLS connection, and nil otherwise.
func channelBinding(conn net.Conn, timeout time.Duration) ([]byte, error) {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, nil
	}

	if err := handshake(tlsConn, timeout); err != nil {
		return nil, err
	}

	state := tlsConn.ConnectionState()
	return state.ExportKeyingMaterial(identifyExporterLabel, nil, 32)
}

func selfSignedCertificate() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "hive",
			Organization: []string{"Hive"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}, nil
}
