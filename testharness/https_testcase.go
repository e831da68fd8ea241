package testharness

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/duskline/netasync/httpclient"
	"github.com/duskline/netasync/httpserver"
	"github.com/duskline/netasync/netstream"
	"github.com/duskline/netasync/web"
)

// AsyncHTTPSTestCase is AsyncHTTPTestCase with a self-signed TLS
// endpoint; Fetch configures the client with validate_cert=false,
// matching tinycore's AsyncHTTPSTestCase.
type AsyncHTTPSTestCase struct {
	*AsyncTestCase

	GetApp AppFactory

	Server *httpserver.Server
	Client *httpclient.Client

	addr    net.Addr
	started bool
}

// NewAsyncHTTPSTestCase mirrors NewAsyncHTTPTestCase for a TLS-listening server.
func NewAsyncHTTPSTestCase(getApp AppFactory) *AsyncHTTPSTestCase {
	return &AsyncHTTPSTestCase{AsyncTestCase: NewAsyncTestCase(), GetApp: getApp}
}

func (tc *AsyncHTTPSTestCase) ensureStarted() error {
	if tc.started {
		return nil
	}
	cert, err := selfSignedCert()
	if err != nil {
		return err
	}
	app := tc.GetApp()
	tc.Server = httpserver.New(tc.R, app)
	tlsConf := &tls.Config{Certificates: []tls.Certificate{cert}}
	if err := tc.Server.Listen("127.0.0.1:0", netstream.WithTLS(tlsConf)); err != nil {
		return err
	}
	tc.addr = tc.Server.Addr()
	tc.Client = httpclient.New(tc.R)
	tc.started = true
	return nil
}

func (tc *AsyncHTTPSTestCase) URL(path string) string {
	return "https://" + tc.addr.String() + path
}

// Fetch mirrors AsyncHTTPTestCase.Fetch but over TLS, with
// ValidateCert left false by default since the server presents a
// self-signed certificate no trust store recognizes.
func (tc *AsyncHTTPSTestCase) Fetch(path string, opts *httpclient.RequestOptions, timeout time.Duration) (*httpclient.Response, error) {
	if err := tc.ensureStarted(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &httpclient.RequestOptions{}
	}
	opts.URL = tc.URL(path)

	var resp *httpclient.Response
	tc.R.AddCallback(func() {
		tc.Client.Fetch(opts, func(r *httpclient.Response) {
			resp = r
			tc.Stop(nil)
		})
	})
	if _, err := tc.Wait(timeout); err != nil {
		return nil, fmt.Errorf("testharness: fetch %s: %w", path, err)
	}
	return resp, nil
}

// selfSignedCert generates an ephemeral ECDSA cert/key pair valid for
// localhost and 127.0.0.1, good for the lifetime of one test process.
func selfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, err
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
