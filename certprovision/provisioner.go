// Package certprovision bootstraps a real TLS certificate for
// netstream's server mode via ACME HTTP-01, serving the challenge
// response through this module's own web.Application/httpserver
// instead of writing it to a webroot directory — a self-hosted
// challenge responder rather than the filesystem- or agent-backed
// providers go-acme/lego ships.
//
// Grounded on irgordon-kari's api/internal/adapters/acme_provider.go
// and api/internal/core/services/ssl_service.go: the KariUser
// registration.User implementation, lego.NewConfig/NewClient,
// Challenge.SetHTTP01Provider, and Certificate.Obtain sequence are
// reused verbatim in shape; only the challenge.Provider's Present/
// CleanUp bodies differ, since this module has no gRPC system agent
// to delegate the file write to and instead exposes the token over
// its own HTTP server (the "self-hosted challenge responder" SPEC_FULL.md
// names).
package certprovision

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/duskline/netasync/applog"
	"github.com/duskline/netasync/web"
)

// acmeUser implements registration.User, matching
// acme_provider.go's KariUser (email + registration resource + the
// ACME account's private key).
type acmeUser struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

// Responder implements challenge.Provider (Present/CleanUp) by
// publishing the HTTP-01 key authorization into an in-memory map that
// a web.Handler registered at http01.ChallengePath reads back —
// acme_provider.go's KariChallengeProvider does the equivalent over
// gRPC to a webroot file; here the "webroot" is this module's own
// Application.
type Responder struct {
	mu       sync.Mutex
	keyAuths map[string]string
}

// NewResponder returns an empty challenge Responder; call Handler to
// obtain the web.Handler that must be mounted at
// "/.well-known/acme-challenge/(.*)" before Obtain is called.
func NewResponder() *Responder {
	return &Responder{keyAuths: make(map[string]string)}
}

func (r *Responder) Present(domain, token, keyAuth string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyAuths[http01.ChallengePath(token)] = keyAuth
	return nil
}

func (r *Responder) CleanUp(domain, token, keyAuth string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keyAuths, http01.ChallengePath(token))
	return nil
}

// Lookup returns the key authorization published for path, matching
// what the ACME server's validator fetches over plain HTTP.
func (r *Responder) Lookup(path string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.keyAuths[path]
	return v, ok
}

// Handler is the web.Handler to mount at the ACME challenge path; it
// never does anything but serve whatever Present last published.
type Handler struct {
	web.BaseHandler
	responder *Responder
}

func NewHandler(r *Responder) *Handler { return &Handler{responder: r} }

func (h *Handler) Get(ctx *web.Context) {
	keyAuth, ok := h.responder.Lookup(ctx.Request.Path)
	if !ok {
		ctx.SendError(404, nil)
		return
	}
	ctx.SetHeader("Content-Type", "text/plain")
	ctx.WriteString(keyAuth)
}

func (*Handler) SupportsETags() bool { return false }

// Provisioner drives the ACME account-registration and
// certificate-obtain sequence against a CA directory URL.
type Provisioner struct {
	CADirURL string
	Log      *applog.Logger
}

// New returns a Provisioner pointed at dirURL (production or staging);
// an empty dirURL defaults to Let's Encrypt production, same as
// ssl_service.go hardcoding acme-v02.api.letsencrypt.org.
func New(dirURL string) *Provisioner {
	if dirURL == "" {
		dirURL = "https://acme-v02.api.letsencrypt.org/directory"
	}
	return &Provisioner{CADirURL: dirURL, Log: applog.Default().WithField("component", "certprovision")}
}

// Obtain registers a throwaway ACME account for email, wires resp as
// the HTTP-01 challenge provider, and requests a bundled certificate
// for domain — the same three-step sequence
// AcmeProvider.ProvisionCertificate follows, minus the gRPC
// install step (the caller decides what to do with the PEM bytes).
func (p *Provisioner) Obtain(email, domain string, resp *Responder) (*certificate.Resource, error) {
	p.Log.Infof("requesting ACME certificate for %s", domain)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("certprovision: generate account key: %w", err)
	}
	user := &acmeUser{email: email, key: key}

	cfg := lego.NewConfig(user)
	cfg.CADirURL = p.CADirURL

	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("certprovision: new client: %w", err)
	}
	if err := client.Challenge.SetHTTP01Provider(resp); err != nil {
		return nil, fmt.Errorf("certprovision: set http01 provider: %w", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("certprovision: register account: %w", err)
	}
	user.registration = reg

	certs, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{domain},
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("certprovision: obtain certificate for %s: %w", domain, err)
	}
	p.Log.Infof("ACME certificate issued for %s", domain)
	return certs, nil
}
