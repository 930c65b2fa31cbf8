// Package server implements the campus connection server: listeners, the
// per-connection handler, the dispatch table and the online registry.
package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NicolasHaas/campus/pkg/datastore"
	"github.com/NicolasHaas/campus/pkg/rbac"
	"github.com/NicolasHaas/campus/pkg/service"
)

// Dependencies holds external dependencies for the server.
// If Store is set the server assumes ownership and closes it on shutdown.
type Dependencies struct {
	Services service.Set
	Store    datastore.DataProviderFactory

	Policy  *rbac.Policy         // nil means rbac.DefaultPolicy()
	Metrics *prometheus.Registry // nil means a fresh registry
	Logger  *slog.Logger         // nil means slog.Default()
	Now     func() time.Time
}

// Server is the campus server.
type Server struct {
	cfg      Config
	services service.Set
	store    datastore.DataProviderFactory
	policy   *rbac.Policy
	table    *Table
	registry *Registry
	watchers *Watchers
	promReg  *prometheus.Registry
	metrics  *Metrics
	log      *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	conns   map[*Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// New creates a server. It fails if the dispatch table is incomplete.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		services: deps.Services,
		store:    deps.Store,
		policy:   deps.Policy,
		promReg:  deps.Metrics,
		log:      deps.Logger,
		now:      deps.Now,
		watchers: NewWatchers(),
		conns:    make(map[*Conn]struct{}),
	}
	if s.policy == nil {
		s.policy = rbac.DefaultPolicy()
	}
	if s.promReg == nil {
		s.promReg = prometheus.NewRegistry()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.metrics = NewMetrics(s.promReg)
	s.registry = NewRegistry(cfg.BroadcastWorkers, s.metrics)

	table, err := NewTable(s.routes())
	if err != nil {
		return nil, err
	}
	s.table = table
	return s, nil
}

// Registry returns the online session registry.
func (s *Server) Registry() *Registry { return s.registry }

// Watchers returns the resource watcher set.
func (s *Server) Watchers() *Watchers { return s.watchers }

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics { return s.metrics }

// ServeConn runs a connection handler on t until the connection ends.
// Listeners call it in a new goroutine per accepted connection.
func (s *Server) ServeConn(ctx context.Context, t Transport) {
	c := newConn(s, t)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = t.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		s.wg.Done()
	}()

	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ConnectionsActive.Inc()
	c.serve(ctx)
}

// closeConns disconnects every live connection and waits for their
// handlers to finish teardown.
func (s *Server) closeConns() {
	s.mu.Lock()
	s.closing = true
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}
	s.wg.Wait()
}

// loadOrGenerateTLS loads TLS cert/key from disk or generates a self-signed pair.
func loadOrGenerateTLS(cfg Config) (tls.Certificate, error) {
	certPath := cfg.CertFile
	keyPath := cfg.KeyFile

	if certPath == "" {
		certPath = filepath.Join(cfg.DataDir, "server.crt")
	}
	if keyPath == "" {
		keyPath = filepath.Join(cfg.DataDir, "server.key")
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil {
		slog.Info("loaded TLS certificate", "cert", certPath)
		return cert, nil
	}

	slog.Info("generating self-signed TLS certificate")
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}

	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{Organization: []string{"Campus Server"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create cert: %w", err)
	}
	privBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("marshal key: %w", err)
	}

	if err := writePEM(certPath, 0o644, "CERTIFICATE", certDER); err != nil {
		return tls.Certificate{}, err
	}
	if err := writePEM(keyPath, 0o600, "EC PRIVATE KEY", privBytes); err != nil {
		return tls.Certificate{}, err
	}

	slog.Info("TLS certificate generated", "cert", certPath, "key", keyPath)
	return tls.LoadX509KeyPair(certPath, keyPath)
}

func writePEM(path string, perm os.FileMode, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm) //nolint:gosec // path from server config
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
