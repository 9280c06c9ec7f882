// server/server.go
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dalemusser/docverify/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/acme/autocert"
)

// Server timeouts. WriteTimeout leaves room for a signup that waits on the
// upstream auth service.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second
	certWarmTimeout   = 60 * time.Second
)

// WithShutdownSignals returns a context canceled on SIGINT or SIGTERM. The
// returned cancel also stops signal delivery.
func WithShutdownSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			if logger != nil {
				logger.Info("shutdown signal received", zap.Stringer("signal", sig))
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// ListenAndServeWithContext serves handler until ctx is canceled, then shuts
// down gracefully. Depending on cfg it serves plain HTTP, HTTPS with
// Let's Encrypt (http-01 on :80), or HTTPS with a manual certificate and an
// HTTP to HTTPS redirect on :80.
func ListenAndServeWithContext(ctx context.Context, cfg *config.CoreConfig, handler http.Handler, logger *zap.Logger) error {
	if cfg == nil {
		return errors.New("server: cfg is nil")
	}
	if handler == nil {
		return errors.New("server: handler is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := newServer(handler, logger)
	var aux *http.Server // :80 for ACME challenges or redirects

	var ln net.Listener
	switch {
	case !cfg.HTTP.UseHTTPS:
		addr := ":" + strconv.Itoa(cfg.HTTP.HTTPPort)
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen http %s: %w", addr, err)
		}
		logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))

	case cfg.TLS.UseLetsEncrypt:
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
			Cache:      autocert.DirCache(cfg.TLS.LetsEncryptCacheDir),
			Email:      cfg.TLS.LetsEncryptEmail,
		}
		aux = newServer(m.HTTPHandler(httpRedirectHandler()), logger)
		if err := waitForCert(ctx, m, cfg.TLS.Domain, certWarmTimeout); err != nil {
			logger.Warn("autocert pre-warm failed; first HTTPS hits may see TLS errors", zap.Error(err))
		}
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, GetCertificate: m.GetCertificate}

	default:
		if err := validateTLSFiles(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
			var perm *permissionError
			if !errors.As(err, &perm) || cfg.Env == "prod" {
				return err
			}
			logger.Warn("TLS key file security warning (fatal in prod)", zap.Error(err))
		}
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		aux = newServer(httpRedirectHandler(), logger)
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
	}

	if srv.TLSConfig != nil {
		addr := ":" + strconv.Itoa(cfg.HTTP.HTTPSPort)
		base, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen https %s: %w", addr, err)
		}
		ln = tls.NewListener(base, srv.TLSConfig)
		logger.Info("HTTPS server listening",
			zap.String("addr", addr),
			zap.Bool("lets_encrypt", cfg.TLS.UseLetsEncrypt),
			zap.String("domain", cfg.TLS.Domain))
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	var auxErr chan error // nil (never ready) without an aux server
	if aux != nil {
		aux.Addr = ":80"
		auxErr = make(chan error, 1)
		go func() { auxErr <- aux.ListenAndServe() }()
		logger.Info("port 80 server listening (ACME/redirect)")
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if aux != nil {
			_ = aux.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil

	case err := <-serveErr:
		if aux != nil {
			_ = aux.Close()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("primary server error: %w", err)

	case err := <-auxErr:
		_ = srv.Close()
		return fmt.Errorf("port 80 server error: %w", err)
	}
}

func newServer(handler http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	if stdlog, err := zap.NewStdLogAt(logger, zapcore.WarnLevel); err == nil {
		srv.ErrorLog = stdlog
	}
	return srv
}

// httpRedirectHandler redirects to the HTTPS version of the request URL.
// Hosts and URIs with control characters are rejected so the Location
// header cannot be used for injection.
func httpRedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqURI := r.URL.RequestURI()
		if !isValidHost(r.Host) || hasControlChars(reqURI) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://"+r.Host+reqURI, http.StatusMovedPermanently)
	})
}

func hasControlChars(s string) bool {
	for _, c := range s {
		if c < 0x20 || c == 0x7f {
			return true
		}
	}
	return false
}

// isValidHost accepts host or host:port, including bracketed IPv6.
func isValidHost(host string) bool {
	if host == "" || hasControlChars(host) || strings.ContainsAny(host, "/\\@ ") {
		return false
	}
	hostPart := host
	if h, port, err := net.SplitHostPort(host); err == nil {
		n, perr := strconv.Atoi(port)
		if perr != nil || n <= 0 || n > 65535 {
			return false
		}
		hostPart = h
	} else if strings.HasPrefix(host, "[") {
		hostPart = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if hostPart == "" {
		return false
	}
	if strings.Contains(hostPart, ":") {
		ip, _, _ := strings.Cut(hostPart, "%")
		return net.ParseIP(ip) != nil
	}
	return true
}

// permissionError reports a TLS key readable by group or others.
type permissionError struct {
	file string
	perm os.FileMode
}

func (e *permissionError) Error() string {
	return fmt.Sprintf("TLS key file %s has overly permissive permissions %o (recommended: 0600)", e.file, e.perm)
}

// validateTLSFiles checks that both files exist and are regular files. A
// key readable by group or others yields *permissionError.
func validateTLSFiles(certFile, keyFile string) error {
	if certFile == "" || keyFile == "" {
		return errors.New("manual TLS selected but cert_file / key_file not provided")
	}
	for _, f := range []string{certFile, keyFile} {
		info, err := os.Stat(f)
		if err != nil {
			return fmt.Errorf("cannot access TLS file %s: %w", f, err)
		}
		if info.IsDir() {
			return fmt.Errorf("TLS path is a directory, not a file: %s", f)
		}
	}

	if runtime.GOOS == "windows" {
		return nil
	}
	info, _ := os.Stat(keyFile)
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return &permissionError{file: keyFile, perm: perm}
	}
	return nil
}

// waitForCert polls autocert until it has a certificate for host, ctx ends
// or timeout passes.
func waitForCert(ctx context.Context, m *autocert.Manager, host string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		_, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: host})
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for cert for %q: %w (last error: %v)", host, ctx.Err(), err)
		case <-ticker.C:
		}
	}
}
