// Package relay receives invites from peers on the local network. Each device advertises a TLS endpoint over
// mDNS named after its public key; a peer looks the endpoint up and posts the invite sealed to that key.
package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	crypto_rand "crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/meow-io/go-hush/config"
	"github.com/meow-io/go-hush/crypto"
	"go.uber.org/zap"
)

const (
	invitePath  = "/invite"
	contentType = "application/x-hush-invite"
	maxBodySize = 64 * 1024
)

var ErrPeerNotFound = errors.New("relay: peer not found")

// Called with every invite received.
type JoinFunc func(ctx context.Context, invite string) error

type Relay struct {
	config *config.Config
	log    *zap.SugaredLogger
	key    *crypto.Key
	join   JoinFunc
	cert   tls.Certificate

	lock     sync.Mutex
	server   *http.Server
	zeroconf *zeroconf.Server
	port     int
}

func New(c *config.Config, key *crypto.Key, join JoinFunc) (*Relay, error) {
	cert, err := newCertificate()
	if err != nil {
		return nil, err
	}
	return &Relay{
		config: c,
		log:    c.Logger("relay"),
		key:    key,
		join:   join,
		cert:   cert,
	}, nil
}

// The mDNS instance name a device with publicKey registers under.
func Instance(publicKey string) (string, error) {
	pub, err := crypto.ParsePublicKey(publicKey)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(crypto.Keccak256(pub.SerializeCompressed())[:8]), nil
}

// Monitor starts listening for invites. It does nothing if already listening.
func (r *Relay) Monitor(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.server != nil {
		return nil
	}
	return r.listen()
}

// Reconnect restarts the listener and re-registers the service.
func (r *Relay) Reconnect(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.stop(); err != nil {
		r.log.Warnf("error stopping listener: %v", err)
	}
	return r.listen()
}

func (r *Relay) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.stop()
}

// The port being listened on, 0 if not listening.
func (r *Relay) Port() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.port
}

func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(invitePath, r.serveInvite)
	return mux
}

func (r *Relay) serveInvite(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
	if err != nil {
		r.log.Warnf("error reading body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	from, invite, err := openInvite(r.key, body)
	if err != nil {
		r.log.Warnf("unable to open invite: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.log.Debugf("received invite from %s", from)
	if err := r.join(req.Context(), invite); err != nil {
		r.log.Warnf("error joining from invite sent by %s: %v", from, err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (r *Relay) listen() error {
	ln, err := net.Listen("tcp", ":0") // #nosec G102
	if err != nil {
		return err
	}
	port := ln.Addr().(*net.TCPAddr).Port

	instance, err := Instance(r.key.PublicKeyHex())
	if err != nil {
		_ = ln.Close()
		return err
	}
	service, err := zeroconf.Register(instance, r.config.RelayServiceType, "local.", port, []string{r.key.PublicKeyHex()}, nil)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("relay: error registering %s: %w", instance, err)
	}
	r.log.Debugf("registered %s on port %d", instance, port)

	server := &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 500 * time.Millisecond,
		ReadTimeout:       time.Duration(r.config.RequestTimeoutMs) * time.Millisecond,
		TLSConfig: &tls.Config{
			MinVersion:   tls.VersionTLS13,
			Certificates: []tls.Certificate{r.cert},
		},
	}
	go func() {
		if err := server.Serve(tls.NewListener(ln, server.TLSConfig)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Warnf("error serving %v", err)
		}
	}()
	r.server, r.zeroconf, r.port = server, service, port
	return nil
}

func (r *Relay) stop() error {
	if r.server == nil {
		return nil
	}
	r.zeroconf.Shutdown()
	err := r.server.Close()
	r.server, r.zeroconf, r.port = nil, nil, 0
	return err
}

// Notify delivers invite to the device holding peer, looking it up on the local network.
func (r *Relay) Notify(ctx context.Context, peer, invite string) error {
	body, err := sealInvite(r.key, peer, invite)
	if err != nil {
		return err
	}
	instance, err := Instance(peer)
	if err != nil {
		return err
	}
	pub, err := crypto.ParsePublicKey(peer)
	if err != nil {
		return err
	}
	want := crypto.CompressedPublicKey(pub)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	lookupCtx, cancel := context.WithTimeout(ctx, time.Duration(r.config.LookupTimeoutMs)*time.Millisecond)
	defer cancel()
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Lookup(lookupCtx, instance, r.config.RelayServiceType, "local.", entries); err != nil {
		return err
	}

	for {
		select {
		case <-lookupCtx.Done():
			return fmt.Errorf("%w: %s", ErrPeerNotFound, instance)
		case entry, ok := <-entries:
			if !ok {
				return fmt.Errorf("%w: %s", ErrPeerNotFound, instance)
			}
			if len(entry.Text) == 0 || entry.Text[0] != want {
				continue
			}
			var err error
			for _, addr := range entryAddrs(entry) {
				if err = r.deliver(ctx, addr, body); err == nil {
					r.log.Debugf("delivered invite to %s at %s", instance, addr)
					return nil
				}
			}
			return err
		}
	}
}

func entryAddrs(entry *zeroconf.ServiceEntry) []string {
	addrs := []string{}
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, fmt.Sprintf("https://%s:%d", ip.String(), entry.Port))
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, fmt.Sprintf("https://[%s]:%d", ip.String(), entry.Port))
	}
	return addrs
}

func (r *Relay) deliver(ctx context.Context, base string, body []byte) error {
	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: true,
			},
		},
	} // #nosec G402

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.config.RequestTimeoutMs)*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+invitePath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay: %s refused invite with status %d", base, resp.StatusCode)
	}
	return nil
}

func newCertificate() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), crypto_rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(now.UnixNano()),
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		BasicConstraintsValid: true,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		KeyUsage:              x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(crypto_rand.Reader, template, template, priv.Public(), priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
