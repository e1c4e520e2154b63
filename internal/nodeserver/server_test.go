package nodeserver

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/dreamware/mpcengine/internal/cryptoprovider"
	"github.com/dreamware/mpcengine/internal/mpcwire"
	"github.com/dreamware/mpcengine/internal/persistency"
)

func selfSignedServerCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "node-under-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	cert := selfSignedServerCert(t)
	store := persistency.NewStore()
	provider := cryptoprovider.New(store)

	srv := NewServer(Config{
		ListenAddr:           "127.0.0.1:0",
		TrustedCoordinatorIP: net.ParseIP("127.0.0.1"),
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
		HandlerThreads: 2,
		Provider:       provider,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.listener = ln
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		for {
			raw, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.admit(raw)
		}
	}()

	return ln.Addr().String(), func() {
		cancel()
		srv.PrepareShutdown(time.Second)
		ln.Close()
	}
}

func dialClient(t *testing.T, addr string) *tls.Conn {
	t.Helper()
	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestNodeServerPingPong(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn := dialClient(t, addr)
	defer conn.Close()

	ping := mpcwire.NewMessage(mpcwire.MessageTypePing, nil)
	ping.Header.RequestID = 7
	if err := mpcwire.Encode(conn, ping); err != nil {
		t.Fatalf("encode ping: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, result, err := mpcwire.Decode(conn)
	if err != nil {
		t.Fatalf("decode pong: %v", err)
	}
	if result != mpcwire.OK {
		t.Fatalf("pong validation = %v, want OK", result)
	}
	if msg.Header.RequestID != 7 {
		t.Fatalf("pong request_id = %d, want 7", msg.Header.RequestID)
	}
}

func TestNodeServerKeygenPhase1RoundTrip(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn := dialClient(t, addr)
	defer conn.Close()

	req := Request{
		KeyID:        "key-1",
		TenantID:     "tenant-a",
		Algorithm:    "ECDSA_SECP256K1",
		PlayerIDs:    []uint64{1},
		Threshold:    1,
		SelfPlayerID: 1,
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	msg := mpcwire.NewMessage(mpcwire.MessageTypeKeyGenPhase1, body)
	msg.Header.RequestID = 1
	if err := mpcwire.Encode(conn, msg); err != nil {
		t.Fatalf("encode request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	respMsg, result, err := mpcwire.Decode(conn)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result != mpcwire.OK {
		t.Fatalf("response validation = %v, want OK", result)
	}

	var resp Response
	if err := json.Unmarshal(respMsg.Body, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("response = %+v, want success", resp)
	}
}

func TestNodeServerRejectsUntrustedIP(t *testing.T) {
	cert := selfSignedServerCert(t)
	store := persistency.NewStore()
	provider := cryptoprovider.New(store)
	srv := NewServer(Config{
		TrustedCoordinatorIP: net.ParseIP("10.0.0.1"), // not the test dialer's IP
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
		Provider: provider,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	srv.listener = ln

	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		srv.admit(raw)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	if err == nil {
		t.Fatalf("expected connection to be closed without a TLS handshake")
	}
}
