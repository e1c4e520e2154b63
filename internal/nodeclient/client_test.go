package nodeclient

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/dreamware/mpcengine/internal/mpcwire"
)

func selfSignedCert(t *testing.T) tls.Certificate {
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

// startEchoServer accepts one TLS connection and echoes every frame back
// with the same request_id, simulating a node server response.
func startEchoServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	cert := selfSignedCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msg, _, err := mpcwire.Decode(conn)
			if err != nil {
				return
			}
			reply := mpcwire.NewMessage(msg.Header.MessageType, msg.Body)
			reply.Header.RequestID = msg.Header.RequestID
			if err := mpcwire.Encode(conn, reply); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestClientSendRequestRoundTrip(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	c := New(Config{
		NodeID:    "node-1",
		Address:   addr,
		TLSConfig: &tls.Config{InsecureSkipVerify: true},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	resp, err := c.SendRequest(mpcwire.MessageTypeKeyGenPhase1, []byte("payload"))
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if string(resp.Body) != "payload" {
		t.Fatalf("response body = %q, want payload", resp.Body)
	}
}

func TestClientSendRequestBeforeConnectFails(t *testing.T) {
	c := New(Config{NodeID: "node-1", Address: "127.0.0.1:1"})
	if _, err := c.SendRequest(mpcwire.MessageTypeKeyGenPhase1, nil); err != ErrDisconnected {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}
}

func TestClientDisconnectFailsOutstandingPromises(t *testing.T) {
	cert := selfSignedCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	// Accept the handshake but never reply, so the request stays pending
	// until Disconnect is called.
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			buf := make([]byte, mpcwire.HeaderSize)
			conn.Read(buf)
			select {}
		}
	}()

	c := New(Config{
		NodeID:         "node-1",
		Address:        ln.Addr().String(),
		TLSConfig:      &tls.Config{InsecureSkipVerify: true},
		RequestTimeout: time.Minute,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_, ch, err := c.SendRequestAsync(mpcwire.MessageTypeKeyGenPhase1, nil)
	if err != nil {
		t.Fatalf("SendRequestAsync: %v", err)
	}

	c.Disconnect()

	select {
	case r := <-ch:
		if r.err != ErrDisconnected {
			t.Fatalf("err = %v, want ErrDisconnected", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Disconnect to fail the pending promise")
	}
}
