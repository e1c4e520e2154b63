package walletserver

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dreamware/mpcengine/internal/walletproto"
)

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "wallet-under-test"},
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

// delayedEcho answers each signing request with success, delaying by an
// amount controlled by the request's key_id so the test can force
// out-of-order handler completion.
type delayedEcho struct {
	delays map[string]time.Duration
}

func (d *delayedEcho) HandleSigningRequest(req walletproto.WalletSigningRequest) walletproto.WalletSigningResponse {
	if delay, ok := d.delays[req.KeyID]; ok {
		time.Sleep(delay)
	}
	return walletproto.WalletSigningResponse{
		Header:           walletproto.ResponseHeader{Success: true},
		KeyID:            req.KeyID,
		FinalSignature:   []byte("sig-" + req.KeyID),
		SuccessfulShards: req.TotalShards,
	}
}

func startTestWalletServer(t *testing.T, signing SigningHandler) (addr string, stop func()) {
	t.Helper()
	cert := selfSignedCert(t)
	srv := NewServer(Config{
		ListenAddr: "127.0.0.1:0",
		TLSConfig:  &tls.Config{Certificates: []tls.Certificate{cert}},
		Signing:    signing,
	})

	ln, err := tls.Listen("tcp", "127.0.0.1:0", srv.cfg.TLSConfig)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.listener = ln
	ctx, cancel := context.WithCancel(context.Background())
	go srv.idleScanLoop(ctx)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(conn)
		}
	}()

	return ln.Addr().String(), func() {
		cancel()
		srv.Shutdown()
	}
}

func writeRequestFrame(t *testing.T, keyID string) []byte {
	t.Helper()
	msg := walletproto.WalletCoordinatorMessage{
		MessageType: walletproto.MessageTypeSigningRequest,
		Request: &walletproto.WalletSigningRequest{
			KeyID:           keyID,
			TransactionData: []byte{0x01},
			Threshold:       2,
			TotalShards:     3,
		},
	}
	body, err := walletproto.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	var b strings.Builder
	b.WriteString("POST /api/v1/sign HTTP/1.1\r\n")
	b.WriteString("Content-Type: application/x-protobuf\r\n")
	b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	b.WriteString("\r\n")
	return append([]byte(b.String()), body...)
}

func readResponseFrame(t *testing.T, r *bufio.Reader) walletproto.WalletCoordinatorMessage {
	t.Helper()
	statusLine, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.Contains(statusLine, "200") {
		t.Fatalf("status line = %q, want 200", statusLine)
	}
	contentLength := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read header: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, _ := strings.Cut(line, ":")
		if strings.EqualFold(strings.TrimSpace(name), "content-length") {
			contentLength, _ = strconv.Atoi(strings.TrimSpace(value))
		}
	}
	body := make([]byte, contentLength)
	if _, err := r.Read(body); err != nil && contentLength > 0 {
		t.Fatalf("read body: %v", err)
	}
	msg, err := walletproto.Unmarshal(body)
	if err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return msg
}

func TestWalletServerSingleRequestRoundTrip(t *testing.T) {
	addr, stop := startTestWalletServer(t, &delayedEcho{})
	defer stop()

	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(writeRequestFrame(t, "k1")); err != nil {
		t.Fatalf("write request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg := readResponseFrame(t, bufio.NewReader(conn))
	if msg.Response == nil || !msg.Response.Header.Success || msg.Response.KeyID != "k1" {
		t.Fatalf("response = %+v", msg.Response)
	}
}

func TestWalletServerPreservesOrderUnderOutOfOrderCompletion(t *testing.T) {
	// k1's handler is slow; k2's is fast. The response order on the wire
	// must still be k1 then k2.
	signing := &delayedEcho{delays: map[string]time.Duration{"k1": 200 * time.Millisecond}}
	addr, stop := startTestWalletServer(t, signing)
	defer stop()

	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Pipeline both requests before reading either response.
	if _, err := conn.Write(writeRequestFrame(t, "k1")); err != nil {
		t.Fatalf("write k1: %v", err)
	}
	if _, err := conn.Write(writeRequestFrame(t, "k2")); err != nil {
		t.Fatalf("write k2: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	reader := bufio.NewReader(conn)
	first := readResponseFrame(t, reader)
	second := readResponseFrame(t, reader)

	if first.Response.KeyID != "k1" {
		t.Fatalf("first response key_id = %q, want k1 (request order must be preserved)", first.Response.KeyID)
	}
	if second.Response.KeyID != "k2" {
		t.Fatalf("second response key_id = %q, want k2", second.Response.KeyID)
	}
}

func TestWalletServerMalformedBodyReturns400(t *testing.T) {
	addr, stop := startTestWalletServer(t, &delayedEcho{})
	defer stop()

	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	body := []byte{0xFF, 0xFF, 0xFF}
	var b strings.Builder
	b.WriteString("POST /api/v1/sign HTTP/1.1\r\n")
	b.WriteString("Content-Type: application/x-protobuf\r\n")
	b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n")
	conn.Write([]byte(b.String()))
	conn.Write(body)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	statusLine, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.Contains(statusLine, "400") {
		t.Fatalf("status line = %q, want 400", statusLine)
	}
}

func TestReadRawRequestRejectsOversizeHeader(t *testing.T) {
	pr, pw := net.Pipe()
	defer pr.Close()
	go func() {
		pw.Write([]byte("POST /x HTTP/1.1\r\n"))
		pw.Write([]byte(strings.Repeat("X-Pad: " + strings.Repeat("a", 200) + "\r\n", 100)))
		pw.Close()
	}()

	_, err := readRawRequest(bufio.NewReaderSize(pr, MaxHeaderSize))
	if err == nil {
		t.Fatal("expected error for oversize header")
	}
}
