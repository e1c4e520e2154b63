package walletproto

import (
	"bytes"
	"testing"
)

func TestSigningRequestRoundTrip(t *testing.T) {
	msg := WalletCoordinatorMessage{
		MessageType: MessageTypeSigningRequest,
		Request: &WalletSigningRequest{
			Header: RequestHeader{
				RequestID:     42,
				Timestamp:     1700000000,
				CoordinatorID: "coordinator-1",
			},
			KeyID:           "k1",
			TransactionData: bytes.Repeat([]byte{0x01}, 32),
			Threshold:       2,
			TotalShards:     3,
		},
	}

	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.MessageType != MessageTypeSigningRequest {
		t.Fatalf("MessageType = %v, want signing_request", got.MessageType)
	}
	if got.Request == nil {
		t.Fatal("Request = nil")
	}
	if got.Request.Header.RequestID != 42 || got.Request.Header.CoordinatorID != "coordinator-1" {
		t.Fatalf("Header = %+v", got.Request.Header)
	}
	if got.Request.KeyID != "k1" || got.Request.Threshold != 2 || got.Request.TotalShards != 3 {
		t.Fatalf("Request = %+v", got.Request)
	}
	if !bytes.Equal(got.Request.TransactionData, msg.Request.TransactionData) {
		t.Fatalf("TransactionData mismatch")
	}
}

func TestSigningResponseRoundTrip(t *testing.T) {
	msg := WalletCoordinatorMessage{
		MessageType: MessageTypeSigningResponse,
		Response: &WalletSigningResponse{
			Header:           ResponseHeader{Success: true},
			KeyID:            "k1",
			FinalSignature:   bytes.Repeat([]byte{0xAB}, 65),
			ShardSignatures:  [][]byte{{0x01}, {0x02}, {0x03}},
			SuccessfulShards: 3,
		},
	}

	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Response == nil {
		t.Fatal("Response = nil")
	}
	if !got.Response.Header.Success {
		t.Fatal("Header.Success = false, want true")
	}
	if len(got.Response.ShardSignatures) != 3 {
		t.Fatalf("len(ShardSignatures) = %d, want 3", len(got.Response.ShardSignatures))
	}
	if got.Response.SuccessfulShards != 3 {
		t.Fatalf("SuccessfulShards = %d, want 3", got.Response.SuccessfulShards)
	}
}

func TestSigningResponseErrorMessage(t *testing.T) {
	msg := WalletCoordinatorMessage{
		MessageType: MessageTypeSigningResponse,
		Response: &WalletSigningResponse{
			Header: ResponseHeader{Success: false, ErrorMessage: "quorum not reached"},
			KeyID:  "k1",
		},
	}
	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Response.Header.Success {
		t.Fatal("Header.Success = true, want false")
	}
	if got.Response.Header.ErrorMessage != "quorum not reached" {
		t.Fatalf("ErrorMessage = %q", got.Response.Header.ErrorMessage)
	}
}

func TestUnmarshalMalformedReturnsError(t *testing.T) {
	if _, err := Unmarshal([]byte{0xFF}); err == nil {
		t.Fatal("expected error for malformed protobuf bytes")
	}
}
