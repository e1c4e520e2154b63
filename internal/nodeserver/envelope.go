package nodeserver

import (
	"encoding/json"

	"github.com/dreamware/mpcengine/internal/mpcwire"
)

// Request is the node<->coordinator body envelope carried inside a
// mpcwire.Message. The wire protocol's framing layer treats the body as
// opaque; this is this package's chosen shape for it, not something the
// framing codec knows about.
type Request struct {
	KeyID        string            `json:"key_id"`
	TenantID     string            `json:"tenant_id,omitempty"`
	TxID         string            `json:"tx_id,omitempty"`
	Algorithm    string            `json:"algorithm,omitempty"`
	PlayerIDs    []uint64          `json:"player_ids,omitempty"`
	Threshold    int               `json:"threshold,omitempty"`
	SelfPlayerID uint64            `json:"self_player_id,omitempty"`
	MessageHash  []byte            `json:"message_hash,omitempty"`
	Message      []byte            `json:"message,omitempty"`
	Artifacts    map[uint64][]byte `json:"artifacts,omitempty"`
	Rs           map[uint64][]byte `json:"rs,omitempty"`
	Commitments  map[uint64][]byte `json:"commitments,omitempty"`
}

// Response is the node<->coordinator body envelope for a phase reply.
type Response struct {
	Success      bool   `json:"success"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	PlayerID     uint64 `json:"player_id,omitempty"`
	Artifact     []byte `json:"artifact,omitempty"`
	PublicKey    []byte `json:"public_key,omitempty"`
	Algorithm    string `json:"algorithm,omitempty"`
	R            []byte `json:"r,omitempty"`
	S            []byte `json:"s,omitempty"`
	V            byte   `json:"v,omitempty"`
}

func decodeRequest(body []byte) (Request, error) {
	var req Request
	err := json.Unmarshal(body, &req)
	return req, err
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func errorResponse(code, message string) Response {
	return Response{Success: false, ErrorCode: code, ErrorMessage: message}
}

// frameResponse builds the mpcwire.Message for a Response, echoing the
// request's message type and request_id.
func frameResponse(msgType mpcwire.MessageType, requestID uint64, resp Response) (mpcwire.Message, error) {
	body, err := encodeResponse(resp)
	if err != nil {
		return mpcwire.Message{}, err
	}
	msg := mpcwire.NewMessage(msgType, body)
	msg.Header.RequestID = requestID
	return msg, nil
}
