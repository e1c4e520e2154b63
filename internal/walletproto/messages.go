package walletproto

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// RequestHeader carries the wallet-assigned request identity.
type RequestHeader struct {
	RequestID     uint64
	Timestamp     uint64
	CoordinatorID string
}

// WalletSigningRequest is the payload of a signing WalletCoordinatorMessage.
type WalletSigningRequest struct {
	Header          RequestHeader
	KeyID           string
	TransactionData []byte
	Threshold       uint32
	TotalShards     uint32
}

// ResponseHeader carries the outcome of a signing request.
type ResponseHeader struct {
	Success      bool
	ErrorMessage string
}

// WalletSigningResponse is the payload of a signing_response
// WalletCoordinatorMessage.
type WalletSigningResponse struct {
	Header           ResponseHeader
	KeyID            string
	FinalSignature   []byte
	ShardSignatures  [][]byte
	SuccessfulShards uint32
}

// MessageType discriminates a WalletCoordinatorMessage's oneof payload.
type MessageType uint32

const (
	MessageTypeUnknown         MessageType = 0
	MessageTypeSigningRequest  MessageType = 1
	MessageTypeSigningResponse MessageType = 2
)

// WalletCoordinatorMessage is the top-level envelope exchanged over the
// wallet HTTPS ingress, per spec.md §4.7/§7.
type WalletCoordinatorMessage struct {
	MessageType MessageType
	Request     *WalletSigningRequest
	Response    *WalletSigningResponse
}

// field numbers, fixed by the wire contract.
const (
	fieldMessageType     = 1
	fieldSigningRequest  = 2
	fieldSigningResponse = 3

	reqFieldHeader          = 1
	reqFieldKeyID           = 2
	reqFieldTransactionData = 3
	reqFieldThreshold       = 4
	reqFieldTotalShards     = 5

	reqHeaderFieldRequestID     = 1
	reqHeaderFieldTimestamp     = 2
	reqHeaderFieldCoordinatorID = 3

	respFieldHeader           = 1
	respFieldKeyID            = 2
	respFieldFinalSignature   = 3
	respFieldShardSignatures  = 4
	respFieldSuccessfulShards = 5

	respHeaderFieldSuccess      = 1
	respHeaderFieldErrorMessage = 2
)

// Marshal encodes a WalletCoordinatorMessage into its Protobuf wire form.
func Marshal(m WalletCoordinatorMessage) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldMessageType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.MessageType))

	if m.Request != nil {
		reqBytes := marshalSigningRequest(*m.Request)
		b = protowire.AppendTag(b, fieldSigningRequest, protowire.BytesType)
		b = protowire.AppendBytes(b, reqBytes)
	}
	if m.Response != nil {
		respBytes := marshalSigningResponse(*m.Response)
		b = protowire.AppendTag(b, fieldSigningResponse, protowire.BytesType)
		b = protowire.AppendBytes(b, respBytes)
	}
	return b, nil
}

func marshalRequestHeader(h RequestHeader) []byte {
	var b []byte
	b = protowire.AppendTag(b, reqHeaderFieldRequestID, protowire.VarintType)
	b = protowire.AppendVarint(b, h.RequestID)
	b = protowire.AppendTag(b, reqHeaderFieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, h.Timestamp)
	if h.CoordinatorID != "" {
		b = protowire.AppendTag(b, reqHeaderFieldCoordinatorID, protowire.BytesType)
		b = protowire.AppendString(b, h.CoordinatorID)
	}
	return b
}

func marshalSigningRequest(r WalletSigningRequest) []byte {
	var b []byte
	headerBytes := marshalRequestHeader(r.Header)
	b = protowire.AppendTag(b, reqFieldHeader, protowire.BytesType)
	b = protowire.AppendBytes(b, headerBytes)
	b = protowire.AppendTag(b, reqFieldKeyID, protowire.BytesType)
	b = protowire.AppendString(b, r.KeyID)
	b = protowire.AppendTag(b, reqFieldTransactionData, protowire.BytesType)
	b = protowire.AppendBytes(b, r.TransactionData)
	b = protowire.AppendTag(b, reqFieldThreshold, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Threshold))
	b = protowire.AppendTag(b, reqFieldTotalShards, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.TotalShards))
	return b
}

func marshalResponseHeader(h ResponseHeader) []byte {
	var b []byte
	b = protowire.AppendTag(b, respHeaderFieldSuccess, protowire.VarintType)
	if h.Success {
		b = protowire.AppendVarint(b, 1)
	} else {
		b = protowire.AppendVarint(b, 0)
	}
	if h.ErrorMessage != "" {
		b = protowire.AppendTag(b, respHeaderFieldErrorMessage, protowire.BytesType)
		b = protowire.AppendString(b, h.ErrorMessage)
	}
	return b
}

func marshalSigningResponse(r WalletSigningResponse) []byte {
	var b []byte
	headerBytes := marshalResponseHeader(r.Header)
	b = protowire.AppendTag(b, respFieldHeader, protowire.BytesType)
	b = protowire.AppendBytes(b, headerBytes)
	b = protowire.AppendTag(b, respFieldKeyID, protowire.BytesType)
	b = protowire.AppendString(b, r.KeyID)
	b = protowire.AppendTag(b, respFieldFinalSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, r.FinalSignature)
	for _, sig := range r.ShardSignatures {
		b = protowire.AppendTag(b, respFieldShardSignatures, protowire.BytesType)
		b = protowire.AppendBytes(b, sig)
	}
	b = protowire.AppendTag(b, respFieldSuccessfulShards, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.SuccessfulShards))
	return b
}

// Unmarshal decodes a Protobuf-encoded WalletCoordinatorMessage.
func Unmarshal(data []byte) (WalletCoordinatorMessage, error) {
	var m WalletCoordinatorMessage
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return m, errors.Wrap(protowire.ParseError(n), "walletproto: consume tag")
		}
		data = data[n:]

		switch num {
		case fieldMessageType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "walletproto: message_type")
			}
			m.MessageType = MessageType(v)
			data = data[n:]
		case fieldSigningRequest:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "walletproto: signing_request")
			}
			req, err := unmarshalSigningRequest(v)
			if err != nil {
				return m, err
			}
			m.Request = &req
			data = data[n:]
		case fieldSigningResponse:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "walletproto: signing_response")
			}
			resp, err := unmarshalSigningResponse(v)
			if err != nil {
				return m, err
			}
			m.Response = &resp
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "walletproto: skip unknown field")
			}
			data = data[n:]
		}
	}
	return m, nil
}

func unmarshalRequestHeader(data []byte) (RequestHeader, error) {
	var h RequestHeader
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return h, errors.Wrap(protowire.ParseError(n), "walletproto: request header tag")
		}
		data = data[n:]
		switch num {
		case reqHeaderFieldRequestID:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return h, errors.Wrap(protowire.ParseError(n), "walletproto: request_id")
			}
			h.RequestID = v
			data = data[n:]
		case reqHeaderFieldTimestamp:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return h, errors.Wrap(protowire.ParseError(n), "walletproto: timestamp")
			}
			h.Timestamp = v
			data = data[n:]
		case reqHeaderFieldCoordinatorID:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return h, errors.Wrap(protowire.ParseError(n), "walletproto: coordinator_id")
			}
			h.CoordinatorID = string(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return h, errors.Wrap(protowire.ParseError(n), "walletproto: skip request header field")
			}
			data = data[n:]
		}
	}
	return h, nil
}

func unmarshalSigningRequest(data []byte) (WalletSigningRequest, error) {
	var r WalletSigningRequest
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return r, errors.Wrap(protowire.ParseError(n), "walletproto: signing request tag")
		}
		data = data[n:]
		switch num {
		case reqFieldHeader:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: header")
			}
			h, err := unmarshalRequestHeader(v)
			if err != nil {
				return r, err
			}
			r.Header = h
			data = data[n:]
		case reqFieldKeyID:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: key_id")
			}
			r.KeyID = string(v)
			data = data[n:]
		case reqFieldTransactionData:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: transaction_data")
			}
			r.TransactionData = append([]byte(nil), v...)
			data = data[n:]
		case reqFieldThreshold:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: threshold")
			}
			r.Threshold = uint32(v)
			data = data[n:]
		case reqFieldTotalShards:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: total_shards")
			}
			r.TotalShards = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: skip signing request field")
			}
			data = data[n:]
		}
	}
	return r, nil
}

func unmarshalResponseHeader(data []byte) (ResponseHeader, error) {
	var h ResponseHeader
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return h, errors.Wrap(protowire.ParseError(n), "walletproto: response header tag")
		}
		data = data[n:]
		switch num {
		case respHeaderFieldSuccess:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return h, errors.Wrap(protowire.ParseError(n), "walletproto: success")
			}
			h.Success = v != 0
			data = data[n:]
		case respHeaderFieldErrorMessage:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return h, errors.Wrap(protowire.ParseError(n), "walletproto: error_message")
			}
			h.ErrorMessage = string(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return h, errors.Wrap(protowire.ParseError(n), "walletproto: skip response header field")
			}
			data = data[n:]
		}
	}
	return h, nil
}

func unmarshalSigningResponse(data []byte) (WalletSigningResponse, error) {
	var r WalletSigningResponse
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return r, errors.Wrap(protowire.ParseError(n), "walletproto: signing response tag")
		}
		data = data[n:]
		switch num {
		case respFieldHeader:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: header")
			}
			h, err := unmarshalResponseHeader(v)
			if err != nil {
				return r, err
			}
			r.Header = h
			data = data[n:]
		case respFieldKeyID:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: key_id")
			}
			r.KeyID = string(v)
			data = data[n:]
		case respFieldFinalSignature:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: final_signature")
			}
			r.FinalSignature = append([]byte(nil), v...)
			data = data[n:]
		case respFieldShardSignatures:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: shard_signatures")
			}
			r.ShardSignatures = append(r.ShardSignatures, append([]byte(nil), v...))
			data = data[n:]
		case respFieldSuccessfulShards:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: successful_shards")
			}
			r.SuccessfulShards = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return r, errors.Wrap(protowire.ParseError(n), "walletproto: skip signing response field")
			}
			data = data[n:]
		}
	}
	return r, nil
}
