package walletserver

import (
	"github.com/dreamware/mpcengine/internal/walletproto"
)

// SigningHandler processes one decoded WalletSigningRequest and produces
// the matching response. The coordinator orchestrator implements this.
type SigningHandler interface {
	HandleSigningRequest(req walletproto.WalletSigningRequest) walletproto.WalletSigningResponse
}

// Router dispatches a WalletCoordinatorMessage by its message_type
// discriminator, mirroring WalletMessageRouter from the original
// implementation (an array of function pointers keyed by message type).
type Router struct {
	signing SigningHandler
}

// NewRouter builds a Router backed by a SigningHandler.
func NewRouter(signing SigningHandler) *Router {
	return &Router{signing: signing}
}

// Dispatch routes msg to the handler registered for its message_type,
// returning a signing_response WalletCoordinatorMessage either way.
func (r *Router) Dispatch(msg walletproto.WalletCoordinatorMessage) walletproto.WalletCoordinatorMessage {
	switch msg.MessageType {
	case walletproto.MessageTypeSigningRequest:
		if msg.Request == nil {
			return errorMessage("missing signing_request payload")
		}
		resp := r.signing.HandleSigningRequest(*msg.Request)
		return walletproto.WalletCoordinatorMessage{
			MessageType: walletproto.MessageTypeSigningResponse,
			Response:    &resp,
		}
	default:
		return errorMessage("unknown message_type")
	}
}

func errorMessage(msg string) walletproto.WalletCoordinatorMessage {
	return walletproto.WalletCoordinatorMessage{
		MessageType: walletproto.MessageTypeSigningResponse,
		Response: &walletproto.WalletSigningResponse{
			Header: walletproto.ResponseHeader{Success: false, ErrorMessage: msg},
		},
	}
}
