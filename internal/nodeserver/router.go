package nodeserver

import (
	"github.com/dreamware/mpcengine/internal/cryptoprovider"
	"github.com/dreamware/mpcengine/internal/mpcwire"
)

// messageTypeNames maps every framed MessageType to the handler key
// NewHandlers registers. Ping is dispatched separately by the server and
// never reaches this table.
var messageTypeNames = map[mpcwire.MessageType]string{
	mpcwire.MessageTypeKeyGenPhase1: "keygen_phase1",
	mpcwire.MessageTypeKeyGenPhase2: "keygen_phase2",
	mpcwire.MessageTypeKeyGenPhase3: "keygen_phase3",
	mpcwire.MessageTypeKeyGenPhase4: "keygen_phase4",
	mpcwire.MessageTypeKeyGenPhase5: "keygen_phase5",
	mpcwire.MessageTypeECDSAPhase1:  "ecdsa_phase1",
	mpcwire.MessageTypeECDSAPhase2:  "ecdsa_phase2",
	mpcwire.MessageTypeECDSAPhase3:  "ecdsa_phase3",
	mpcwire.MessageTypeECDSAPhase4:  "ecdsa_phase4",
	mpcwire.MessageTypeECDSAPhase5:  "ecdsa_phase5",
	mpcwire.MessageTypeEdDSAPhase1:  "eddsa_phase1",
	mpcwire.MessageTypeEdDSAPhase2:  "eddsa_phase2",
	mpcwire.MessageTypeEdDSAPhase3:  "eddsa_phase3",
	mpcwire.MessageTypeEdDSAPhase4:  "eddsa_phase4",
	mpcwire.MessageTypeEdDSAPhase5:  "eddsa_phase5",
}

// Router owns a table of handler functions keyed by handler name;
// messageTypeNames maps each MessageType to its name. Unknown or unbound
// types return a structured error response instead of tearing down the
// connection, per spec.md §4.5.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter builds a Router dispatching to provider's three capabilities.
func NewRouter(provider *cryptoprovider.Provider) *Router {
	return &Router{handlers: NewHandlers(provider)}
}

// Dispatch decodes msg's body as a Request, runs the bound handler (if
// any), and returns the framed Response message. A panic inside a
// handler is recovered and converted into an Internal error response —
// it never propagates to the caller.
func (r *Router) Dispatch(msg mpcwire.Message) (out mpcwire.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			resp := errorResponse("Internal", "handler panicked")
			out, _ = frameResponse(msg.Header.MessageType, msg.Header.RequestID, resp)
		}
	}()

	name, bound := messageTypeNames[msg.Header.MessageType]
	if !bound {
		resp := errorResponse("InvalidMessageType", "no handler bound for this message type")
		framed, _ := frameResponse(msg.Header.MessageType, msg.Header.RequestID, resp)
		return framed
	}
	handler, ok := r.handlers[name]
	if !ok {
		resp := errorResponse("InvalidMessageType", "no handler bound for this message type")
		framed, _ := frameResponse(msg.Header.MessageType, msg.Header.RequestID, resp)
		return framed
	}

	req, err := decodeRequest(msg.Body)
	if err != nil {
		resp := errorResponse("CorruptedData", "malformed request body: "+err.Error())
		framed, _ := frameResponse(msg.Header.MessageType, msg.Header.RequestID, resp)
		return framed
	}

	resp := handler(req)
	framed, err := frameResponse(msg.Header.MessageType, msg.Header.RequestID, resp)
	if err != nil {
		fallback := errorResponse("Internal", "failed to encode response: "+err.Error())
		framed, _ = frameResponse(msg.Header.MessageType, msg.Header.RequestID, fallback)
	}
	return framed
}
