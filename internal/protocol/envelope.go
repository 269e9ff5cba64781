package protocol

import (
	"strings"

	"github.com/bytedance/sonic"
)

// Message type constants shared by both sandbox kinds.
const (
	// ResponseSuffix marks a correlated reply to an earlier request.
	ResponseSuffix = ":response"

	// TypeInit is the readiness handshake. It is never correlated.
	TypeInit = "init"

	// TypeCommandExecute is the host-to-sandbox command invocation.
	TypeCommandExecute = "command:execute"
)

// payload key carrying the correlation token
const requestIDKey = "requestId"

// Envelope is the message unit exchanged across a sandbox boundary.
//
// Type is a dot/colon-namespaced capability identifier (e.g. "api:fs:read").
// A reply carries the same type with ResponseSuffix appended so receivers
// can tell correlated replies from unsolicited pushes.
type Envelope struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// IsResponse reports whether the envelope is a correlated reply.
func (e Envelope) IsResponse() bool {
	return strings.HasSuffix(e.Type, ResponseSuffix)
}

// IsInit reports whether the envelope is the readiness handshake.
func (e Envelope) IsInit() bool {
	return e.Type == TypeInit
}

// RequestID extracts the correlation token from the payload, or "" when
// the envelope is fire-and-forget.
func (e Envelope) RequestID() string {
	if e.Payload == nil {
		return ""
	}
	id, _ := e.Payload[requestIDKey].(string)
	return id
}

// RequestType strips ResponseSuffix, returning the type of the request
// this envelope answers.
func (e Envelope) RequestType() string {
	return strings.TrimSuffix(e.Type, ResponseSuffix)
}

// ResponseType returns the reply type for a request type.
func ResponseType(requestType string) string {
	return requestType + ResponseSuffix
}

// NewResponse builds a success reply correlated to requestID.
func NewResponse(requestType, requestID string, result interface{}) Envelope {
	return Envelope{
		Type: ResponseType(requestType),
		Payload: map[string]interface{}{
			requestIDKey: requestID,
			"result":     result,
		},
	}
}

// NewErrorResponse builds an error reply correlated to requestID.
func NewErrorResponse(requestType, requestID, message string) Envelope {
	return Envelope{
		Type: ResponseType(requestType),
		Payload: map[string]interface{}{
			requestIDKey: requestID,
			"error":      message,
		},
	}
}

// NewInit builds the readiness handshake message.
func NewInit() Envelope {
	return Envelope{Type: TypeInit}
}

// NewCommandExecute builds the host-to-sandbox command invocation.
func NewCommandExecute(commandID string) Envelope {
	return Envelope{
		Type:    TypeCommandExecute,
		Payload: map[string]interface{}{"id": commandID},
	}
}

// Decode parses a wire frame. A frame with a missing or empty type is
// dropped by returning ok=false; defensive deserialization, no error
// surfaced beyond the caller's debug log.
func Decode(data []byte) (Envelope, bool) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return Envelope{}, false
	}
	if env.Type == "" {
		return Envelope{}, false
	}
	return env, true
}

// Encode serializes an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	return sonic.Marshal(env)
}
