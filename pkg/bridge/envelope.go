package bridge

import (
	"encoding/json"
	"strings"
)

// Kind tells the page what to do with an envelope.
type Kind string

const (
	KindResolve Kind = "resolve"
	KindReject  Kind = "reject"
	KindInvoke  Kind = "invoke"
)

// Envelope is the only message native code sends to the page. Resolve and
// reject settle the promise registered under Token; invoke asks the page to
// call one of its own functions (see Invocable) with Payload.
type Envelope struct {
	Token   string          `json:"token,omitempty"`
	Kind    Kind            `json:"kind"`
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Invocable reports whether the page accepts an invoke envelope for method.
func Invocable(method string) bool {
	return method == MethodOverrideHints || strings.HasPrefix(method, "bluetooth")
}

// jsonPayload keeps valid JSON as is and wraps anything else in a string.
func jsonPayload(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return stringPayload(s)
}

func stringPayload(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

var (
	payloadTrue  = json.RawMessage("true")
	payloadFalse = json.RawMessage("false")
	payloadNull  = json.RawMessage("null")
)
