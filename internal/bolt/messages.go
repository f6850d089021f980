package bolt

import (
	"bytes"
	"fmt"

	"github.com/cyphergraph/go-cypher-bolt/internal/packstream"
)

// Message type bytes, per spec.md's External Interfaces table.
const (
	MsgHello    byte = 0x01
	MsgGoodbye  byte = 0x02
	MsgReset    byte = 0x0F
	MsgRun      byte = 0x10
	MsgBegin    byte = 0x11
	MsgCommit   byte = 0x12
	MsgRollback byte = 0x13
	MsgDiscard  byte = 0x2F
	MsgPull     byte = 0x3F
	MsgLogon    byte = 0x6A
	MsgLogoff   byte = 0x6B

	MsgSuccess byte = 0x70
	MsgRecord  byte = 0x71
	MsgIgnored byte = 0x7E
	MsgFailure byte = 0x7F
)

// Message is a decoded Bolt message: its type byte plus PackStream
// structure fields.
type Message struct {
	Type   byte
	Fields []any
}

// encodeMessage packs typ + fields as a PackStream tiny-struct whose tag
// is the message type byte, matching how every Bolt message body is
// itself one PackStream structure.
func encodeMessage(typ byte, fields ...any) ([]byte, error) {
	var buf bytes.Buffer
	if err := packstream.Encode(&buf, packstream.Structure{Tag: typ, Fields: fields}); err != nil {
		return nil, fmt.Errorf("bolt: encoding message 0x%02X: %w", typ, err)
	}
	return buf.Bytes(), nil
}

// decodeMessage unpacks a complete message byte sequence (as reassembled
// by chunkReader) into a Message.
func decodeMessage(raw []byte) (Message, error) {
	v, err := packstream.Decode(bytes.NewReader(raw))
	if err != nil {
		return Message{}, fmt.Errorf("bolt: decoding message: %w", err)
	}
	s, ok := v.(packstream.Structure)
	if !ok {
		return Message{}, fmt.Errorf("bolt: expected a structure, got %T", v)
	}
	return Message{Type: s.Tag, Fields: s.Fields}, nil
}

// helloFields builds the HELLO message's {user_agent, scheme, principal,
// credentials, routing?} field map (spec.md §4.7 step 3). On v5.1+,
// credentials are instead sent via a separate LOGON message; combined
// mode is selected by the caller based on the negotiated version.
func helloFields(userAgent, principal, credentials string, routing map[string]any, includeAuth bool) map[string]any {
	m := map[string]any{
		"user_agent": userAgent,
		"scheme":     "basic",
	}
	if includeAuth {
		m["principal"] = principal
		m["credentials"] = credentials
	}
	if routing != nil {
		m["routing"] = routing
	}
	return m
}

// logonFields builds the LOGON message fields used on v5.1+ to carry
// credentials separately from HELLO.
func logonFields(principal, credentials string) map[string]any {
	return map[string]any{
		"scheme":      "basic",
		"principal":   principal,
		"credentials": credentials,
	}
}

// runFields builds RUN's {cypher, params, metadata} fields.
func runFields(cypher string, params map[string]any, metadata map[string]any) []any {
	if params == nil {
		params = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return []any{cypher, params, metadata}
}

// pullFields builds PULL's {n, qid?} extra map.
func pullFields(n int64, qid *int64) map[string]any {
	m := map[string]any{"n": n}
	if qid != nil {
		m["qid"] = *qid
	}
	return m
}
