package tlsengine

import "github.com/qref/tlsengine/syntax"

// syntaxUnmarshal decodes a handshake body that has no custom Unmarshal
// method (everything except ClientHello, which needs the bareClientHello
// alias trick in handshake_messages.go to avoid recursing into itself).
func syntaxUnmarshal(data []byte, v interface{}) (int, error) {
	return syntax.Unmarshal(data, v)
}

// syntaxBody adapts any tag-annotated struct to the handshakeBody interface
// h.send expects, for the message types that rely entirely on struct tags.
type syntaxBody struct{ v interface{} }

func (s syntaxBody) Marshal() ([]byte, error) { return syntax.Marshal(s.v) }
