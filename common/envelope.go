package common

import (
	"strconv"
	"strings"
)

// Wire tokens.
const (
	Delimiter = " "

	ControlPing = "ping"
	ControlPong = "pong"

	BodyClose = "close"
)

// DecodeKind tags the result of Decode.
type DecodeKind uint8

const (
	KindMalformed DecodeKind = iota
	KindEnvelope
	KindControl
)

func (k DecodeKind) String() string {
	switch k {
	case KindEnvelope:
		return "envelope"
	case KindControl:
		return "control"
	default:
		return "malformed"
	}
}

// Envelope is the sequenced wire unit.
type Envelope struct {
	ID   uint64
	Body string
	// Implicit is set when the datagram was a bare token with no id on the
	// wire; ID is then 0.
	Implicit bool
}

// Decoded is the tagged result of Decode.
type Decoded struct {
	Kind     DecodeKind
	Envelope Envelope
	Control  string
}

// Encode renders "<id> <body>".
func Encode(id uint64, body string) []byte {
	b := make([]byte, 0, 20+1+len(body))
	b = strconv.AppendUint(b, id, 10)
	b = append(b, Delimiter...)
	return append(b, body...)
}

// EncodeBootstrap renders a bare bootstrap token; its id is implicitly 0.
func EncodeBootstrap(token string) []byte {
	return []byte(token)
}

// EncodeControl renders an unsequenced control token.
func EncodeControl(token string) []byte {
	return []byte(token)
}

// Decode parses a datagram. It never fails: anything that is not a control
// token or a well-formed envelope is reported as KindMalformed.
func Decode(data []byte) Decoded {
	s := string(data)
	if s == "" {
		return Decoded{Kind: KindMalformed}
	}
	if s == ControlPing || s == ControlPong {
		return Decoded{Kind: KindControl, Control: s}
	}

	fields := strings.Split(s, Delimiter)
	for _, f := range fields {
		if f == "" {
			return Decoded{Kind: KindMalformed}
		}
	}

	if len(fields) == 1 {
		// a lone number is an id without a body
		if isDigits(fields[0]) {
			return Decoded{Kind: KindMalformed}
		}
		return Decoded{
			Kind:     KindEnvelope,
			Envelope: Envelope{ID: 0, Body: fields[0], Implicit: true},
		}
	}

	if !isDigits(fields[0]) {
		return Decoded{Kind: KindMalformed}
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Decoded{Kind: KindMalformed}
	}
	return Decoded{
		Kind:     KindEnvelope,
		Envelope: Envelope{ID: id, Body: strings.Join(fields[1:], Delimiter)},
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
