// Package mixerr defines the result-code taxonomy shared by every MixPlay component.
// Boundary calls report an integer outcome; Classify turns it into either a protocol
// result code or a raw HTTP status, and Error carries the classified failure to callers.
package mixerr

import "fmt"

// MappingVersion identifies the numeric layout of ResultCode. Bump it whenever a code
// is added, removed or renumbered.
const MappingVersion = 1

// ResultCode is a protocol-level outcome.
type ResultCode int

// The numeric values are part of the wire contract and never derived from declaration order.
const (
	Ok                     ResultCode = 0
	GeneralError           ResultCode = 1
	AuthError              ResultCode = 2
	AuthDenied             ResultCode = 3
	InvalidToken           ResultCode = 4
	BufferTooSmall         ResultCode = 5
	Cancelled              ResultCode = 6
	HttpError              ResultCode = 7
	InitFailed             ResultCode = 8
	InvalidCallback        ResultCode = 9
	InvalidClientId        ResultCode = 10
	InvalidOperation       ResultCode = 11
	InvalidPointer         ResultCode = 12
	InvalidPropertyType    ResultCode = 13
	InvalidVersionId       ResultCode = 14
	JsonParseError         ResultCode = 15
	MethodCreateFailed     ResultCode = 16
	NoHost                 ResultCode = 17
	NoReply                ResultCode = 18
	ObjectNotFound         ResultCode = 19
	PropertyNotFound       ResultCode = 20
	TimedOut               ResultCode = 21
	UnknownMethod          ResultCode = 22
	UnrecognizedDataFormat ResultCode = 23
	TransportClosed        ResultCode = 24
	ConnectFailed          ResultCode = 25
	DisconnectFailed       ResultCode = 26
	ReadFailed             ResultCode = 27
	SendFailed             ResultCode = 28
	NotConnected           ResultCode = 29
	ObjectExists           ResultCode = 30
	InvalidState           ResultCode = 31
	SdkInternalError       ResultCode = 32
)

// ResultCodeCount is the number of protocol result codes in MappingVersion 1.
// Integers at or above it are HTTP status codes.
const ResultCodeCount = 33

var resultCodeNames = map[ResultCode]string{
	Ok:                     "Ok",
	GeneralError:           "Error",
	AuthError:              "AuthError",
	AuthDenied:             "AuthDenied",
	InvalidToken:           "InvalidToken",
	BufferTooSmall:         "BufferTooSmall",
	Cancelled:              "Cancelled",
	HttpError:              "HttpError",
	InitFailed:             "InitFailed",
	InvalidCallback:        "InvalidCallback",
	InvalidClientId:        "InvalidClientId",
	InvalidOperation:       "InvalidOperation",
	InvalidPointer:         "InvalidPointer",
	InvalidPropertyType:    "InvalidPropertyType",
	InvalidVersionId:       "InvalidVersionId",
	JsonParseError:         "JsonParseError",
	MethodCreateFailed:     "MethodCreateFailed",
	NoHost:                 "NoHost",
	NoReply:                "NoReply",
	ObjectNotFound:         "ObjectNotFound",
	PropertyNotFound:       "PropertyNotFound",
	TimedOut:               "TimedOut",
	UnknownMethod:          "UnknownMethod",
	UnrecognizedDataFormat: "UnrecognizedDataFormat",
	TransportClosed:        "TransportClosed",
	ConnectFailed:          "ConnectFailed",
	DisconnectFailed:       "DisconnectFailed",
	ReadFailed:             "ReadFailed",
	SendFailed:             "SendFailed",
	NotConnected:           "NotConnected",
	ObjectExists:           "ObjectExists",
	InvalidState:           "InvalidState",
	SdkInternalError:       "SdkInternalError",
}

// String returns the symbolic name of the code.
func (c ResultCode) String() string {
	if name, ok := resultCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ResultCode(%d)", int(c))
}

// Kind tells which side of the taxonomy a failure belongs to.
type Kind int

const (
	// KindProtocol is a ResultCode reported by the protocol layer.
	KindProtocol Kind = iota
	// KindHTTP is a raw HTTP status reported by the auth service or handshake.
	KindHTTP
	// KindSDK is a failure raised by the client itself.
	KindSDK
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindHTTP:
		return "http"
	case KindSDK:
		return "sdk"
	default:
		return "unknown"
	}
}

// Classification is the result of Classify.
type Classification struct {
	Kind       Kind
	Code       ResultCode
	HTTPStatus int
}

// Success reports whether the classified code means Ok.
func (c Classification) Success() bool {
	return c.Kind == KindProtocol && c.Code == Ok
}

// Classify maps a boundary integer onto the taxonomy. Values in [0, ResultCodeCount)
// are protocol result codes; everything else is a raw HTTP status.
func Classify(code int) Classification {
	if code >= 0 && code < ResultCodeCount {
		return Classification{Kind: KindProtocol, Code: ResultCode(code)}
	}
	return Classification{Kind: KindHTTP, HTTPStatus: code}
}
