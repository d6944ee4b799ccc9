package h2engine

import (
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// Event is something the peer did, as decoded by ReceiveData.
// The concrete types are the structs in this file.
type Event interface {
	isEvent()
}

// ResponseReceived is emitted for the final (non-1xx) response header block.
type ResponseReceived struct {
	StreamID uint32
	Headers  []hpack.HeaderField
}

// InformationalResponseReceived is emitted for a 1xx header block.
type InformationalResponseReceived struct {
	StreamID uint32
	Headers  []hpack.HeaderField
}

// TrailersReceived is emitted for a header block that follows the response.
type TrailersReceived struct {
	StreamID uint32
	Headers  []hpack.HeaderField
}

// DataReceived is emitted for every DATA frame.
// FlowControlledLength includes padding and is the amount that has to be
// handed back with AcknowledgeReceivedData.
type DataReceived struct {
	StreamID             uint32
	Data                 []byte
	FlowControlledLength int
}

// StreamEnded is emitted when the peer closes its side of a stream.
type StreamEnded struct {
	StreamID uint32
}

// StreamReset is emitted for RST_STREAM.
type StreamReset struct {
	StreamID  uint32
	ErrorCode http2.ErrCode
}

// ConnectionTerminated is emitted for GOAWAY.
type ConnectionTerminated struct {
	ErrorCode      http2.ErrCode
	LastStreamID   uint32
	AdditionalData []byte
}

// SettingsReceived is emitted for a non-ACK SETTINGS frame.
// The acknowledgement has already been queued.
type SettingsReceived struct {
	Settings []http2.Setting
}

// PingReceived is emitted for a non-ACK PING frame.
// The acknowledgement has already been queued.
type PingReceived struct {
	Data [8]byte
}

// WindowUpdated is emitted for WINDOW_UPDATE. StreamID 0 is the connection.
type WindowUpdated struct {
	StreamID uint32
	Delta    uint32
}

func (ResponseReceived) isEvent()              {}
func (InformationalResponseReceived) isEvent() {}
func (TrailersReceived) isEvent()              {}
func (DataReceived) isEvent()                  {}
func (StreamEnded) isEvent()                   {}
func (StreamReset) isEvent()                   {}
func (ConnectionTerminated) isEvent()          {}
func (SettingsReceived) isEvent()              {}
func (PingReceived) isEvent()                  {}
func (WindowUpdated) isEvent()                 {}
