package h2engine

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

const (
	frameHeaderLen = 9

	// defaultWindowSize is the initial flow control window of RFC 9113.
	defaultWindowSize = 65535

	// defaultMaxFrameSize is the smallest SETTINGS_MAX_FRAME_SIZE a peer may
	// announce and the value used until the peer says otherwise.
	defaultMaxFrameSize = 16384

	defaultHeaderTableSize = 4096

	maxWindowSize = math.MaxInt32
)

// Config controls a Conn. The zero value is usable: it disables outbound
// header validation and normalization and uses RFC 9113 default sizes.
type Config struct {
	// ValidateOutboundHeaders makes SendHeaders reject field names and
	// values that are not valid HTTP/2 fields.
	ValidateOutboundHeaders bool

	// NormalizeOutboundHeaders lower-cases field names before encoding.
	NormalizeOutboundHeaders bool

	// HeaderTableSize is the HPACK decoder table size announced to the peer.
	HeaderTableSize uint32

	// InitialWindowSize is the stream receive window announced to the peer.
	InitialWindowSize uint32
}

type stream struct {
	id     uint32
	method string

	localClosed  bool
	remoteClosed bool

	responseReceived bool

	sendWindow int64
	recvWindow int64

	// expectedLength is -1 until a response content-length is known.
	expectedLength int64
	receivedLength int64
}

// Conn is the client side of one HTTP/2 connection.
// It is not safe for concurrent use.
type Conn struct {
	cfg Config

	framer  *http2.Framer
	out     bytes.Buffer
	readBuf bytes.Buffer
	inbound []byte

	encoder *hpack.Encoder
	hbuf    bytes.Buffer

	streams      map[uint32]*stream
	nextStreamID uint32

	connSendWindow    int64
	connRecvWindow    int64
	peerInitialWindow int64
	peerMaxFrameSize  uint32
	localWindow       int64

	initiated   bool
	goAwaySent  bool
	goAwayRecvd bool
}

// NewConn creates a client connection. Nothing is queued until
// InitiateConnection is called.
func NewConn(cfg Config) *Conn {
	if cfg.HeaderTableSize == 0 {
		cfg.HeaderTableSize = defaultHeaderTableSize
	}
	if cfg.InitialWindowSize == 0 {
		cfg.InitialWindowSize = defaultWindowSize
	}

	c := &Conn{
		cfg:               cfg,
		streams:           make(map[uint32]*stream),
		nextStreamID:      1,
		connSendWindow:    defaultWindowSize,
		connRecvWindow:    defaultWindowSize,
		peerInitialWindow: defaultWindowSize,
		peerMaxFrameSize:  defaultMaxFrameSize,
		localWindow:       int64(cfg.InitialWindowSize),
	}
	c.framer = http2.NewFramer(&c.out, &c.readBuf)
	c.framer.AllowIllegalWrites = true
	c.framer.SetMaxReadFrameSize(defaultMaxFrameSize)
	c.framer.ReadMetaHeaders = hpack.NewDecoder(cfg.HeaderTableSize, nil)
	c.encoder = hpack.NewEncoder(&c.hbuf)
	return c
}

// InitiateConnection queues the client preface and the initial SETTINGS frame.
func (c *Conn) InitiateConnection() error {
	if c.initiated {
		return nil
	}
	c.initiated = true
	c.out.WriteString(http2.ClientPreface)
	return c.framer.WriteSettings(
		http2.Setting{ID: http2.SettingEnablePush, Val: 0},
		http2.Setting{ID: http2.SettingHeaderTableSize, Val: c.cfg.HeaderTableSize},
		http2.Setting{ID: http2.SettingInitialWindowSize, Val: c.cfg.InitialWindowSize},
		http2.Setting{ID: http2.SettingMaxFrameSize, Val: defaultMaxFrameSize},
	)
}

// IsOpen reports whether GOAWAY has neither been sent nor received.
func (c *Conn) IsOpen() bool {
	return !c.goAwaySent && !c.goAwayRecvd
}

// SendHeaders queues a header block opening streamID. Fields are
// HPACK-encoded in order, split into HEADERS and CONTINUATION frames as
// the peer's SETTINGS_MAX_FRAME_SIZE requires.
func (c *Conn) SendHeaders(streamID uint32, fields []hpack.HeaderField, endStream bool) error {
	if !c.IsOpen() {
		return ErrConnectionClosed
	}
	if streamID%2 == 0 || streamID < c.nextStreamID {
		return fmt.Errorf("%w: stream %d cannot be opened by the client", ErrProtocol, streamID)
	}

	c.hbuf.Reset()
	method := ""
	for _, f := range fields {
		if c.cfg.NormalizeOutboundHeaders {
			f.Name = strings.ToLower(f.Name)
		}
		if c.cfg.ValidateOutboundHeaders {
			if err := validateField(f); err != nil {
				return err
			}
		}
		if f.Name == ":method" && method == "" {
			method = f.Value
		}
		if err := c.encoder.WriteField(f); err != nil {
			return fmt.Errorf("failed to encode header %q: %w", f.Name, err)
		}
	}

	block := c.hbuf.Bytes()
	maxSize := int(c.peerMaxFrameSize)
	first := block
	if len(first) > maxSize {
		first = block[:maxSize]
	}
	rest := block[len(first):]
	if err := c.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: first,
		EndStream:     endStream,
		EndHeaders:    len(rest) == 0,
	}); err != nil {
		return err
	}
	for len(rest) > 0 {
		chunk := rest
		if len(chunk) > maxSize {
			chunk = rest[:maxSize]
		}
		rest = rest[len(chunk):]
		if err := c.framer.WriteContinuation(streamID, len(rest) == 0, chunk); err != nil {
			return err
		}
	}

	c.streams[streamID] = &stream{
		id:             streamID,
		method:         method,
		localClosed:    endStream,
		sendWindow:     c.peerInitialWindow,
		recvWindow:     c.localWindow,
		expectedLength: -1,
	}
	c.nextStreamID = streamID + 2
	return nil
}

func validateField(f hpack.HeaderField) error {
	name := f.Name
	if strings.HasPrefix(name, ":") {
		name = name[1:]
	}
	if name == "" || !httpguts.ValidHeaderFieldName(name) || strings.ToLower(name) != name {
		return fmt.Errorf("%w: name %q", ErrInvalidHeader, f.Name)
	}
	if !httpguts.ValidHeaderFieldValue(f.Value) {
		return fmt.Errorf("%w: value of %q", ErrInvalidHeader, f.Name)
	}
	return nil
}

// SendData queues data on streamID, split into DATA frames of at most the
// peer's frame size. An empty data slice still produces one frame so that
// endStream can be signalled.
func (c *Conn) SendData(streamID uint32, data []byte, endStream bool) error {
	if !c.IsOpen() {
		return ErrConnectionClosed
	}
	s, ok := c.streams[streamID]
	if !ok || s.localClosed {
		return fmt.Errorf("%w: cannot send data on stream %d", ErrStreamClosed, streamID)
	}
	n := int64(len(data))
	if n > c.connSendWindow || n > s.sendWindow {
		return fmt.Errorf("%w: %d bytes exceed the send window", ErrFlowControl, n)
	}

	maxSize := int(c.peerMaxFrameSize)
	for {
		chunk := data
		if len(chunk) > maxSize {
			chunk = data[:maxSize]
		}
		data = data[len(chunk):]
		last := len(data) == 0
		if err := c.framer.WriteData(streamID, endStream && last, chunk); err != nil {
			return err
		}
		if last {
			break
		}
	}
	c.connSendWindow -= n
	s.sendWindow -= n
	if endStream {
		s.localClosed = true
	}
	return nil
}

// AcknowledgeReceivedData hands n flow-controlled bytes back to the peer
// on both the connection and the stream window.
func (c *Conn) AcknowledgeReceivedData(n int, streamID uint32) error {
	if n <= 0 {
		return nil
	}
	if err := c.framer.WriteWindowUpdate(0, uint32(n)); err != nil {
		return err
	}
	c.connRecvWindow += int64(n)

	s, ok := c.streams[streamID]
	if !ok || s.remoteClosed {
		return nil
	}
	if err := c.framer.WriteWindowUpdate(streamID, uint32(n)); err != nil {
		return err
	}
	s.recvWindow += int64(n)
	return nil
}

// CloseConnection queues GOAWAY with NO_ERROR.
func (c *Conn) CloseConnection() error {
	if c.goAwaySent {
		return nil
	}
	c.goAwaySent = true
	return c.framer.WriteGoAway(0, http2.ErrCodeNo, nil)
}

// DataToSend returns and clears the bytes queued for the peer.
func (c *Conn) DataToSend() []byte {
	if c.out.Len() == 0 {
		return nil
	}
	b := bytes.Clone(c.out.Bytes())
	c.out.Reset()
	return b
}

// ReceiveData consumes bytes read from the peer and returns the events
// decoded from every complete frame. Incomplete frames are buffered until
// the next call. On error the events decoded before the failing frame are
// returned together with the error.
func (c *Conn) ReceiveData(data []byte) ([]Event, error) {
	c.inbound = append(c.inbound, data...)

	var events []Event
	for {
		n, err := frameUnitLen(c.inbound)
		if err != nil {
			return events, err
		}
		if n == 0 {
			return events, nil
		}
		c.readBuf.Reset()
		c.readBuf.Write(c.inbound[:n])
		c.inbound = append(c.inbound[:0], c.inbound[n:]...)

		f, err := c.framer.ReadFrame()
		if err != nil {
			return events, wrapFrameError(err)
		}
		evs, err := c.handleFrame(f)
		events = append(events, evs...)
		if err != nil {
			return events, err
		}
	}
}

// frameUnitLen returns the length of the first complete frame in buf, or 0
// if more bytes are needed. A header block that spans CONTINUATION frames
// is only complete once the frame carrying END_HEADERS is buffered.
func frameUnitLen(buf []byte) (int, error) {
	off := 0
	for {
		if len(buf)-off < frameHeaderLen {
			return 0, nil
		}
		length := int(buf[off])<<16 | int(buf[off+1])<<8 | int(buf[off+2])
		if length > defaultMaxFrameSize {
			return 0, fmt.Errorf("%w: frame of %d bytes exceeds max frame size", ErrProtocol, length)
		}
		typ := http2.FrameType(buf[off+3])
		flags := http2.Flags(buf[off+4])
		end := off + frameHeaderLen + length
		if len(buf) < end {
			return 0, nil
		}

		switch typ {
		case http2.FrameHeaders, http2.FramePushPromise, http2.FrameContinuation:
			if flags.Has(http2.FlagHeadersEndHeaders) {
				return end, nil
			}
		default:
			// Either a standalone frame or one that interrupts a header
			// block, which the framer rejects.
			return end, nil
		}
		off = end
	}
}

func wrapFrameError(err error) error {
	var ce http2.ConnectionError
	var se http2.StreamError
	if errors.As(err, &ce) || errors.As(err, &se) || errors.Is(err, http2.ErrFrameTooLarge) {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return fmt.Errorf("%w: failed to read frame: %v", ErrProtocol, err)
}

func (c *Conn) handleFrame(f http2.Frame) ([]Event, error) {
	switch f := f.(type) {
	case *http2.SettingsFrame:
		return c.handleSettings(f)
	case *http2.PingFrame:
		if f.IsAck() {
			return nil, nil
		}
		if err := c.framer.WritePing(true, f.Data); err != nil {
			return nil, err
		}
		return []Event{PingReceived{Data: f.Data}}, nil
	case *http2.WindowUpdateFrame:
		return c.handleWindowUpdate(f)
	case *http2.GoAwayFrame:
		c.goAwayRecvd = true
		return []Event{ConnectionTerminated{
			ErrorCode:      f.ErrCode,
			LastStreamID:   f.LastStreamID,
			AdditionalData: bytes.Clone(f.DebugData()),
		}}, nil
	case *http2.RSTStreamFrame:
		id := f.Header().StreamID
		if s, ok := c.streams[id]; ok {
			s.localClosed = true
			s.remoteClosed = true
		}
		return []Event{StreamReset{StreamID: id, ErrorCode: f.ErrCode}}, nil
	case *http2.MetaHeadersFrame:
		return c.handleHeaders(f)
	case *http2.DataFrame:
		return c.handleData(f)
	case *http2.PushPromiseFrame:
		return nil, fmt.Errorf("%w: PUSH_PROMISE received with push disabled", ErrProtocol)
	case *http2.ContinuationFrame:
		return nil, fmt.Errorf("%w: unexpected CONTINUATION", ErrProtocol)
	default:
		// PRIORITY and unknown extension frames carry nothing for us.
		return nil, nil
	}
}

func (c *Conn) handleSettings(f *http2.SettingsFrame) ([]Event, error) {
	if f.IsAck() {
		return nil, nil
	}
	var settings []http2.Setting
	err := f.ForeachSetting(func(s http2.Setting) error {
		if err := s.Valid(); err != nil {
			return fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		settings = append(settings, s)
		switch s.ID {
		case http2.SettingInitialWindowSize:
			if s.Val > maxWindowSize {
				return fmt.Errorf("%w: initial window size %d", ErrFlowControl, s.Val)
			}
			delta := int64(s.Val) - c.peerInitialWindow
			for _, st := range c.streams {
				st.sendWindow += delta
			}
			c.peerInitialWindow = int64(s.Val)
		case http2.SettingMaxFrameSize:
			c.peerMaxFrameSize = s.Val
		case http2.SettingHeaderTableSize:
			c.encoder.SetMaxDynamicTableSizeLimit(s.Val)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := c.framer.WriteSettingsAck(); err != nil {
		return nil, err
	}
	return []Event{SettingsReceived{Settings: settings}}, nil
}

func (c *Conn) handleWindowUpdate(f *http2.WindowUpdateFrame) ([]Event, error) {
	id := f.Header().StreamID
	inc := int64(f.Increment)
	if id == 0 {
		if c.connSendWindow+inc > maxWindowSize {
			return nil, fmt.Errorf("%w: connection window overflow", ErrFlowControl)
		}
		c.connSendWindow += inc
	} else if s, ok := c.streams[id]; ok {
		if s.sendWindow+inc > maxWindowSize {
			return nil, fmt.Errorf("%w: stream %d window overflow", ErrFlowControl, id)
		}
		s.sendWindow += inc
	}
	return []Event{WindowUpdated{StreamID: id, Delta: f.Increment}}, nil
}

func (c *Conn) handleHeaders(f *http2.MetaHeadersFrame) ([]Event, error) {
	id := f.Header().StreamID
	s, ok := c.streams[id]
	if !ok {
		return nil, fmt.Errorf("%w: HEADERS on unknown stream %d", ErrProtocol, id)
	}
	if s.remoteClosed {
		return nil, fmt.Errorf("%w: HEADERS on stream %d", ErrStreamClosed, id)
	}
	fields := append([]hpack.HeaderField(nil), f.Fields...)

	var events []Event
	switch {
	case s.responseReceived:
		if !f.StreamEnded() {
			return nil, fmt.Errorf("%w: trailers without END_STREAM on stream %d", ErrProtocol, id)
		}
		events = append(events, TrailersReceived{StreamID: id, Headers: fields})
	case isInformational(f.PseudoValue("status")):
		if f.StreamEnded() {
			return nil, fmt.Errorf("%w: informational response ends stream %d", ErrProtocol, id)
		}
		events = append(events, InformationalResponseReceived{StreamID: id, Headers: fields})
	default:
		if err := s.initContentLength(f); err != nil {
			return nil, err
		}
		s.responseReceived = true
		events = append(events, ResponseReceived{StreamID: id, Headers: fields})
	}

	if f.StreamEnded() {
		if err := s.endRemote(); err != nil {
			return events, err
		}
		events = append(events, StreamEnded{StreamID: id})
	}
	return events, nil
}

func isInformational(status string) bool {
	return len(status) == 3 && status[0] == '1'
}

// initContentLength records the declared body length. A response to HEAD
// never has a body, whatever content-length says.
func (s *stream) initContentLength(f *http2.MetaHeadersFrame) error {
	if s.method == "HEAD" {
		s.expectedLength = 0
		return nil
	}
	for _, hf := range f.RegularFields() {
		if hf.Name != "content-length" {
			continue
		}
		n, err := strconv.ParseInt(hf.Value, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: invalid content-length %q", ErrProtocol, hf.Value)
		}
		s.expectedLength = n
		return nil
	}
	return nil
}

func (s *stream) endRemote() error {
	s.remoteClosed = true
	if s.expectedLength >= 0 && s.receivedLength != s.expectedLength {
		return &InvalidBodyLengthError{StreamID: s.id, Expected: s.expectedLength, Actual: s.receivedLength}
	}
	return nil
}

func (c *Conn) handleData(f *http2.DataFrame) ([]Event, error) {
	id := f.Header().StreamID
	s, ok := c.streams[id]
	if !ok {
		return nil, fmt.Errorf("%w: DATA on unknown stream %d", ErrProtocol, id)
	}
	if s.remoteClosed {
		return nil, fmt.Errorf("%w: DATA on stream %d", ErrStreamClosed, id)
	}
	if !s.responseReceived {
		return nil, fmt.Errorf("%w: DATA before response headers on stream %d", ErrProtocol, id)
	}

	flowLen := int64(f.Header().Length)
	if flowLen > c.connRecvWindow || flowLen > s.recvWindow {
		return nil, fmt.Errorf("%w: peer exceeded the receive window on stream %d", ErrFlowControl, id)
	}
	c.connRecvWindow -= flowLen
	s.recvWindow -= flowLen

	data := bytes.Clone(f.Data())
	s.receivedLength += int64(len(data))
	if s.expectedLength >= 0 && s.receivedLength > s.expectedLength {
		return nil, &InvalidBodyLengthError{StreamID: id, Expected: s.expectedLength, Actual: s.receivedLength}
	}

	events := []Event{DataReceived{StreamID: id, Data: data, FlowControlledLength: int(flowLen)}}
	if f.StreamEnded() {
		if err := s.endRemote(); err != nil {
			return events, err
		}
		events = append(events, StreamEnded{StreamID: id})
	}
	return events, nil
}
