package session

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/nao1215/h2smuggle/internal/h2engine"
	"github.com/nao1215/h2smuggle/internal/model"
)

const (
	// streamID is the only stream a session ever opens.
	streamID uint32 = 1

	// readBufferSize bounds a single socket read.
	readBufferSize = 64 * 1024
)

// Dialer opens the TCP connection a session runs over.
// *net.Dialer and the dialers of the tor package satisfy it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Session executes single HTTP/2 exchanges.
// A Session holds no per-exchange state and is safe for concurrent use.
type Session struct {
	dialer Dialer
	logger *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithDialer sets the dialer used to reach targets.
// The default is a plain *net.Dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithLogger sets the logger. Exchanges are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Session.
func New(opts ...Option) *Session {
	s := &Session{
		dialer: &net.Dialer{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute sends spec to target on a new connection and returns what was
// observed. The connection is closed before Execute returns.
//
// target.Timeout bounds the connect, the TLS handshake and every read.
// Cancelling ctx closes the connection; the outcome then carries a
// generic error.
func (s *Session) Execute(ctx context.Context, target model.Target, spec model.RequestSpec) model.ResponseOutcome {
	start := time.Now()
	ex := &exchange{}
	s.run(ctx, target, spec, ex)

	outcome := model.ResponseOutcome{
		Headers:  ex.headers,
		Body:     ex.body,
		Error:    ex.err,
		TimedOut: ex.timedOut,
		Elapsed:  time.Since(start),
	}.Normalize()

	s.logger.Debug("h2 exchange",
		slog.String("target", target.Addr()),
		slog.String("method", spec.Method()),
		slog.String("fingerprint", spec.Fingerprint()),
		slog.String("status", outcome.Status()),
		slog.String("error", outcome.Error.String()),
		slog.Bool("timed_out", outcome.TimedOut),
		slog.Int("body_length", len(outcome.Body)),
		slog.Duration("elapsed", outcome.Elapsed),
	)
	return outcome
}

// exchange accumulates the observation of one request.
type exchange struct {
	headers  model.HeaderList
	body     []byte
	err      model.ErrorKind
	timedOut bool
}

func (ex *exchange) fail(err error) {
	if isTimeout(err) {
		ex.timedOut = true
		return
	}
	ex.err = model.ErrorGeneric()
}

func (s *Session) run(ctx context.Context, target model.Target, spec model.RequestSpec, ex *exchange) {
	dialCtx, cancel := context.WithTimeout(ctx, target.Timeout)
	defer cancel()

	raw, err := s.dialer.DialContext(dialCtx, "tcp", target.Addr())
	if err != nil {
		s.logger.Debug("dial failed", slog.String("target", target.Addr()), slog.Any("error", err))
		ex.fail(err)
		return
	}
	defer raw.Close()

	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })
	defer stop()

	conn := tls.Client(raw, tlsConfig(target.Hostname))
	hsCtx, hsCancel := context.WithTimeout(ctx, target.Timeout)
	err = conn.HandshakeContext(hsCtx)
	hsCancel()
	if err != nil {
		s.logger.Debug("tls handshake failed", slog.String("target", target.Addr()), slog.Any("error", err))
		ex.fail(err)
		return
	}
	if proto := conn.ConnectionState().NegotiatedProtocol; proto != http2.NextProtoTLS {
		s.logger.Debug("h2 not negotiated", slog.String("target", target.Addr()), slog.String("alpn", proto))
		ex.err = model.ErrorGeneric()
		return
	}

	h2 := h2engine.NewConn(h2engine.Config{})
	defer closeGracefully(conn, h2, target.Timeout)

	if err := sendRequest(h2, spec); err != nil {
		ex.err = model.ErrorGeneric()
		return
	}
	if err := flush(conn, h2, target.Timeout); err != nil {
		ex.fail(err)
		return
	}

	buf := make([]byte, readBufferSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(target.Timeout)); err != nil {
			ex.err = model.ErrorGeneric()
			return
		}
		n, readErr := conn.Read(buf)
		if n > 0 {
			events, recvErr := h2.ReceiveData(buf[:n])
			done := ex.handle(h2, events)
			if !done && recvErr != nil {
				ex.handleEngineError(recvErr)
				done = true
			}
			// SETTINGS/PING ACKs and WINDOW_UPDATEs. A failed write
			// surfaces as a read error on the next iteration.
			_ = flush(conn, h2, target.Timeout)
			if done {
				return
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				ex.fail(readErr)
			}
			return
		}
	}
}

// handle applies events in order and reports whether the exchange is over.
func (ex *exchange) handle(h2 *h2engine.Conn, events []h2engine.Event) bool {
	for _, ev := range events {
		switch e := ev.(type) {
		case h2engine.ResponseReceived:
			if e.StreamID == streamID {
				ex.headers = toHeaderList(e.Headers)
			}
		case h2engine.DataReceived:
			if e.StreamID == streamID {
				ex.body = append(ex.body, e.Data...)
			}
			_ = h2.AcknowledgeReceivedData(e.FlowControlledLength, e.StreamID)
		case h2engine.StreamEnded:
			if e.StreamID == streamID {
				return true
			}
		case h2engine.StreamReset:
			// Recorded only. The exchange still ends on EOF or the read
			// deadline, so a peer that resets and then idles times out.
			if e.StreamID == streamID {
				ex.err = model.ErrorStreamReset(e.ErrorCode)
			}
		case h2engine.ConnectionTerminated:
			ex.err = model.ErrorConnectionTerminated(e.ErrorCode)
		}
	}
	return false
}

func (ex *exchange) handleEngineError(err error) {
	if errors.Is(err, h2engine.ErrInvalidBodyLength) {
		ex.err = model.ErrorInvalidBodyLength()
		return
	}
	ex.err = model.ErrorGeneric()
}

func sendRequest(h2 *h2engine.Conn, spec model.RequestSpec) error {
	if err := h2.InitiateConnection(); err != nil {
		return err
	}
	fields := make([]hpack.HeaderField, 0, len(spec.Headers))
	for _, h := range spec.Headers {
		fields = append(fields, hpack.HeaderField{Name: h.Name, Value: h.Value})
	}
	if err := h2.SendHeaders(streamID, fields, false); err != nil {
		return err
	}
	return h2.SendData(streamID, spec.Body, true)
}

func flush(conn net.Conn, h2 *h2engine.Conn, timeout time.Duration) error {
	out := h2.DataToSend()
	if len(out) == 0 {
		return nil
	}
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	_, err := conn.Write(out)
	return err
}

// closeGracefully sends GOAWAY when the connection is still usable.
// The caller closes the socket.
func closeGracefully(conn net.Conn, h2 *h2engine.Conn, timeout time.Duration) {
	if !h2.IsOpen() {
		return
	}
	if err := h2.CloseConnection(); err != nil {
		return
	}
	_ = flush(conn, h2, timeout)
}

func tlsConfig(hostname string) *tls.Config {
	cfg := &tls.Config{
		// Targets are often test deployments with self-signed certificates.
		InsecureSkipVerify: true, //nolint:gosec
		NextProtos:         []string{http2.NextProtoTLS},
		MinVersion:         tls.VersionTLS12,
	}
	if net.ParseIP(hostname) == nil {
		cfg.ServerName = hostname
	}
	return cfg
}

func toHeaderList(fields []hpack.HeaderField) model.HeaderList {
	out := make(model.HeaderList, 0, len(fields))
	for _, f := range fields {
		out = append(out, model.Header{Name: f.Name, Value: f.Value})
	}
	return out
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
