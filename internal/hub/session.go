package hub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/hublink/internal/hub/frame"
	"github.com/chaz8081/hublink/internal/hub/protocol"
)

// State is the session's position in its connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateHandshaking
	StateReady
	StateUploading
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateUploading:
		return "uploading"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionOptions configures session timeouts and upload behavior.
type SessionOptions struct {
	HandshakeTimeout  time.Duration // deadline for the InfoResponse
	FlowTimeout       time.Duration // deadline for flow and clear-slot acks
	ChunkTimeout      time.Duration // deadline per transfer chunk (longer for slow links)
	ClearBeforeUpload bool          // best-effort ClearSlot before each upload
}

// DefaultSessionOptions returns sensible defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		HandshakeTimeout:  5 * time.Second,
		FlowTimeout:       3 * time.Second,
		ChunkTimeout:      10 * time.Second,
		ClearBeforeUpload: true,
	}
}

// pendingRequest tracks the single outstanding request. The response
// channel is buffered so the notification path never blocks on a slow
// requester.
type pendingRequest struct {
	id        protocol.ID
	ch        chan protocol.Message
	discarded bool // set when the requester gave up; a late response is dropped
}

// Session owns one hub connection: the physical link, the mandatory
// handshake, request/response correlation, the chunked upload state
// machine, and program flow control. The link is effectively half-duplex
// for requests — at most one may be outstanding — so concurrent callers
// are serialized, never interleaved on the wire. Console notifications are
// demultiplexed by message type to the console handler and never consumed
// as a pending request's response.
type Session struct {
	adapter Adapter
	address string
	opts    SessionOptions

	// reqMu serializes request/response exchanges and raw writes.
	reqMu sync.Mutex

	mu      sync.Mutex // guards everything below
	state   State
	conn    Connection
	rxChar  Characteristic
	info    *protocol.InfoResponse
	pending *pendingRequest
	console func(text string)
	recvBuf []byte // frame reassembly across BLE notifications
}

// NewSession creates a session for the hub at the given address. The
// session does not connect until Connect is called.
func NewSession(adapter Adapter, address string, opts SessionOptions) *Session {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.FlowTimeout <= 0 {
		opts.FlowTimeout = 3 * time.Second
	}
	if opts.ChunkTimeout <= 0 {
		opts.ChunkTimeout = 10 * time.Second
	}
	return &Session{
		adapter: adapter,
		address: address,
		opts:    opts,
		state:   StateDisconnected,
	}
}

// SetConsoleHandler registers the sink for hub print() output. Safe to
// call before or after Connect.
func (s *Session) SetConsoleHandler(fn func(text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = fn
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns the hub's handshake response, or nil before Connect.
func (s *Session) Info() *protocol.InfoResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Connect establishes the physical link and performs the handshake. The
// InfoRequest must be the hub's first inbound message; sending anything
// else first is undefined behavior on the hub side.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("hub: connect in state %s", s.state)
	}
	s.state = StateHandshaking
	s.mu.Unlock()

	info, err := s.connect(ctx)
	if err != nil {
		s.mu.Lock()
		s.teardownLocked()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.info = info
	s.state = StateReady
	s.mu.Unlock()

	slog.Info("[hub] connected", "address", s.address,
		"version", info.Version, "max_chunk", info.MaxChunkSize, "max_packet", info.MaxPacketSize)
	return nil
}

func (s *Session) connect(ctx context.Context) (*protocol.InfoResponse, error) {
	if err := s.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("hub: enable adapter: %w", err)
	}

	conn, err := s.adapter.Connect(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("hub: connect to %s: %w", s.address, err)
	}

	rxChar, err := conn.DiscoverCharacteristic(ServiceUUID, RXCharUUID)
	if err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("hub: discover RX characteristic: %w", err)
	}
	txChar, err := conn.DiscoverCharacteristic(ServiceUUID, TXCharUUID)
	if err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("hub: discover TX characteristic: %w", err)
	}
	if err := txChar.Subscribe(s.onNotify); err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("hub: subscribe to TX notifications: %w", err)
	}

	// The session never reconnects on its own; the caller decides.
	conn.OnDisconnect(func() {
		slog.Warn("[hub] disconnected", "address", s.address)
		s.mu.Lock()
		s.teardownLocked()
		s.mu.Unlock()
	})

	s.mu.Lock()
	s.conn = conn
	s.rxChar = rxChar
	s.mu.Unlock()

	resp, err := s.request(ctx, protocol.InfoRequest{}, s.opts.HandshakeTimeout)
	if err != nil {
		conn.Disconnect()
		if errors.Is(err, errRequestTimeout) {
			return nil, ErrHandshakeTimeout
		}
		return nil, fmt.Errorf("hub: handshake: %w", err)
	}
	info, ok := resp.(protocol.InfoResponse)
	if !ok || info.MaxChunkSize == 0 || info.MaxPacketSize == 0 {
		conn.Disconnect()
		return nil, ErrHandshakeRejected
	}
	return &info, nil
}

// Disconnect tears the connection down. A best-effort stop of the last
// started slot is the caller's responsibility; the session only closes
// the link.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	s.teardownLocked()
	s.mu.Unlock()

	if conn != nil {
		return conn.Disconnect()
	}
	return nil
}

// teardownLocked resets connection state. Caller must hold mu. A pending
// requester is left to hit its deadline; its late response, if any, is
// discarded by the dispatch path.
func (s *Session) teardownLocked() {
	s.state = StateDisconnected
	s.conn = nil
	s.rxChar = nil
	s.info = nil
	s.recvBuf = nil
}

// Upload transfers a program into a slot: StartFileUpload with the
// whole-file CRC, then chunks of at most MaxChunkSize each carrying the
// running CRC. Any chunk NACK or timeout aborts the whole transfer — the
// protocol has no resume primitive, so retry means starting over.
func (s *Session) Upload(ctx context.Context, slot uint8, name string, data []byte) error {
	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		if state == StateDisconnected {
			return ErrNotConnected
		}
		return fmt.Errorf("hub: upload in state %s", state)
	}
	s.state = StateUploading
	info := *s.info
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.state == StateUploading {
			s.state = StateReady
		}
		s.mu.Unlock()
	}()

	if s.opts.ClearBeforeUpload {
		// Best effort: some firmware NACKs clearing an empty slot.
		if _, err := s.request(ctx, protocol.ClearSlotRequest{Slot: slot}, s.opts.FlowTimeout); err != nil {
			slog.Debug("[hub] clear slot before upload", "slot", slot, "error", err)
		}
	}

	resp, err := s.request(ctx, protocol.StartFileUploadRequest{
		Name: name,
		Slot: slot,
		CRC:  frame.ChecksumCRC(data),
	}, s.opts.ChunkTimeout)
	if err != nil {
		if errors.Is(err, errRequestTimeout) {
			return fmt.Errorf("%w: start upload timed out", ErrUploadFailed)
		}
		return fmt.Errorf("hub: start upload: %w", err)
	}
	if start, ok := resp.(protocol.StartFileUploadResponse); !ok || !start.Accepted {
		return fmt.Errorf("%w: slot %d", ErrUploadRejected, slot)
	}

	chunkSize := int(info.MaxChunkSize)
	running := uint32(0)
	total := (len(data) + chunkSize - 1) / chunkSize
	for i, off := 0, 0; off < len(data); i, off = i+1, off+chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]
		running = frame.UpdateCRC(running, chunk)

		resp, err := s.request(ctx, protocol.TransferChunkRequest{
			RunningCRC: running,
			Payload:    chunk,
		}, s.opts.ChunkTimeout)
		if err != nil {
			if errors.Is(err, errRequestTimeout) {
				return fmt.Errorf("%w: chunk %d/%d timed out", ErrUploadFailed, i+1, total)
			}
			return fmt.Errorf("%w: chunk %d/%d: %v", ErrUploadFailed, i+1, total, err)
		}
		if ack, ok := resp.(protocol.TransferChunkResponse); !ok || !ack.Accepted {
			return fmt.Errorf("%w: chunk %d/%d rejected", ErrUploadFailed, i+1, total)
		}
	}

	slog.Debug("[hub] upload complete", "slot", slot, "name", name, "bytes", len(data), "chunks", total)
	return nil
}

// Flow starts (stop=false) or stops (stop=true) the program in a slot and
// waits for the acknowledgment. A start triggers the hub's unsuppressable
// startup sound exactly once.
func (s *Session) Flow(ctx context.Context, slot uint8, stop bool) error {
	if s.State() == StateDisconnected {
		return ErrNotConnected
	}
	resp, err := s.request(ctx, protocol.ProgramFlowRequest{Stop: stop, Slot: slot}, s.opts.FlowTimeout)
	if err != nil {
		if errors.Is(err, errRequestTimeout) {
			return ErrFlowTimeout
		}
		return fmt.Errorf("hub: program flow: %w", err)
	}
	if ack, ok := resp.(protocol.ProgramFlowResponse); !ok || !ack.Accepted {
		return fmt.Errorf("%w: slot %d", ErrFlowRejected, slot)
	}
	return nil
}

// FlowNoAck writes a program start and returns as soon as the request is
// on the wire — no delivery guarantee, lowest latency. The hub's eventual
// ProgramFlowResponse is dropped by the dispatch path as unsolicited.
func (s *Session) FlowNoAck(slot uint8) error {
	s.mu.Lock()
	rxChar := s.rxChar
	info := s.info
	s.mu.Unlock()
	if rxChar == nil {
		return ErrNotConnected
	}

	payload, err := protocol.Serialize(protocol.ProgramFlowRequest{Stop: false, Slot: slot})
	if err != nil {
		return err
	}

	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	return writeFramed(rxChar, payload, packetSize(info))
}

// request performs one request/response exchange. reqMu enforces the
// single-outstanding-request invariant: a second caller queues here until
// the first exchange resolves or times out. On timeout or cancellation the
// pending entry stays registered with the discard flag set, so a straggler
// response is dropped instead of being misattributed to the next request.
func (s *Session) request(ctx context.Context, req protocol.Message, timeout time.Duration) (protocol.Message, error) {
	respID, ok := protocol.ResponseID(req.ID())
	if !ok {
		return nil, fmt.Errorf("hub: message 0x%02x is not a request", byte(req.ID()))
	}

	payload, err := protocol.Serialize(req)
	if err != nil {
		return nil, err
	}

	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	s.mu.Lock()
	rxChar := s.rxChar
	if rxChar == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	p := &pendingRequest{id: respID, ch: make(chan protocol.Message, 1)}
	s.pending = p
	pktSize := packetSize(s.info)
	s.mu.Unlock()

	if err := writeFramed(rxChar, payload, pktSize); err != nil {
		s.clearPending(p)
		return nil, fmt.Errorf("hub: write request 0x%02x: %w", byte(req.ID()), err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-p.ch:
		return resp, nil
	case <-ctx.Done():
		s.discardPending(p)
		return nil, fmt.Errorf("hub: request 0x%02x: %w", byte(req.ID()), ctx.Err())
	case <-timer.C:
		s.discardPending(p)
		return nil, fmt.Errorf("%w: request 0x%02x after %s", errRequestTimeout, byte(req.ID()), timeout)
	}
}

func (s *Session) clearPending(p *pendingRequest) {
	s.mu.Lock()
	if s.pending == p {
		s.pending = nil
	}
	s.mu.Unlock()
}

func (s *Session) discardPending(p *pendingRequest) {
	s.mu.Lock()
	if s.pending == p {
		p.discarded = true
	}
	s.mu.Unlock()
}

// onNotify is the BLE notification callback. Frames may span multiple
// notifications, so bytes accumulate until the end delimiter appears.
func (s *Session) onNotify(data []byte) {
	s.mu.Lock()
	s.recvBuf = append(s.recvBuf, data...)
	var frames [][]byte
	for {
		idx := bytes.IndexByte(s.recvBuf, frame.EndByte)
		if idx < 0 {
			break
		}
		f := make([]byte, idx+1)
		copy(f, s.recvBuf[:idx+1])
		s.recvBuf = s.recvBuf[idx+1:]
		frames = append(frames, f)
	}
	s.mu.Unlock()

	for _, f := range frames {
		payload, err := frame.Decode(f)
		if err != nil {
			slog.Warn("[hub] dropping malformed frame", "error", err, "bytes", len(f))
			continue
		}
		msg, err := protocol.Deserialize(payload)
		if err != nil {
			// Unknown notification types are expected across firmware
			// revisions; log and drop, never fail a pending request.
			slog.Debug("[hub] dropping undecodable message", "error", err)
			continue
		}
		s.dispatch(msg)
	}
}

// dispatch routes an inbound message by type: console notifications go to
// the console handler, everything else is matched against the pending
// request. Arrival order plays no part in the decision.
func (s *Session) dispatch(msg protocol.Message) {
	if note, ok := msg.(protocol.ConsoleNotification); ok {
		s.mu.Lock()
		console := s.console
		s.mu.Unlock()
		if console != nil {
			console(note.Text)
		}
		return
	}

	s.mu.Lock()
	p := s.pending
	if p != nil && msg.ID() == p.id {
		s.pending = nil
		discarded := p.discarded
		s.mu.Unlock()
		if discarded {
			slog.Debug("[hub] dropping late response", "id", fmt.Sprintf("0x%02x", byte(msg.ID())))
			return
		}
		p.ch <- msg
		return
	}
	s.mu.Unlock()
	slog.Debug("[hub] dropping unsolicited message", "id", fmt.Sprintf("0x%02x", byte(msg.ID())))
}

// writeFramed encodes payload into a frame and writes it in segments of at
// most pktSize bytes, the hub's per-write limit.
func writeFramed(c Characteristic, payload []byte, pktSize int) error {
	framed := frame.Encode(payload)
	for off := 0; off < len(framed); off += pktSize {
		end := off + pktSize
		if end > len(framed) {
			end = len(framed)
		}
		if err := c.Write(framed[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// packetSize returns the hub's per-write limit, or a conservative default
// before the handshake has established it.
func packetSize(info *protocol.InfoResponse) int {
	if info != nil && info.MaxPacketSize > 0 {
		return int(info.MaxPacketSize)
	}
	return 20 // BLE minimum ATT payload
}
