package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/hublink/internal/hub/frame"
	"github.com/chaz8081/hublink/internal/hub/protocol"
	"github.com/chaz8081/hublink/internal/signal"
)

func TestConnectHandshake(t *testing.T) {
	session, sim := connectedSession(t, DefaultSessionOptions())

	if session.State() != StateReady {
		t.Errorf("State() = %s, want ready", session.State())
	}
	info := session.Info()
	if info == nil || info.MaxChunkSize != 512 {
		t.Fatalf("Info() = %+v, want MaxChunkSize 512", info)
	}

	// The InfoRequest must be the first message on the wire.
	sim.mu.Lock()
	first := sim.requests[0]
	sim.mu.Unlock()
	if first.ID() != protocol.IDInfoRequest {
		t.Errorf("first request id = 0x%02x, want InfoRequest", byte(first.ID()))
	}
}

func TestConnectHandshakeTimeout(t *testing.T) {
	opts := DefaultSessionOptions()
	opts.HandshakeTimeout = 50 * time.Millisecond

	adapter := newSimAdapter(func(sim *hubSim) {
		sim.mu.Lock()
		sim.mute = true
		sim.mu.Unlock()
	})
	session := NewSession(adapter, "AA:BB:CC:DD:EE:FF", opts)

	err := session.Connect(context.Background())
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("Connect() error = %v, want ErrHandshakeTimeout", err)
	}
	if session.State() != StateDisconnected {
		t.Errorf("State() after failed handshake = %s, want disconnected", session.State())
	}
}

func TestConnectHandshakeRejected(t *testing.T) {
	adapter := newSimAdapter(func(sim *hubSim) {
		sim.mu.Lock()
		sim.info = protocol.InfoResponse{} // error-shaped: zero limits
		sim.mu.Unlock()
	})
	session := NewSession(adapter, "AA:BB:CC:DD:EE:FF", DefaultSessionOptions())

	if err := session.Connect(context.Background()); !errors.Is(err, ErrHandshakeRejected) {
		t.Fatalf("Connect() error = %v, want ErrHandshakeRejected", err)
	}
}

func TestUploadChunkSplit(t *testing.T) {
	session, sim := connectedSession(t, DefaultSessionOptions())

	program := make([]byte, 600)
	for i := range program {
		program[i] = byte(i)
	}
	if err := session.Upload(context.Background(), 19, "a.py", program); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	// 600 bytes against max_chunk_size 512 must split into exactly 512+88.
	chunks := sim.requestsOf(protocol.IDTransferChunkRequest)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunk requests, want 2", len(chunks))
	}
	first := chunks[0].(protocol.TransferChunkRequest)
	second := chunks[1].(protocol.TransferChunkRequest)
	if len(first.Payload) != 512 || len(second.Payload) != 88 {
		t.Errorf("chunk sizes = %d, %d; want 512, 88", len(first.Payload), len(second.Payload))
	}
	if first.RunningCRC != frame.ChecksumCRC(program[:512]) {
		t.Errorf("first running crc = %08x, want %08x", first.RunningCRC, frame.ChecksumCRC(program[:512]))
	}
	if second.RunningCRC != frame.ChecksumCRC(program) {
		t.Errorf("final running crc = %08x, want whole-file %08x", second.RunningCRC, frame.ChecksumCRC(program))
	}

	starts := sim.requestsOf(protocol.IDStartFileUploadRequest)
	if len(starts) != 1 {
		t.Fatalf("got %d start requests, want 1", len(starts))
	}
	start := starts[0].(protocol.StartFileUploadRequest)
	if start.Name != "a.py" || start.Slot != 19 || start.CRC != frame.ChecksumCRC(program) {
		t.Errorf("StartFileUploadRequest = %+v", start)
	}
}

func TestUploadRejected(t *testing.T) {
	session, sim := connectedSession(t, DefaultSessionOptions())
	sim.mu.Lock()
	sim.rejectUploadSlot = 5
	sim.mu.Unlock()

	err := session.Upload(context.Background(), 5, "a.py", []byte("x = 1\n"))
	if !errors.Is(err, ErrUploadRejected) {
		t.Fatalf("Upload() error = %v, want ErrUploadRejected", err)
	}
	// No bytes may be consumed after a rejection.
	if n := len(sim.requestsOf(protocol.IDTransferChunkRequest)); n != 0 {
		t.Errorf("got %d chunk requests after rejection, want 0", n)
	}
	if session.State() != StateReady {
		t.Errorf("State() = %s, want ready (link stays usable)", session.State())
	}
}

func TestUploadChunkNackAbortsTransfer(t *testing.T) {
	session, sim := connectedSession(t, DefaultSessionOptions())
	sim.mu.Lock()
	sim.nackChunk = 2
	sim.mu.Unlock()

	program := make([]byte, 1200) // 3 chunks of 512
	err := session.Upload(context.Background(), 3, "a.py", program)
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("Upload() error = %v, want ErrUploadFailed", err)
	}
	// The transfer is all-or-nothing: nothing after the NACKed chunk.
	if n := len(sim.requestsOf(protocol.IDTransferChunkRequest)); n != 2 {
		t.Errorf("got %d chunk requests, want 2 (abort after NACK)", n)
	}
}

func TestUploadChunkTimeout(t *testing.T) {
	opts := DefaultSessionOptions()
	opts.ChunkTimeout = 50 * time.Millisecond
	opts.ClearBeforeUpload = false
	session, sim := connectedSession(t, opts)
	sim.mu.Lock()
	sim.mute = true
	sim.mu.Unlock()

	err := session.Upload(context.Background(), 3, "a.py", []byte("x = 1\n"))
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("Upload() error = %v, want ErrUploadFailed", err)
	}
	if session.State() != StateReady {
		t.Errorf("State() = %s, want ready (caller decides retry/disconnect)", session.State())
	}
}

func TestFlowStartAndStop(t *testing.T) {
	session, sim := connectedSession(t, DefaultSessionOptions())

	if err := session.Flow(context.Background(), 7, false); err != nil {
		t.Fatalf("Flow(start) error = %v", err)
	}
	if err := session.Flow(context.Background(), 7, true); err != nil {
		t.Fatalf("Flow(stop) error = %v", err)
	}

	flows := sim.requestsOf(protocol.IDProgramFlowRequest)
	if len(flows) != 2 {
		t.Fatalf("got %d flow requests, want 2", len(flows))
	}
	start := flows[0].(protocol.ProgramFlowRequest)
	stop := flows[1].(protocol.ProgramFlowRequest)
	if start.Stop || start.Slot != 7 {
		t.Errorf("first flow = %+v, want start of slot 7", start)
	}
	if !stop.Stop || stop.Slot != 7 {
		t.Errorf("second flow = %+v, want stop of slot 7", stop)
	}
}

func TestFlowTimeout(t *testing.T) {
	opts := DefaultSessionOptions()
	opts.FlowTimeout = 50 * time.Millisecond
	session, sim := connectedSession(t, opts)
	sim.setMuteFlow(true)

	if err := session.Flow(context.Background(), 1, false); !errors.Is(err, ErrFlowTimeout) {
		t.Fatalf("Flow() error = %v, want ErrFlowTimeout", err)
	}
}

func TestFlowNoAckReturnsBeforeResponse(t *testing.T) {
	session, sim := connectedSession(t, DefaultSessionOptions())
	sim.setMuteFlow(true) // the hub never answers; the call must not care

	if err := session.FlowNoAck(4); err != nil {
		t.Fatalf("FlowNoAck() error = %v", err)
	}

	flows := sim.requestsOf(protocol.IDProgramFlowRequest)
	if len(flows) != 1 {
		t.Fatalf("got %d flow requests, want 1", len(flows))
	}
	if req := flows[0].(protocol.ProgramFlowRequest); req.Stop || req.Slot != 4 {
		t.Errorf("flow request = %+v, want start of slot 4", req)
	}
}

func TestConsoleDemuxDuringPendingRequest(t *testing.T) {
	session, sim := connectedSession(t, DefaultSessionOptions())

	var mu sync.Mutex
	var console []string
	session.SetConsoleHandler(func(text string) {
		mu.Lock()
		console = append(console, text)
		mu.Unlock()
	})

	sim.setMuteFlow(true)
	done := make(chan error, 1)
	go func() { done <- session.Flow(context.Background(), 2, false) }()

	// While the flow request is pending, console output arrives. It must
	// reach the console handler, not resolve the pending request.
	sim.waitForRequests(t, protocol.IDProgramFlowRequest, 1, time.Second)
	sim.pushConsole("DONE:0")

	select {
	case err := <-done:
		t.Fatalf("Flow() resolved by console notification: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	sim.send(protocol.ProgramFlowResponse{Accepted: true})
	if err := <-done; err != nil {
		t.Fatalf("Flow() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(console) != 1 || console[0] != "DONE:0" {
		t.Errorf("console lines = %q, want [DONE:0]", console)
	}
}

func TestRequestsSerializedOnTheWire(t *testing.T) {
	session, sim := connectedSession(t, DefaultSessionOptions())
	sim.setMuteFlow(true)

	done := make(chan error, 2)
	go func() { done <- session.Flow(context.Background(), 1, false) }()
	sim.waitForRequests(t, protocol.IDProgramFlowRequest, 1, time.Second)
	go func() { done <- session.Flow(context.Background(), 2, false) }()

	// The second request must queue, not interleave on the wire.
	time.Sleep(50 * time.Millisecond)
	if n := len(sim.requestsOf(protocol.IDProgramFlowRequest)); n != 1 {
		t.Fatalf("got %d flow requests on the wire, want 1 (second must queue)", n)
	}

	sim.send(protocol.ProgramFlowResponse{Accepted: true})
	if err := <-done; err != nil {
		t.Fatalf("first Flow() error = %v", err)
	}

	sim.waitForRequests(t, protocol.IDProgramFlowRequest, 2, time.Second)
	sim.send(protocol.ProgramFlowResponse{Accepted: true})
	if err := <-done; err != nil {
		t.Fatalf("second Flow() error = %v", err)
	}
}

func TestLateResponseDiscarded(t *testing.T) {
	opts := DefaultSessionOptions()
	opts.FlowTimeout = 50 * time.Millisecond
	session, sim := connectedSession(t, opts)
	sim.setMuteFlow(true)

	if err := session.Flow(context.Background(), 1, false); !errors.Is(err, ErrFlowTimeout) {
		t.Fatalf("Flow() error = %v, want ErrFlowTimeout", err)
	}

	// The response straggles in after the deadline. It must be discarded,
	// not attributed to the next request.
	sim.send(protocol.ProgramFlowResponse{Accepted: false})

	sim.setMuteFlow(false)
	if err := session.Flow(context.Background(), 1, false); err != nil {
		t.Fatalf("Flow() after stray response error = %v", err)
	}
}

func TestNotificationReassembledAcrossPackets(t *testing.T) {
	session, sim := connectedSession(t, DefaultSessionOptions())
	sim.setMuteFlow(true)

	done := make(chan error, 1)
	go func() { done <- session.Flow(context.Background(), 1, false) }()
	sim.waitForRequests(t, protocol.IDProgramFlowRequest, 1, time.Second)

	// Deliver the ack frame split across two BLE notifications.
	raw, err := protocol.Serialize(protocol.ProgramFlowResponse{Accepted: true})
	if err != nil {
		t.Fatal(err)
	}
	framed := frame.Encode(raw)
	sim.conn.txChar.SimulateNotification(framed[:1])
	sim.conn.txChar.SimulateNotification(framed[1:])

	if err := <-done; err != nil {
		t.Fatalf("Flow() error = %v", err)
	}
}

func TestSignalQueueWiring(t *testing.T) {
	session, sim := connectedSession(t, DefaultSessionOptions())

	queue := signal.NewQueue("spike")
	session.SetConsoleHandler(queue.OnNotification)

	sim.pushConsole("DONE:3")
	sig, ok := queue.Wait(context.Background(), time.Second)
	if !ok {
		t.Fatal("Wait() timed out, want signal")
	}
	if sig.Sequence != 3 || sig.Source != "spike" {
		t.Errorf("signal = %+v, want sequence 3 from spike", sig)
	}

	// Unrelated diagnostic output produces nothing.
	sim.pushConsole("hello")
	if _, ok := queue.Wait(context.Background(), 50*time.Millisecond); ok {
		t.Error("Wait() returned a signal for unrelated console text")
	}
}

func TestDisconnectSurfacesNotConnected(t *testing.T) {
	session, _ := connectedSession(t, DefaultSessionOptions())
	if err := session.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if err := session.Flow(context.Background(), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Flow() after disconnect error = %v, want ErrNotConnected", err)
	}
	if err := session.Upload(context.Background(), 1, "a.py", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Upload() after disconnect error = %v, want ErrNotConnected", err)
	}
}

func TestLinkDropMarksDisconnected(t *testing.T) {
	session, sim := connectedSession(t, DefaultSessionOptions())
	sim.conn.SimulateDisconnect()
	if session.State() != StateDisconnected {
		t.Errorf("State() after link drop = %s, want disconnected", session.State())
	}
}
