package atca

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/northvolt/go-atca/codec"
)

var (
	testRevision = []byte{0x00, 0x00, 0x60, 0x02}
	testSerial   = []byte{0x01, 0x23, 0xa1, 0xb2, 0xc3, 0xd4, 0xe5, 0xf6, 0xee}
)

// testConfigZone returns a configuration zone with testSerial and an
// unlocked lock word.
func testConfigZone() []byte {
	conf := make([]byte, zoneSizeConfig)
	copy(conf[0:4], testSerial[:4])
	copy(conf[4:8], testRevision)
	copy(conf[8:13], testSerial[4:])
	for i := 20; i < 52; i++ {
		conf[i] = byte(i)
	}
	conf[86] = 0x55
	conf[87] = 0x55
	return conf
}

// scriptHAL is a HAL answering commands with a responder function.
type scriptHAL struct {
	mu sync.Mutex

	// respond returns the response frame for a command.
	respond func(cmd codec.Command) []byte
	// writeErr, if set, fails all writes.
	writeErr error
	// readErr, if set, fails all reads.
	readErr error
	// notReady is the number of ErrNotReady results before each response.
	notReady int

	pending []byte
	busy    int
	overlap bool

	frames []codec.Command
	writes int
	reads  int
	wakes  int
	idles  int
	sleeps int
}

func newScriptHAL() *scriptHAL {
	return &scriptHAL{respond: chipResponder(testConfigZone())}
}

// chipResponder answers Info and Read from conf, and everything else with
// success.
func chipResponder(conf []byte) func(cmd codec.Command) []byte {
	return func(cmd codec.Command) []byte {
		switch cmd.Opcode {
		case opInfo:
			return codec.EncodeResponse(testRevision)
		case opRead:
			size := wordSize
			if cmd.Param1&zoneReadWrite32 != 0 {
				size = blockSize
			}
			out := make([]byte, size)
			if Zone(cmd.Param1&0x03) == ZoneConfig {
				offset := int(cmd.Param2>>3)*blockSize + int(cmd.Param2&0x07)*wordSize
				copy(out, conf[offset:])
			} else {
				for i := range out {
					out[i] = byte(cmd.Param2) + byte(i)
				}
			}
			return codec.EncodeResponse(out)
		case opAES:
			return codec.EncodeResponse(make([]byte, aesBlockSize))
		case opRandom:
			out := make([]byte, 32)
			for i := range out {
				out[i] = byte(i)
			}
			return codec.EncodeResponse(out)
		default:
			return codec.EncodeStatus(StatusSuccess)
		}
	}
}

func (h *scriptHAL) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes++
	if h.writeErr != nil {
		return 0, h.writeErr
	}
	if h.pending != nil {
		h.overlap = true
	}
	cmd, err := codec.DecodeCommand(p)
	if err != nil {
		return 0, err
	}
	h.frames = append(h.frames, cmd)
	h.pending = h.respond(cmd)
	h.busy = h.notReady
	return len(p), nil
}

func (h *scriptHAL) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reads++
	if h.readErr != nil {
		return 0, h.readErr
	}
	if h.busy > 0 {
		h.busy--
		return 0, ErrNotReady
	}
	if h.pending == nil {
		return 0, errors.New("no response pending")
	}
	n := copy(p, h.pending)
	h.pending = nil
	return n, nil
}

func (h *scriptHAL) Wake() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wakes++
	return nil
}

func (h *scriptHAL) Idle() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.idles++
	return nil
}

func (h *scriptHAL) Sleep() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sleeps++
	return nil
}

// reset clears the counters.
func (h *scriptHAL) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = nil
	h.writes, h.reads, h.wakes, h.idles, h.sleeps = 0, 0, 0, 0, 0
}

func testConfig() Config {
	return Config{
		DeviceType:     DeviceATECC608,
		WakeDelay:      time.Microsecond,
		PollInterval:   time.Microsecond,
		RxRetries:      20,
		ExecMargin:     time.Second,
		MaxAttempts:    3,
		MaxBackoff:     time.Millisecond,
		CommandRetries: 1,
	}
}

func openTest(t *testing.T, h *scriptHAL, cfg Config) *Dev {
	t.Helper()
	d, err := Open(context.Background(), h, cfg)
	if err != nil {
		t.Fatal(err)
	}
	h.reset()
	return d
}

var infoCommand = codec.Command{Opcode: opInfo}

func TestOpen(t *testing.T) {
	h := newScriptHAL()
	d, err := Open(context.Background(), h, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if d.State() != StateIdle {
		t.Errorf("state: got %v, want %v", d.State(), StateIdle)
	}
	if len(h.frames) != 2 || h.frames[0].Opcode != opRead || h.frames[1].Opcode != opInfo {
		t.Errorf("unexpected open sequence %+v", h.frames)
	}
	if string(d.revision) != string(testRevision) {
		t.Errorf("revision: got %x, want %x", d.revision, testRevision)
	}
	if h.idles != 2 {
		t.Errorf("idles: got %d, want 2", h.idles)
	}

	rev, err := d.Revision(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(rev) != string(testRevision) {
		t.Errorf("got %x, want %x", rev, testRevision)
	}

	h.reset()
	sn, err := d.SerialNumber(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(sn) != string(testSerial) {
		t.Errorf("serial: got %x, want %x", sn, testSerial)
	}
	if h.writes != 0 {
		t.Errorf("serial number should be cached, got %d writes", h.writes)
	}
}

func TestOpenFailure(t *testing.T) {
	h := newScriptHAL()
	h.respond = func(cmd codec.Command) []byte {
		return codec.EncodeStatus(StatusParse)
	}
	d, err := Open(context.Background(), h, testConfig())
	if d != nil {
		t.Error("expected no handle")
	}
	if !errors.Is(err, ErrParse) || !errors.Is(err, ErrDeviceRejected) {
		t.Errorf("unexpected error %v", err)
	}
	if h.sleeps != 1 {
		t.Errorf("sleeps: got %d, want 1", h.sleeps)
	}
}

func TestExecutePollsNotReady(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())
	h.notReady = 3

	out, err := d.Execute(context.Background(), infoCommand)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(testRevision) {
		t.Errorf("got %x, want %x", out, testRevision)
	}
	if h.reads != 4 {
		t.Errorf("reads: got %d, want 4", h.reads)
	}
}

func TestExecuteTimeout(t *testing.T) {
	h := newScriptHAL()
	cfg := testConfig()
	cfg.RxRetries = 5
	d := openTest(t, h, cfg)
	h.notReady = 100

	_, err := d.Execute(context.Background(), infoCommand)
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("unexpected error %v", err)
	}
	if h.reads != 6 {
		t.Errorf("reads: got %d, want 6", h.reads)
	}
	if d.State() != StateIdle {
		t.Errorf("state: got %v, want %v", d.State(), StateIdle)
	}
}

func TestExecuteWriteFailure(t *testing.T) {
	h := newScriptHAL()
	cfg := testConfig()
	d := openTest(t, h, cfg)
	h.writeErr = errors.New("bus error")

	_, err := d.Execute(context.Background(), infoCommand)
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("unexpected error %v", err)
	}
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransportError, got %T", err)
	}
	if terr.Attempts != cfg.MaxAttempts || terr.Op != "send" {
		t.Errorf("unexpected transport error %+v", terr)
	}
	if h.writes != cfg.MaxAttempts {
		t.Errorf("writes: got %d, want %d", h.writes, cfg.MaxAttempts)
	}
	if h.wakes != cfg.MaxAttempts {
		t.Errorf("wakes: got %d, want %d", h.wakes, cfg.MaxAttempts)
	}
}

func TestExecuteReadFailure(t *testing.T) {
	h := newScriptHAL()
	cfg := testConfig()
	d := openTest(t, h, cfg)
	h.readErr = errors.New("bus error")

	_, err := d.Execute(context.Background(), infoCommand)
	if !errors.Is(err, ErrTransportFailure) || errors.Is(err, ErrTimeout) {
		t.Fatalf("unexpected error %v", err)
	}
	if h.reads != cfg.MaxAttempts {
		t.Errorf("reads: got %d, want %d", h.reads, cfg.MaxAttempts)
	}
	if h.idles != 1 {
		t.Errorf("idles: got %d, want 1", h.idles)
	}
}

func TestExecuteReadFailureBacksOff(t *testing.T) {
	h := newScriptHAL()
	cfg := testConfig()
	cfg.WakeDelay = 5 * time.Millisecond
	cfg.MaxBackoff = 20 * time.Millisecond
	d := openTest(t, h, cfg)
	h.readErr = errors.New("bus error")

	start := time.Now()
	_, err := d.Execute(context.Background(), infoCommand)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("unexpected error %v", err)
	}
	if h.reads != cfg.MaxAttempts {
		t.Errorf("reads: got %d, want %d", h.reads, cfg.MaxAttempts)
	}
	// wake delay, then 5ms and 10ms between the three reads
	if want := 20 * time.Millisecond; elapsed < want {
		t.Errorf("elapsed %v, want at least %v", elapsed, want)
	}
}

func TestBackoff(t *testing.T) {
	d := &Dev{cfg: Config{WakeDelay: time.Millisecond, MaxBackoff: 5 * time.Millisecond}}
	b := d.newBackoff()
	want := []time.Duration{1, 2, 4, 5, 5}
	for i, w := range want {
		if got := b.delay(); got != w*time.Millisecond {
			t.Errorf("delay %d: got %v, want %v", i, got, w*time.Millisecond)
		}
	}
}

func TestExecuteDeviceRejected(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())
	h.respond = func(cmd codec.Command) []byte {
		return codec.EncodeStatus(StatusExecution)
	}

	_, err := d.Execute(context.Background(), infoCommand)
	var rerr *DeviceRejectedError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *DeviceRejectedError, got %v", err)
	}
	if rerr.Opcode != opInfo || rerr.Status != StatusExecution {
		t.Errorf("unexpected rejection %+v", rerr)
	}
	if !errors.Is(err, ErrDeviceRejected) || !errors.Is(err, ErrExecution) {
		t.Errorf("error %v does not match sentinels", err)
	}
	if errors.Is(err, ErrTransportFailure) {
		t.Error("rejection must not be a transport failure")
	}
	if h.writes != 1 {
		t.Errorf("writes: got %d, want 1", h.writes)
	}
	if h.idles != 1 {
		t.Errorf("idles: got %d, want 1", h.idles)
	}
}

func TestExecuteRecoverableStatus(t *testing.T) {
	for _, status := range []uint8{StatusCommunication, StatusWatchdog, StatusWake} {
		h := newScriptHAL()
		d := openTest(t, h, testConfig())
		next := h.respond
		first := true
		h.respond = func(cmd codec.Command) []byte {
			if first {
				first = false
				return codec.EncodeStatus(status)
			}
			return next(cmd)
		}

		out, err := d.Execute(context.Background(), infoCommand)
		if err != nil {
			t.Fatalf("status %#02x: %v", status, err)
		}
		if string(out) != string(testRevision) {
			t.Errorf("status %#02x: got %x", status, out)
		}
		if h.writes != 2 {
			t.Errorf("status %#02x: writes: got %d, want 2", status, h.writes)
		}
	}
}

func TestExecuteRecoverableStatusExhausted(t *testing.T) {
	h := newScriptHAL()
	cfg := testConfig()
	cfg.CommandRetries = 2
	d := openTest(t, h, cfg)
	h.respond = func(cmd codec.Command) []byte {
		return codec.EncodeStatus(StatusCommunication)
	}

	_, err := d.Execute(context.Background(), infoCommand)
	if !errors.Is(err, ErrCommunication) {
		t.Fatalf("unexpected error %v", err)
	}
	if h.writes != 3 {
		t.Errorf("writes: got %d, want 3", h.writes)
	}
}

func TestExecuteCodecError(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())
	h.respond = func(cmd codec.Command) []byte {
		b := codec.EncodeResponse(testRevision)
		b[len(b)-1] ^= 0xff
		return b
	}

	_, err := d.Execute(context.Background(), infoCommand)
	if !errors.Is(err, codec.ErrChecksumMismatch) {
		t.Fatalf("unexpected error %v", err)
	}
	if errors.Is(err, ErrTransportFailure) || errors.Is(err, ErrDeviceRejected) {
		t.Errorf("codec error %v matches session errors", err)
	}
}

func TestExecuteCanceled(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Execute(ctx, infoCommand); !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error %v", err)
	}
	if h.writes != 0 {
		t.Errorf("writes: got %d, want 0", h.writes)
	}
}

func TestExecuteConcurrent(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Execute(context.Background(), infoCommand)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if h.overlap {
		t.Error("commands interleaved")
	}
	if h.writes != n {
		t.Errorf("writes: got %d, want %d", h.writes, n)
	}
}

func TestRejectConcurrent(t *testing.T) {
	h := newScriptHAL()
	cfg := testConfig()
	cfg.RejectConcurrent = true
	d := openTest(t, h, cfg)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = d.transaction(context.Background(), func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	if d.State() != StateBusy {
		t.Errorf("state: got %v, want %v", d.State(), StateBusy)
	}
	if _, err := d.Execute(context.Background(), infoCommand); !errors.Is(err, ErrBusy) {
		t.Errorf("unexpected error %v", err)
	}
	close(done)
}

func TestQueueHonoursContext(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = d.transaction(context.Background(), func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := d.Execute(ctx, infoCommand); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestClose(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if h.sleeps != 1 {
		t.Errorf("sleeps: got %d, want 1", h.sleeps)
	}
	if d.State() != StateClosed {
		t.Errorf("state: got %v, want %v", d.State(), StateClosed)
	}
	if _, err := d.Execute(context.Background(), infoCommand); !errors.Is(err, ErrClosed) {
		t.Errorf("unexpected error %v", err)
	}
	if _, err := d.Revision(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("unexpected error %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if h.sleeps != 1 {
		t.Errorf("sleeps: got %d, want 1", h.sleeps)
	}
}

func TestMultiCommandOperationHoldsHandle(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())

	digest := make([]byte, 32)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = d.SignDigest(context.Background(), 0, digest)
	}()
	go func() {
		defer wg.Done()
		_, _ = d.Revision(context.Background())
	}()
	wg.Wait()

	// Random, Nonce and Sign must be adjacent.
	for i, f := range h.frames {
		if f.Opcode != opRandom {
			continue
		}
		if i+2 >= len(h.frames) || h.frames[i+1].Opcode != opNonce || h.frames[i+2].Opcode != opSign {
			t.Errorf("sign sequence interleaved: %+v", h.frames)
		}
	}
}
