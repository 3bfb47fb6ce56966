package drone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-dronescan/internal/config"
	"github.com/teslashibe/go-dronescan/internal/log"
	"github.com/teslashibe/go-dronescan/pkg/frame"
)

// TelloConfig configures the SDK connection.
type TelloConfig struct {
	IP          string
	CommandPort int
	StatePort   int // local port for the state stream; 0 picks an ephemeral port

	// CommandTimeout bounds every request/response exchange.
	CommandTimeout time.Duration

	// MaxTelemetryAge is how old a state packet may be before Height refuses it.
	MaxTelemetryAge time.Duration
}

// DefaultTelloConfig returns the SDK defaults for a Tello in station mode.
func DefaultTelloConfig() TelloConfig {
	return TelloConfig{
		IP:              config.DefaultDroneIP,
		CommandPort:     config.DefaultCommandPort,
		StatePort:       config.DefaultStatePort,
		CommandTimeout:  7 * time.Second,
		MaxTelemetryAge: 500 * time.Millisecond,
	}
}

// State is one parsed telemetry packet.
type State struct {
	TOF      int // time-of-flight height, cm
	Height   int // barometric-relative height, cm
	Battery  int
	Received time.Time
}

// Tello drives a DJI Tello over the plain-text SDK.
type Tello struct {
	cfg      TelloConfig
	log      *slog.Logger
	newVideo func() VideoDecoder

	cmdMu sync.Mutex // serialises request/response exchanges
	addr  *net.UDPAddr
	conn  *net.UDPConn

	stateConn *net.UDPConn
	stateMu   sync.RWMutex
	state     State
	haveState bool

	videoMu sync.Mutex
	video   VideoDecoder

	wg sync.WaitGroup
}

// NewTello creates an unconnected client. newVideo builds the decoder used
// after StreamOn; it may be nil when video is not needed.
func NewTello(cfg TelloConfig, newVideo func() VideoDecoder) *Tello {
	return &Tello{
		cfg:      cfg,
		log:      log.Component("tello"),
		newVideo: newVideo,
	}
}

// Connect opens the command and state sockets and enters SDK mode.
func (t *Tello) Connect(ctx context.Context) error {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(t.cfg.IP, strconv.Itoa(t.cfg.CommandPort)))
	if err != nil {
		return fmt.Errorf("resolve drone address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("dial drone: %w", err)
	}

	stateConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: t.cfg.StatePort})
	if err != nil {
		conn.Close()
		return fmt.Errorf("listen for state: %w", err)
	}

	t.cmdMu.Lock()
	t.addr = raddr
	t.conn = conn
	t.cmdMu.Unlock()
	t.stateConn = stateConn

	t.wg.Add(1)
	go t.readState()

	if err := t.control(ctx, "command"); err != nil {
		t.Close()
		return fmt.Errorf("enter SDK mode: %w", err)
	}

	t.log.Info("connected", "addr", raddr.String(), "state_port", t.StateAddr().Port)
	return nil
}

// StateAddr returns the local address of the state listener.
func (t *Tello) StateAddr() *net.UDPAddr {
	if t.stateConn == nil {
		return nil
	}
	return t.stateConn.LocalAddr().(*net.UDPAddr)
}

// Close stops video, closes both sockets and waits for the state reader.
func (t *Tello) Close() error {
	t.stopVideo()

	t.cmdMu.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.cmdMu.Unlock()

	if t.stateConn != nil {
		t.stateConn.Close()
	}
	t.wg.Wait()
	return nil
}

// Battery queries the battery percentage.
func (t *Tello) Battery(ctx context.Context) (int, error) {
	reply, err := t.exchange(ctx, "battery?")
	if err != nil {
		return 0, err
	}
	pct, err := strconv.Atoi(reply)
	if err != nil {
		return 0, &CommandError{Command: "battery?", Reply: reply}
	}
	return pct, nil
}

// Height returns the ToF height from the most recent state packet. Packets older
// than MaxTelemetryAge are rejected rather than served stale.
func (t *Tello) Height(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s, ok := t.State()
	if !ok {
		return 0, ErrStaleTelemetry
	}
	if age := time.Since(s.Received); age > t.cfg.MaxTelemetryAge {
		return 0, fmt.Errorf("%w: last packet %v ago", ErrStaleTelemetry, age.Round(time.Millisecond))
	}
	return s.TOF, nil
}

// State returns the latest telemetry packet and whether one was received.
func (t *Tello) State() (State, bool) {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.state, t.haveState
}

// Takeoff launches and waits for the drone to confirm.
func (t *Tello) Takeoff(ctx context.Context) error {
	return t.control(ctx, "takeoff")
}

// Land lands and waits for the drone to confirm.
func (t *Tello) Land(ctx context.Context) error {
	return t.control(ctx, "land")
}

// SendVelocity sets the rc sticks. The SDK does not acknowledge rc commands,
// so only transport errors are reported.
func (t *Tello) SendVelocity(ctx context.Context, v Velocity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	if _, err := t.conn.Write([]byte(v.Command())); err != nil {
		return fmt.Errorf("send rc: %w", err)
	}
	return nil
}

// Rotate turns in place; positive degrees turn counter-clockwise.
func (t *Tello) Rotate(ctx context.Context, degrees int) error {
	switch {
	case degrees == 0:
		return nil
	case degrees > 360 || degrees < -360:
		return fmt.Errorf("%w: %d", ErrInvalidRotation, degrees)
	case degrees > 0:
		return t.control(ctx, fmt.Sprintf("ccw %d", degrees))
	default:
		return t.control(ctx, fmt.Sprintf("cw %d", -degrees))
	}
}

// StreamOn enables the video stream and starts the decoder.
func (t *Tello) StreamOn(ctx context.Context) error {
	if err := t.control(ctx, "streamon"); err != nil {
		return err
	}
	if t.newVideo == nil {
		return nil
	}

	dec := t.newVideo()
	if err := dec.Start(); err != nil {
		return fmt.Errorf("start video decoder: %w", err)
	}
	t.videoMu.Lock()
	t.video = dec
	t.videoMu.Unlock()
	return nil
}

// StreamOff stops the decoder and disables the video stream.
func (t *Tello) StreamOff(ctx context.Context) error {
	t.stopVideo()
	return t.control(ctx, "streamoff")
}

// LatestFrame returns the newest decoded frame; nil before the stream starts.
func (t *Tello) LatestFrame() (*frame.Frame, error) {
	t.videoMu.Lock()
	dec := t.video
	t.videoMu.Unlock()
	if dec == nil {
		return nil, nil
	}
	return dec.Latest()
}

func (t *Tello) stopVideo() {
	t.videoMu.Lock()
	dec := t.video
	t.video = nil
	t.videoMu.Unlock()
	if dec != nil {
		if err := dec.Close(); err != nil {
			t.log.Warn("video decoder close", "error", err)
		}
	}
}

// control sends a command that must be answered with "ok".
func (t *Tello) control(ctx context.Context, cmd string) error {
	reply, err := t.exchange(ctx, cmd)
	if err != nil {
		return err
	}
	if !strings.EqualFold(reply, "ok") {
		return &CommandError{Command: cmd, Reply: reply}
	}
	return nil
}

// exchange sends cmd and waits for a single reply datagram. Cancelling ctx
// interrupts the wait.
func (t *Tello) exchange(ctx context.Context, cmd string) (string, error) {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	if t.conn == nil {
		return "", ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	deadline := time.Now().Add(t.cfg.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return "", fmt.Errorf("set deadline: %w", err)
	}

	if _, err := t.conn.Write([]byte(cmd)); err != nil {
		return "", fmt.Errorf("send %q: %w", cmd, err)
	}

	conn := t.conn
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	stop()

	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			t.redial()
			if cerr := ctx.Err(); cerr != nil {
				return "", fmt.Errorf("%q: %w", cmd, cerr)
			}
			return "", fmt.Errorf("%q: %w", cmd, ErrTimeout)
		}
		return "", fmt.Errorf("read reply to %q: %w", cmd, err)
	}

	reply := strings.TrimSpace(string(buf[:n]))
	t.log.Debug("command", "cmd", cmd, "reply", reply)
	return reply, nil
}

// redial replaces the command socket after an unanswered command. The drone
// answers the port a command came from, so a late reply lands on the closed
// socket instead of being read as the answer to the next command.
// Callers hold cmdMu.
func (t *Tello) redial() {
	conn, err := net.DialUDP("udp", nil, t.addr)
	if err != nil {
		t.log.Warn("redial after timeout failed, keeping old socket", "error", err)
		return
	}
	t.conn.Close()
	t.conn = conn
	t.log.Debug("command socket replaced", "local", conn.LocalAddr().String())
}

// readState consumes the state stream until the socket is closed.
func (t *Tello) readState() {
	defer t.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, _, err := t.stateConn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.log.Warn("state stream ended", "error", err)
			}
			return
		}

		s, ok := ParseState(string(buf[:n]))
		if !ok {
			continue
		}
		s.Received = time.Now()

		t.stateMu.Lock()
		t.state = s
		t.haveState = true
		t.stateMu.Unlock()
	}
}

// ParseState decodes a "key:value;key:value;" state packet. It reports false
// when the packet carries no tof field.
func ParseState(packet string) (State, bool) {
	var s State
	found := false
	for _, field := range strings.Split(strings.TrimSpace(packet), ";") {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		switch strings.TrimSpace(key) {
		case "tof":
			s.TOF = n
			found = true
		case "h":
			s.Height = n
		case "bat":
			s.Battery = n
		}
	}
	return s, found
}
