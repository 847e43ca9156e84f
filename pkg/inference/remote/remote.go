// Package remote runs inference in a sidecar process reached over a
// websocket, for example a MediaPipe server producing full face meshes.
//
// Protocol: after connecting, the client sends one JSON text message
//
//	{"type":"options","service":"mesh","options":{...}}
//
// then, per frame, one binary message holding an 8-byte big-endian sequence
// id followed by a JPEG. The server answers every frame with one JSON text
// message, see Reply.
package remote

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-faceoverlay/internal/log"
	"github.com/teslashibe/go-faceoverlay/pkg/frame"
	"github.com/teslashibe/go-faceoverlay/pkg/inference"
)

// seqHeaderLen is the size of the sequence prefix on frame messages.
const seqHeaderLen = 8

var (
	// ErrShortMessage is returned for a frame message without a sequence header.
	ErrShortMessage = errors.New("remote: frame message too short")
	// ErrClosed is returned by Infer after Close.
	ErrClosed = errors.New("remote: client closed")
)

// OptionsMessage is the first message on a connection.
type OptionsMessage struct {
	Type    string            `json:"type"`
	Service inference.Service `json:"service"`
	Options any               `json:"options"`
}

// WireDetection is a detection as sent by the server.
type WireDetection struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Score  float64 `json:"score"`
}

// Reply is the server's answer to one frame.
type Reply struct {
	Seq        uint64                  `json:"seq"`
	Faces      []inference.LandmarkSet `json:"faces,omitempty"`
	Detections []WireDetection         `json:"detections,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// EncodeFrame builds a frame message.
func EncodeFrame(seq uint64, jpeg []byte) []byte {
	msg := make([]byte, seqHeaderLen+len(jpeg))
	binary.BigEndian.PutUint64(msg, seq)
	copy(msg[seqHeaderLen:], jpeg)
	return msg
}

// DecodeFrame splits a frame message into its sequence id and JPEG.
func DecodeFrame(msg []byte) (uint64, []byte, error) {
	if len(msg) < seqHeaderLen {
		return 0, nil, ErrShortMessage
	}
	return binary.BigEndian.Uint64(msg), msg[seqHeaderLen:], nil
}

// Config holds client configuration.
type Config struct {
	URL         string
	Service     inference.Service
	Options     any           // Sent verbatim in the options message
	JPEGQuality int           // Quality of uploaded frames
	Timeout     time.Duration // Per-frame round trip limit
	Header      http.Header   // Extra handshake headers
}

// Client is a connection to an inference sidecar. Infer calls are
// serialized; each frame is answered before the next is sent. A failed
// round trip drops the connection and the next Infer redials.
type Client struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	ws     *websocket.Conn // nil while disconnected
	closed bool
}

// Dial connects to the sidecar and sends the options message.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, inference.WrapError(cfg.Service, inference.ErrNoModel)
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 85
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	c := &Client{
		config: cfg,
		logger: log.Component("inference.remote").With("service", string(cfg.Service), "url", cfg.URL),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	c.logger.Info("connected to inference sidecar")
	return c, nil
}

// connect opens a connection and sends the options message. c.mu must be
// held or c not yet shared.
func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, c.config.URL, c.config.Header)
	if err != nil {
		return inference.WrapError(c.config.Service, fmt.Errorf("dial %s: %w", c.config.URL, err))
	}
	if err := ws.WriteJSON(OptionsMessage{Type: "options", Service: c.config.Service, Options: c.config.Options}); err != nil {
		ws.Close()
		return inference.WrapError(c.config.Service, fmt.Errorf("send options: %w", err))
	}
	c.ws = ws
	return nil
}

// drop discards a connection whose state is unknown after a failed round
// trip. gorilla connections are unusable after a read error.
func (c *Client) drop() {
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
}

// Infer sends one frame and waits for its reply.
func (c *Client) Infer(ctx context.Context, f *frame.Frame) (*Reply, error) {
	jpeg, err := f.JPEG(c.config.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.ws == nil {
		c.logger.Debug("reconnecting to inference sidecar")
		if err := c.connect(ctx); err != nil {
			return nil, err
		}
		c.logger.Info("reconnected to inference sidecar")
	}
	ws := c.ws

	deadline := time.Now().Add(c.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ws.SetWriteDeadline(deadline)
	ws.SetReadDeadline(deadline)

	// Unblock the read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		ws.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := ws.WriteMessage(websocket.BinaryMessage, EncodeFrame(f.Seq, jpeg)); err != nil {
		c.drop()
		return nil, fmt.Errorf("send frame: %w", err)
	}

	var reply Reply
	if err := ws.ReadJSON(&reply); err != nil {
		c.drop()
		if ctxErr := contextError(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("sidecar round trip failed, will redial", "seq", f.Seq, "error", err)
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("sidecar: %s", reply.Error)
	}
	if reply.Seq != f.Seq {
		return nil, fmt.Errorf("reply for frame %d, expected %d", reply.Seq, f.Seq)
	}
	return &reply, nil
}

// contextError reports ctx's error, treating a passed deadline as expired
// even before the context's timer fires.
func contextError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return nil
}

// MeshModel returns a mesh model backed by the sidecar.
func (c *Client) MeshModel() inference.Model[inference.MeshResults] {
	return func(ctx context.Context, f *frame.Frame) (inference.MeshResults, error) {
		reply, err := c.Infer(ctx, f)
		if err != nil {
			return inference.MeshResults{}, err
		}
		return inference.MeshResults{Seq: reply.Seq, Faces: reply.Faces}, nil
	}
}

// DetectionModel returns a detection model backed by the sidecar. The
// sidecar applies opts itself; the result image is the frame mirrored
// locally the same way, at full resolution.
func (c *Client) DetectionModel(opts inference.DetectionOptions) inference.Model[inference.DetectionResults] {
	return func(ctx context.Context, f *frame.Frame) (inference.DetectionResults, error) {
		reply, err := c.Infer(ctx, f)
		if err != nil {
			return inference.DetectionResults{}, err
		}

		res := inference.DetectionResults{
			Seq:        reply.Seq,
			Image:      opts.Display(f.Image),
			Detections: make([]inference.Detection, 0, len(reply.Detections)),
		}
		for _, d := range reply.Detections {
			res.Detections = append(res.Detections, inference.Detection{
				Box:   inference.BoundingBox{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height},
				Score: d.Score,
			})
		}
		return res, nil
	}
}

// Close closes the connection. Later Infer calls return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.ws == nil {
		return nil
	}
	ws := c.ws
	c.ws = nil
	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return ws.Close()
}
