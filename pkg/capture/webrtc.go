package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
	"github.com/teslashibe/go-faceoverlay/internal/log"
)

// H264 NAL unit types we care about.
const (
	nalIDR = 5
	nalSPS = 7
	nalPPS = 8
)

// WebRTCOption configures a WebRTCSource.
type WebRTCOption func(*WebRTCSource)

// WithProducer selects the producer whose meta "name" matches. By default the
// first producer listed by the signalling server is used.
func WithProducer(name string) WebRTCOption {
	return func(s *WebRTCSource) { s.producerName = name }
}

// WithDecodeInterval limits how often buffered video is decoded.
func WithDecodeInterval(d time.Duration) WebRTCOption {
	return func(s *WebRTCSource) { s.decodeInterval = d }
}

// WithDecoder replaces the ffmpeg decoder.
func WithDecoder(d *Decoder) WebRTCOption {
	return func(s *WebRTCSource) { s.decoder = d }
}

// WebRTCSource receives a remote camera over WebRTC using GStreamer-style
// websocket signalling (welcome, list, startSession, peer, endSession).
type WebRTCSource struct {
	signallingURL  string
	producerName   string
	decodeInterval time.Duration
	decoder        *Decoder
	logger         *slog.Logger

	ws      *websocket.Conn
	wsMutex sync.Mutex
	pc      *webrtc.PeerConnection

	myPeerID   string
	producerID string
	sessionID  string
	sessionMu  sync.Mutex

	// Group of pictures since the last keyframe, with cached parameter sets
	sps, pps []byte
	gop      bytes.Buffer
	pending  chan []byte

	frames chan image.Image
	ready  chan struct{}

	sizeMu sync.RWMutex
	size   image.Point

	closed atomic.Bool
	closeC chan struct{}
}

// DialWebRTC connects to the signalling server, negotiates a receive-only
// video session and waits until the first track arrives.
func DialWebRTC(ctx context.Context, signallingURL string, opts ...WebRTCOption) (*WebRTCSource, error) {
	s := &WebRTCSource{
		signallingURL:  signallingURL,
		decodeInterval: 100 * time.Millisecond,
		decoder:        NewDecoder(),
		logger:         log.Component("capture.webrtc").With("url", signallingURL),
		pending:        make(chan []byte, 1),
		frames:         make(chan image.Image, 1),
		ready:          make(chan struct{}, 1),
		closeC:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.connect(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s, nil
}

func (s *WebRTCSource) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	var err error
	s.ws, _, err = dialer.DialContext(ctx, s.signallingURL, nil)
	if err != nil {
		return fmt.Errorf("signalling connect failed: %w", err)
	}

	if err := s.waitForWelcome(); err != nil {
		return fmt.Errorf("welcome failed: %w", err)
	}
	if err := s.findProducer(); err != nil {
		return fmt.Errorf("find producer failed: %w", err)
	}

	trackReady := make(chan struct{}, 1)
	if err := s.createPeerConnection(trackReady); err != nil {
		return fmt.Errorf("peer connection failed: %w", err)
	}
	if err := s.writeJSON(map[string]string{"type": "startSession", "peerId": s.producerID}); err != nil {
		return fmt.Errorf("start session failed: %w", err)
	}

	go s.handleSignalling()
	go s.decodeLoop()

	select {
	case <-trackReady:
		s.logger.Info("video track connected", "producer", s.producerID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(15 * time.Second):
		return fmt.Errorf("timeout waiting for video")
	}
}

func (s *WebRTCSource) writeJSON(v interface{}) error {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	return s.ws.WriteJSON(v)
}

func (s *WebRTCSource) waitForWelcome() error {
	s.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer s.ws.SetReadDeadline(time.Time{})

	var welcome struct {
		Type   string `json:"type"`
		PeerID string `json:"peerId"`
	}
	if err := s.ws.ReadJSON(&welcome); err != nil {
		return err
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	s.myPeerID = welcome.PeerID
	return nil
}

func (s *WebRTCSource) findProducer() error {
	if err := s.writeJSON(map[string]string{"type": "list"}); err != nil {
		return err
	}

	s.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer s.ws.SetReadDeadline(time.Time{})

	var listResp struct {
		Type      string `json:"type"`
		Producers []struct {
			ID   string            `json:"id"`
			Meta map[string]string `json:"meta"`
		} `json:"producers"`
	}
	if err := s.ws.ReadJSON(&listResp); err != nil {
		return err
	}

	for _, p := range listResp.Producers {
		if s.producerName == "" || p.Meta["name"] == s.producerName {
			s.producerID = p.ID
			return nil
		}
	}
	return fmt.Errorf("producer %q not found in %d producers", s.producerName, len(listResp.Producers))
}

func (s *WebRTCSource) createPeerConnection(trackReady chan struct{}) error {
	var err error
	s.pc, err = webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}

	if _, err = s.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.Info("got track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeH264) {
			s.logger.Warn("unsupported video codec", "codec", track.Codec().MimeType)
			return
		}
		Notify(trackReady)
		go s.handleVideoTrack(track)
	})

	s.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			s.sendICECandidate(candidate)
		}
	})

	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("connection state", "state", state.String())
	})

	return nil
}

func (s *WebRTCSource) handleSignalling() {
	for !s.closed.Load() {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.logger.Warn("signalling error", "error", err)
			}
			return
		}

		var base struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "sessionStarted":
			s.sessionMu.Lock()
			s.sessionID = base.SessionID
			s.sessionMu.Unlock()
		case "peer":
			s.handlePeerMessage(msg)
		case "endSession":
			s.logger.Info("session ended by producer")
			return
		}
	}
}

// peerMessage is the payload of a "peer" signalling message.
type peerMessage struct {
	SDP *struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	} `json:"sdp"`
	ICE *struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	} `json:"ice"`
}

func (s *WebRTCSource) handlePeerMessage(msg []byte) {
	var pm peerMessage
	if err := json.Unmarshal(msg, &pm); err != nil {
		s.logger.Warn("bad peer message", "error", err)
		return
	}

	if pm.SDP != nil && pm.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: pm.SDP.SDP}
		if err := s.pc.SetRemoteDescription(offer); err != nil {
			s.logger.Warn("SetRemoteDescription failed", "error", err)
			return
		}
		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			s.logger.Warn("CreateAnswer failed", "error", err)
			return
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			s.logger.Warn("SetLocalDescription failed", "error", err)
			return
		}
		s.sendPeer(map[string]interface{}{
			"sdp": map[string]string{"type": answer.Type.String(), "sdp": answer.SDP},
		})
	}

	if pm.ICE != nil {
		if err := s.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     pm.ICE.Candidate,
			SDPMid:        pm.ICE.SDPMid,
			SDPMLineIndex: pm.ICE.SDPMLineIndex,
		}); err != nil {
			s.logger.Debug("AddICECandidate failed", "error", err)
		}
	}
}

func (s *WebRTCSource) sendICECandidate(candidate *webrtc.ICECandidate) {
	init := candidate.ToJSON()
	s.sendPeer(map[string]interface{}{
		"ice": map[string]interface{}{
			"candidate":     init.Candidate,
			"sdpMid":        init.SDPMid,
			"sdpMLineIndex": init.SDPMLineIndex,
		},
	})
}

func (s *WebRTCSource) sendPeer(payload map[string]interface{}) {
	s.sessionMu.Lock()
	sessionID := s.sessionID
	s.sessionMu.Unlock()
	if sessionID == "" {
		return
	}

	payload["type"] = "peer"
	payload["sessionId"] = sessionID
	if err := s.writeJSON(payload); err != nil {
		s.logger.Debug("send peer message failed", "error", err)
	}
}

// handleVideoTrack depacketizes H264 and hands complete pictures to the
// decode loop, keeping everything since the last keyframe.
func (s *WebRTCSource) handleVideoTrack(track *webrtc.TrackRemote) {
	var depack codecs.H264Packet
	var au bytes.Buffer
	lastDecode := time.Now()

	for !s.closed.Load() {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}

		nal, err := depack.Unmarshal(pkt.Payload)
		if err != nil {
			continue
		}
		au.Write(nal)

		if !pkt.Marker {
			continue
		}
		s.appendAccessUnit(au.Bytes())
		au.Reset()

		if time.Since(lastDecode) >= s.decodeInterval && s.gop.Len() > 0 {
			buf := make([]byte, s.gop.Len())
			copy(buf, s.gop.Bytes())
			select {
			case s.pending <- buf:
			default:
				// decoder busy, newer data will follow
			}
			lastDecode = time.Now()
		}
	}
}

func (s *WebRTCSource) appendAccessUnit(au []byte) {
	keyframe := false
	for _, nal := range splitNALs(au) {
		switch nal[0] & 0x1F {
		case nalSPS:
			s.sps = annexB(nal)
		case nalPPS:
			s.pps = annexB(nal)
		case nalIDR:
			keyframe = true
		}
	}

	if keyframe {
		s.gop.Reset()
		s.gop.Write(s.sps)
		s.gop.Write(s.pps)
	} else if s.gop.Len() == 0 {
		return // wait for the first keyframe
	}
	s.gop.Write(au)
}

func (s *WebRTCSource) decodeLoop() {
	for {
		select {
		case <-s.closeC:
			return
		case buf := <-s.pending:
			img, err := s.decoder.Decode(context.Background(), buf)
			if err != nil {
				s.logger.Debug("decode failed", "error", err)
				continue
			}
			s.publish(img)
		}
	}
}

func (s *WebRTCSource) publish(img image.Image) {
	size := img.Bounds().Size()
	s.sizeMu.Lock()
	changed := size != s.size
	s.size = size
	s.sizeMu.Unlock()
	if changed && IsReady(size) {
		s.logger.Info("video size negotiated", "width", size.X, "height", size.Y)
		Notify(s.ready)
	}

	// latest frame wins
	select {
	case s.frames <- img:
	default:
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- img:
		default:
		}
	}
}

// Read waits for the next decoded picture.
func (s *WebRTCSource) Read(ctx context.Context) (image.Image, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closeC:
		return nil, ErrClosed
	case img := <-s.frames:
		return img, nil
	}
}

// VideoSize returns the size of the most recently decoded picture.
func (s *WebRTCSource) VideoSize() image.Point {
	s.sizeMu.RLock()
	defer s.sizeMu.RUnlock()
	return s.size
}

// Ready returns the readiness signal channel.
func (s *WebRTCSource) Ready() <-chan struct{} {
	return s.ready
}

// Close tears down the peer connection and the signalling socket.
func (s *WebRTCSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.closeC)

	var err error
	if s.pc != nil {
		err = s.pc.Close()
	}
	if s.ws != nil {
		s.ws.Close()
	}
	return err
}

// splitNALs splits an Annex-B byte stream into NAL units without start codes.
func splitNALs(b []byte) [][]byte {
	var nals [][]byte
	start := -1
	for i := 0; i+2 < len(b); i++ {
		if b[i] != 0 || b[i+1] != 0 || b[i+2] != 1 {
			continue
		}
		if start >= 0 {
			end := i
			if end > start && b[end-1] == 0 {
				end-- // four byte start code
			}
			if end > start {
				nals = append(nals, b[start:end])
			}
		}
		start = i + 3
		i += 2
	}
	if start >= 0 && start < len(b) {
		nals = append(nals, b[start:])
	}
	return nals
}

func annexB(nal []byte) []byte {
	out := make([]byte, 0, len(nal)+4)
	out = append(out, 0, 0, 0, 1)
	return append(out, nal...)
}

var _ Source = (*WebRTCSource)(nil)
