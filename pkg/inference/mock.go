package inference

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-faceoverlay/pkg/frame"
)

// Mock provides scripted mesh and detection models for testing.
type Mock struct {
	// MeshFunc is called when Mesh is invoked.
	MeshFunc func(ctx context.Context, f *frame.Frame) (MeshResults, error)

	// DetectionFunc is called when Detection is invoked.
	DetectionFunc func(ctx context.Context, f *frame.Frame) (DetectionResults, error)

	// Delay is applied before each call returns, emulating model latency.
	Delay time.Duration

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a model invocation.
type MockCall struct {
	Method string
	Seq    uint64
	Time   time.Time
}

// MockFace is the landmark set the default mesh model returns: a square
// around the image center.
var MockFace = LandmarkSet{
	{X: 0.25, Y: 0.25},
	{X: 0.75, Y: 0.25},
	{X: 0.75, Y: 0.75},
	{X: 0.25, Y: 0.75},
}

// NewMock creates a mock with one face and one detection per frame.
func NewMock() *Mock {
	return &Mock{
		MeshFunc: func(ctx context.Context, f *frame.Frame) (MeshResults, error) {
			return MeshResults{Seq: f.Seq, Faces: []LandmarkSet{MockFace}}, nil
		},
		DetectionFunc: func(ctx context.Context, f *frame.Frame) (DetectionResults, error) {
			return DetectionResults{
				Seq:   f.Seq,
				Image: f.Image,
				Detections: []Detection{
					{Box: BoundingBox{X: 0.25, Y: 0.25, Width: 0.5, Height: 0.5}, Score: 0.9},
				},
			}, nil
		},
	}
}

// Mesh implements Model[MeshResults].
func (m *Mock) Mesh(ctx context.Context, f *frame.Frame) (MeshResults, error) {
	m.recordCall("Mesh", f)
	if err := m.wait(ctx); err != nil {
		return MeshResults{}, err
	}
	if m.MeshFunc != nil {
		return m.MeshFunc(ctx, f)
	}
	return MeshResults{Seq: f.Seq}, nil
}

// Detection implements Model[DetectionResults].
func (m *Mock) Detection(ctx context.Context, f *frame.Frame) (DetectionResults, error) {
	m.recordCall("Detection", f)
	if err := m.wait(ctx); err != nil {
		return DetectionResults{}, err
	}
	if m.DetectionFunc != nil {
		return m.DetectionFunc(ctx, f)
	}
	return DetectionResults{Seq: f.Seq, Image: f.Image}, nil
}

func (m *Mock) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.Delay):
		return nil
	}
}

func (m *Mock) recordCall(method string, f *frame.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Seq: f.Seq, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of calls to a specific method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Recorder is a Submitter that records the frames it is sent. The pump
// tests use it to observe dispatch order.
type Recorder struct {
	// Name is written to the shared log with every frame.
	Name string

	// Log, when set, is shared between recorders to capture interleaving.
	Log *SendLog

	// Err is returned from Send when set.
	Err error

	mu     sync.Mutex
	frames []*frame.Frame
}

// SendLog is an ordered record of Send calls across recorders.
type SendLog struct {
	mu      sync.Mutex
	entries []SendEntry
}

// SendEntry is one logged Send.
type SendEntry struct {
	Name string
	Seq  uint64
}

// Entries returns a copy of the log.
func (l *SendLog) Entries() []SendEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SendEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *SendLog) add(name string, seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, SendEntry{Name: name, Seq: seq})
}

// Send records f.
func (r *Recorder) Send(ctx context.Context, f *frame.Frame) error {
	if r.Log != nil {
		r.Log.add(r.Name, f.Seq)
	}
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

// Frames returns the accepted frames.
func (r *Recorder) Frames() []*frame.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*frame.Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// Verify the interfaces at compile time.
var (
	_ Model[MeshResults]      = (*Mock)(nil).Mesh
	_ Model[DetectionResults] = (*Mock)(nil).Detection
	_ Submitter               = (*Recorder)(nil)
	_ Submitter               = (*Engine[MeshResults])(nil)
)
