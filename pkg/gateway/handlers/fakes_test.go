package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/credential"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/storage"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/studio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/video"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/workspace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeVideo finishes every operation on the first poll with inline bytes.
type fakeVideo struct {
	mu      sync.Mutex
	starts  []video.StartRequest
	extends []video.ExtendRequest
	block   chan struct{}
}

func (f *fakeVideo) StartGeneration(ctx context.Context, req video.StartRequest) (*video.Operation, error) {
	f.mu.Lock()
	f.starts = append(f.starts, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &video.Operation{Name: "operations/start"}, nil
}

func (f *fakeVideo) ExtendGeneration(ctx context.Context, req video.ExtendRequest) (*video.Operation, error) {
	f.mu.Lock()
	f.extends = append(f.extends, req)
	f.mu.Unlock()
	return &video.Operation{Name: "operations/extend"}, nil
}

func (f *fakeVideo) PollStatus(ctx context.Context, op *video.Operation) (*video.Operation, error) {
	return &video.Operation{
		Name: op.Name,
		Done: true,
		Response: &video.Result{Videos: []video.Video{{
			URI:      "https://example.test/" + op.Name,
			MIMEType: "video/mp4",
			Data:     []byte("mp4:" + op.Name),
		}}},
	}, nil
}

func (f *fakeVideo) FetchResult(ctx context.Context, v video.Video) ([]byte, error) {
	return v.Data, nil
}

func (f *fakeVideo) lastStart() (video.StartRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.starts) == 0 {
		return video.StartRequest{}, false
	}
	return f.starts[len(f.starts)-1], true
}

type fakeStudio struct {
	mu        sync.Mutex
	keys      *credential.Keyring
	lastKey   string
	lastChat  studio.ChatRequest
	lastImage studio.ImageRequest
	frames    int
	err       error
}

func (f *fakeStudio) record() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys != nil {
		f.lastKey = f.keys.Key()
	}
}

func (f *fakeStudio) GenerateImage(ctx context.Context, req studio.ImageRequest) (*studio.Media, error) {
	f.record()
	f.mu.Lock()
	f.lastImage = req
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &studio.Media{Data: []byte("png"), MIMEType: "image/png"}, nil
}

func (f *fakeStudio) EditImage(ctx context.Context, req studio.EditRequest) (*studio.Media, error) {
	f.record()
	return &studio.Media{Data: append([]byte("edited:"), req.Image.Data...), MIMEType: "image/png"}, nil
}

func (f *fakeStudio) Chat(ctx context.Context, req studio.ChatRequest) (string, error) {
	f.record()
	f.mu.Lock()
	f.lastChat = req
	f.mu.Unlock()
	return "hello " + req.Message, nil
}

func (f *fakeStudio) Story(ctx context.Context, image studio.Media) (string, error) {
	f.record()
	return "once upon a time", nil
}

func (f *fakeStudio) Inspiration(ctx context.Context, subject string) (string, error) {
	f.record()
	return "a " + subject + " at dawn", nil
}

func (f *fakeStudio) AnalyzeFrames(ctx context.Context, frames []studio.Media) (string, error) {
	f.record()
	f.mu.Lock()
	f.frames = len(frames)
	f.mu.Unlock()
	return "a cat jumps", nil
}

func (f *fakeStudio) Speak(ctx context.Context, text string, c *types.Character) (*studio.Speech, error) {
	f.record()
	return &studio.Speech{Data: []byte{1, 0, 2, 0}, SampleRate: audio.OutputSampleRate}, nil
}

func (f *fakeStudio) key() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKey
}

type fakeLiveStream struct {
	incoming chan *live.ServerMessage
	sent     chan audio.Blob
	done     chan struct{}
	once     sync.Once
}

func (s *fakeLiveStream) SendAudio(b audio.Blob) error {
	select {
	case s.sent <- b:
	default:
	}
	return nil
}

func (s *fakeLiveStream) Receive() (*live.ServerMessage, error) {
	select {
	case m := <-s.incoming:
		return m, nil
	case <-s.done:
		return nil, live.ErrStreamClosed
	}
}

func (s *fakeLiveStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type fakeLiveConnector struct {
	mu      sync.Mutex
	streams []*fakeLiveStream
	configs []live.ConnectConfig
	err     error
}

func (c *fakeLiveConnector) Connect(ctx context.Context, cfg live.ConnectConfig) (live.Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	s := &fakeLiveStream{
		incoming: make(chan *live.ServerMessage, 16),
		sent:     make(chan audio.Blob, 64),
		done:     make(chan struct{}),
	}
	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.configs = append(c.configs, cfg)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeLiveConnector) stream(i int) *fakeLiveStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.streams) {
		return nil
	}
	return c.streams[i]
}

func (c *fakeLiveConnector) config(i int) (live.ConnectConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.configs) {
		return live.ConnectConfig{}, false
	}
	return c.configs[i], true
}

type testBackends struct {
	video     *fakeVideo
	studio    *fakeStudio
	connector *fakeLiveConnector
	store     *storage.MemoryStore
}

// newTestRegistry builds a registry whose workspaces share one set of fakes.
// The studio fake reports the key of the most recently created workspace.
func newTestRegistry(defaultKey string) (*workspace.Registry, *testBackends) {
	b := &testBackends{
		video:     &fakeVideo{},
		studio:    &fakeStudio{},
		connector: &fakeLiveConnector{},
		store:     storage.NewMemoryStore("/v1/videos/", 0),
	}
	reg := workspace.NewRegistry(context.Background(), workspace.Config{
		DefaultKey:   defaultKey,
		PollInterval: time.Millisecond,
		Store:        b.store,
		Logger:       discardLogger(),
	}, func(keys *credential.Keyring) workspace.Backend {
		b.studio.mu.Lock()
		b.studio.keys = keys
		b.studio.mu.Unlock()
		return workspace.Backend{Video: b.video, Live: b.connector, Studio: b.studio}
	})
	return reg, b
}

var errUpstream = errors.New("upstream exploded")
