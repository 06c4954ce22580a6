package video

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/storage"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

type fakeService struct {
	mu       sync.Mutex
	seq      int
	starts   []StartRequest
	extends  []ExtendRequest
	polls    int
	fetches  []Video
	startErr error
	noVideo  bool
	noResp   bool
	inline   bool
	opErr    *OperationError

	// observe runs at the start of every Start, Extend and Fetch call.
	observe func(call string)

	// pollGate, when set, blocks PollStatus until it is closed. It ignores
	// ctx so a poll can resolve after the attempt was cancelled.
	pollGate    chan struct{}
	pollEntered chan struct{}
}

func (f *fakeService) StartGeneration(ctx context.Context, req StartRequest) (*Operation, error) {
	f.note("start")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.seq++
	return &Operation{Name: fmt.Sprintf("op-%d", f.seq)}, nil
}

func (f *fakeService) ExtendGeneration(ctx context.Context, req ExtendRequest) (*Operation, error) {
	f.note("extend")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extends = append(f.extends, req)
	f.seq++
	return &Operation{Name: fmt.Sprintf("op-%d", f.seq)}, nil
}

func (f *fakeService) PollStatus(ctx context.Context, op *Operation) (*Operation, error) {
	if f.pollGate != nil {
		if f.pollEntered != nil {
			select {
			case f.pollEntered <- struct{}{}:
			default:
			}
		}
		<-f.pollGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	done := &Operation{Name: op.Name, Done: true}
	switch {
	case f.opErr != nil:
		done.Error = f.opErr
	case f.noResp:
	case f.noVideo:
		done.Response = &Result{}
	case f.inline:
		done.Response = &Result{Videos: []Video{{MIMEType: "video/mp4", Data: []byte("inline-" + op.Name)}}}
	default:
		done.Response = &Result{Videos: []Video{{URI: "uri-" + op.Name, MIMEType: "video/mp4"}}}
	}
	return done, nil
}

func (f *fakeService) FetchResult(ctx context.Context, v Video) ([]byte, error) {
	f.note("fetch")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, v)
	return []byte("bytes-" + v.URI), nil
}

func (f *fakeService) note(call string) {
	if f.observe != nil {
		f.observe(call)
	}
}

func (f *fakeService) calls() (starts, extends, fetches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts), len(f.extends), len(f.fetches)
}

type fakeCreds struct {
	mu      sync.Mutex
	has     bool
	prompts int
}

func (c *fakeCreds) HasCredential(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.has, nil
}

func (c *fakeCreds) PromptForCredential(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts++
	c.has = true
	return nil
}

func newTestOrchestrator(svc Service, creds CredentialSelector) (*Orchestrator, *storage.MemoryStore) {
	store := storage.NewMemoryStore("/v/", 0)
	n := 0
	opts := []Option{
		WithStore(store),
		WithPollInterval(time.Millisecond),
		WithNameFunc(func() string { n++; return fmt.Sprintf("clip-%d.mp4", n) }),
	}
	if creds != nil {
		opts = append(opts, WithCredentials(creds))
	}
	return New(svc, opts...), store
}

func TestGenerate_RunsExtensionChain(t *testing.T) {
	svc := &fakeService{}
	o, store := newTestOrchestrator(svc, &fakeCreds{has: true})
	rex := &types.Character{Name: "Rex", Role: "robot", Personality: "grumpy", Style: "noir"}

	err := o.Generate(context.Background(), GenerateRequest{
		Prompt:      "walks into a bar",
		AspectRatio: types.AspectSquare,
		Duration:    types.DurationMedium,
		Character:   rex,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	wantPrompt := "Generate for a character named Rex, who is a grumpy robot. The desired style is noir. User prompt: walks into a bar"
	if len(svc.starts) != 1 || svc.starts[0].Prompt != wantPrompt {
		t.Fatalf("starts=%+v", svc.starts)
	}
	if svc.starts[0].AspectRatio != types.AspectLandscape {
		t.Fatalf("start aspect=%q, want 16:9", svc.starts[0].AspectRatio)
	}
	if len(svc.extends) != 3 {
		t.Fatalf("extends=%d, want 3", len(svc.extends))
	}
	for i, ext := range svc.extends {
		if ext.Prompt != wantPrompt {
			t.Fatalf("extend[%d].Prompt=%q", i, ext.Prompt)
		}
		wantURI := fmt.Sprintf("uri-op-%d", i+1)
		if ext.Previous.Video.URI != wantURI {
			t.Fatalf("extend[%d].Previous.URI=%q, want %q", i, ext.Previous.Video.URI, wantURI)
		}
		if ext.Previous.AspectRatio != types.AspectLandscape {
			t.Fatalf("extend[%d] aspect=%q", i, ext.Previous.AspectRatio)
		}
	}

	st := o.Snapshot()
	if st.Phase != PhaseReady || st.IsLoading || st.Error != "" || st.ProgressMessage != "" {
		t.Fatalf("state=%+v", st)
	}
	if st.VideoRef != "/v/clip-1.mp4" || !st.CanExtend {
		t.Fatalf("state=%+v", st)
	}
	obj, ok := store.Get("clip-1.mp4")
	if !ok || string(obj.Data) != "bytes-uri-op-4" {
		t.Fatalf("stored=%+v ok=%v", obj, ok)
	}
	last, _ := o.LastAsset()
	if last.Operation != "op-4" {
		t.Fatalf("last=%+v", last)
	}
}

func TestGenerate_PortraitAndShort(t *testing.T) {
	svc := &fakeService{}
	o, _ := newTestOrchestrator(svc, &fakeCreds{has: true})
	err := o.Generate(context.Background(), GenerateRequest{
		Prompt:      "a cat",
		Image:       &Image{Data: []byte{1}, MIMEType: "image/png"},
		AspectRatio: types.AspectPortrait,
		Duration:    types.DurationShort,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if svc.starts[0].Prompt != "a cat" || svc.starts[0].AspectRatio != types.AspectPortrait {
		t.Fatalf("start=%+v", svc.starts[0])
	}
	if svc.starts[0].Image == nil || svc.starts[0].Image.MIMEType != "image/png" {
		t.Fatalf("image not forwarded")
	}
	if len(svc.extends) != 0 {
		t.Fatalf("extends=%d, want 0", len(svc.extends))
	}
}

func TestGenerate_RejectsEmptyPrompt(t *testing.T) {
	svc := &fakeService{}
	o, _ := newTestOrchestrator(svc, &fakeCreds{has: true})
	err := o.Generate(context.Background(), GenerateRequest{Prompt: "  "})
	if core.TypeOf(err) != core.ErrInvalidRequest {
		t.Fatalf("err=%v", err)
	}
	if s, _, _ := svc.calls(); s != 0 {
		t.Fatalf("starts=%d, want 0", s)
	}
}

func TestExtend_NothingToExtend(t *testing.T) {
	svc := &fakeService{}
	o, _ := newTestOrchestrator(svc, &fakeCreds{has: true})
	err := o.Extend(context.Background(), ExtendVideoRequest{Prompt: "more"})
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Code != core.CodeNothingToExtend {
		t.Fatalf("err=%v, want nothing_to_extend", err)
	}
	if ce.Message != core.MsgNothingToExtend {
		t.Fatalf("Message=%q", ce.Message)
	}
	s, e, f := svc.calls()
	if s+e+f != 0 || svc.polls != 0 {
		t.Fatalf("remote calls made: starts=%d extends=%d fetches=%d polls=%d", s, e, f, svc.polls)
	}
	if st := o.Snapshot(); st.Error != core.MsgNothingToExtend {
		t.Fatalf("state error=%q", st.Error)
	}
}

func TestExtend_AfterGenerate(t *testing.T) {
	svc := &fakeService{}
	o, store := newTestOrchestrator(svc, &fakeCreds{has: true})
	if err := o.Generate(context.Background(), GenerateRequest{Prompt: "a cat", AspectRatio: types.AspectPortrait}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ada := &types.Character{Name: "Ada", Role: "pilot", Personality: "brave", Style: "anime"}
	if err := o.Extend(context.Background(), ExtendVideoRequest{Prompt: "it jumps", Character: ada}); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if len(svc.extends) != 1 {
		t.Fatalf("extends=%d, want 1", len(svc.extends))
	}
	ext := svc.extends[0]
	if ext.Previous.Video.URI != "uri-op-1" || ext.Previous.AspectRatio != types.AspectPortrait {
		t.Fatalf("previous=%+v", ext.Previous)
	}
	if ext.Prompt != types.CharacterPrompt("it jumps", ada) {
		t.Fatalf("prompt=%q", ext.Prompt)
	}
	st := o.Snapshot()
	if st.Phase != PhaseReady || st.VideoRef != "/v/clip-2.mp4" {
		t.Fatalf("state=%+v", st)
	}
	if obj, _ := store.Get("clip-2.mp4"); string(obj.Data) != "bytes-uri-op-2" {
		t.Fatalf("stored=%q", obj.Data)
	}

	// The chain can keep growing.
	if err := o.Extend(context.Background(), ExtendVideoRequest{Prompt: "again"}); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if svc.extends[1].Previous.Video.URI != "uri-op-2" {
		t.Fatalf("second extend previous=%+v", svc.extends[1].Previous)
	}
}

func TestExtend_EmptyResultKeepsContinuity(t *testing.T) {
	svc := &fakeService{}
	o, _ := newTestOrchestrator(svc, &fakeCreds{has: true})
	if err := o.Generate(context.Background(), GenerateRequest{Prompt: "a cat"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	svc.noVideo = true
	err := o.Extend(context.Background(), ExtendVideoRequest{Prompt: "more"})
	if core.TypeOf(err) != core.ErrEmptyResult {
		t.Fatalf("err=%v", err)
	}
	st := o.Snapshot()
	if st.Error != core.MsgExtensionEmpty || st.VideoRef != "" || !st.CanExtend {
		t.Fatalf("state=%+v", st)
	}
	if last, _ := o.LastAsset(); last.Operation != "op-1" {
		t.Fatalf("last=%+v", last)
	}
}

func TestExtend_InlineClipKeepsBytes(t *testing.T) {
	svc := &fakeService{inline: true}
	o, store := newTestOrchestrator(svc, &fakeCreds{has: true})
	if err := o.Generate(context.Background(), GenerateRequest{Prompt: "a cat"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	last, ok := o.LastAsset()
	if !ok || string(last.Video.Data) != "inline-op-1" {
		t.Fatalf("last=%+v ok=%v", last, ok)
	}
	if err := o.Extend(context.Background(), ExtendVideoRequest{Prompt: "it jumps"}); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if got := string(svc.extends[0].Previous.Video.Data); got != "inline-op-1" {
		t.Fatalf("extend previous data=%q, want inline-op-1", got)
	}
	if _, _, f := svc.calls(); f != 0 {
		t.Fatalf("fetches=%d, want 0 for inline clips", f)
	}
	obj, ok := store.Get("clip-2.mp4")
	if !ok || string(obj.Data) != "inline-op-2" {
		t.Fatalf("stored=%+v ok=%v", obj, ok)
	}
	if last, _ := o.LastAsset(); string(last.Video.Data) != "inline-op-2" {
		t.Fatalf("last after extend=%+v", last)
	}
}

func TestProgressMessages(t *testing.T) {
	svc := &fakeService{}
	o, _ := newTestOrchestrator(svc, &fakeCreds{has: true})
	var seen []string
	svc.observe = func(call string) { seen = append(seen, call+": "+o.Snapshot().ProgressMessage) }

	err := o.Generate(context.Background(), GenerateRequest{Prompt: "a cat", Duration: types.DurationMedium})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := []string{
		"start: " + ProgressGenerating,
		"extend: Extending video (1/3)...",
		"extend: Extending video (2/3)...",
		"extend: Extending video (3/3)...",
		"fetch: " + ProgressFinalizing,
	}
	if !slices.Equal(seen, want) {
		t.Fatalf("generate progress=%q, want %q", seen, want)
	}
	if st := o.Snapshot(); st.ProgressMessage != "" {
		t.Fatalf("progress after ready=%q", st.ProgressMessage)
	}

	seen = nil
	if err := o.Extend(context.Background(), ExtendVideoRequest{Prompt: "more"}); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	want = []string{
		"extend: " + ProgressExtending,
		"fetch: " + ProgressExtending,
	}
	if !slices.Equal(seen, want) {
		t.Fatalf("extend progress=%q, want %q", seen, want)
	}
}

func TestReset_DropsLatePollResult(t *testing.T) {
	svc := &fakeService{pollGate: make(chan struct{}), pollEntered: make(chan struct{}, 1)}
	o, store := newTestOrchestrator(svc, &fakeCreds{has: true})

	errc := make(chan error, 1)
	go func() {
		errc <- o.Generate(context.Background(), GenerateRequest{Prompt: "a cat", Duration: types.DurationLong})
	}()

	select {
	case <-svc.pollEntered:
	case <-time.After(2 * time.Second):
		t.Fatalf("poll never started")
	}
	o.Reset()
	close(svc.pollGate)

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Generate did not return")
	}

	st := o.Snapshot()
	if st.Phase != PhaseIdle || st.IsLoading || st.VideoRef != "" || st.Error != "" || st.CanExtend {
		t.Fatalf("state mutated after reset: %+v", st)
	}
	if _, e, f := svc.calls(); e != 0 || f != 0 {
		t.Fatalf("extends=%d fetches=%d after reset", e, f)
	}
	if store.Len() != 0 {
		t.Fatalf("store has %d objects", store.Len())
	}
}

func TestGenerate_EnvironmentUnavailable(t *testing.T) {
	svc := &fakeService{}
	o, _ := newTestOrchestrator(svc, nil)
	err := o.Generate(context.Background(), GenerateRequest{Prompt: "a cat"})
	if core.TypeOf(err) != core.ErrEnvironmentUnavailable {
		t.Fatalf("err=%v", err)
	}
	if s, _, _ := svc.calls(); s != 0 {
		t.Fatalf("starts=%d, want 0", s)
	}
	st := o.Snapshot()
	if st.Error != core.MsgEnvironment || st.ErrorType != core.ErrEnvironmentUnavailable || st.IsLoading {
		t.Fatalf("state=%+v", st)
	}
}

func TestGenerate_PromptsForMissingCredentialOnce(t *testing.T) {
	creds := &fakeCreds{}
	o, _ := newTestOrchestrator(&fakeService{}, creds)
	if err := o.Generate(context.Background(), GenerateRequest{Prompt: "a cat"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if creds.prompts != 1 {
		t.Fatalf("prompts=%d, want 1", creds.prompts)
	}
	if !o.Snapshot().CredentialPrompted {
		t.Fatalf("CredentialPrompted=false")
	}
}

func TestGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		typ     core.ErrorType
		prompts int
	}{
		{
			name:    "entity not found",
			err:     errors.New(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`),
			typ:     core.ErrCredentialInvalid,
			prompts: 1,
		},
		{
			name: "server error",
			err:  errors.New(`{"error":{"code":500,"message":"Internal error encountered.","status":"INTERNAL"}}`),
			typ:  core.ErrTransport,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := &fakeCreds{has: true}
			o, _ := newTestOrchestrator(&fakeService{startErr: tt.err}, creds)
			err := o.Generate(context.Background(), GenerateRequest{Prompt: "a cat"})
			if core.TypeOf(err) != tt.typ {
				t.Fatalf("type=%q, want %q (err=%v)", core.TypeOf(err), tt.typ, err)
			}
			if creds.prompts != tt.prompts {
				t.Fatalf("prompts=%d, want %d", creds.prompts, tt.prompts)
			}
			st := o.Snapshot()
			if st.Phase != PhaseErrored || st.ErrorType != tt.typ || st.IsLoading {
				t.Fatalf("state=%+v", st)
			}
		})
	}
}

func TestGenerate_CredentialInvalidMessage(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeService{startErr: errors.New("Requested entity was not found.")}, &fakeCreds{has: true})
	_ = o.Generate(context.Background(), GenerateRequest{Prompt: "a cat"})
	if got := o.Snapshot().Error; got != core.MsgCredentialInvalid {
		t.Fatalf("Error=%q", got)
	}
}

func TestGenerate_EmptyResults(t *testing.T) {
	tests := []struct {
		name string
		svc  *fakeService
		msg  string
	}{
		{"no video", &fakeService{noVideo: true}, core.MsgGenerationEmpty},
		{"no response", &fakeService{noResp: true}, "Operation finished but no response was returned."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(tt.svc, &fakeCreds{has: true})
			err := o.Generate(context.Background(), GenerateRequest{Prompt: "a cat", Duration: types.DurationMedium})
			if core.TypeOf(err) != core.ErrEmptyResult {
				t.Fatalf("err=%v", err)
			}
			if got := o.Snapshot().Error; got != tt.msg {
				t.Fatalf("Error=%q, want %q", got, tt.msg)
			}
			if _, e, _ := tt.svc.calls(); e != 0 {
				t.Fatalf("extends=%d after empty start", e)
			}
		})
	}
}

func TestGenerate_OperationErrorIsSurfaced(t *testing.T) {
	svc := &fakeService{opErr: &OperationError{Code: 3, Message: "PERMISSION_DENIED"}}
	o, _ := newTestOrchestrator(svc, &fakeCreds{has: true})
	err := o.Generate(context.Background(), GenerateRequest{Prompt: "a cat"})
	if core.TypeOf(err) != core.ErrTransport {
		t.Fatalf("err=%v", err)
	}
	want := "Permission Denied: Your API key may be invalid or lack necessary permissions. Please verify its configuration in the Google Cloud Console."
	if got := o.Snapshot().Error; got != want {
		t.Fatalf("Error=%q", got)
	}
}

func TestSubscribe_ReceivesReady(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeService{}, &fakeCreds{has: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := o.Subscribe(ctx)
	if first := <-updates; first.Phase != PhaseIdle {
		t.Fatalf("first=%+v", first)
	}
	if err := o.GenerateAsync(context.Background(), GenerateRequest{Prompt: "a cat"}); err != nil {
		t.Fatalf("GenerateAsync: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-updates:
			if st.Phase == PhaseReady {
				return
			}
		case <-deadline:
			t.Fatalf("never saw ready; last=%+v", o.Snapshot())
		}
	}
}
