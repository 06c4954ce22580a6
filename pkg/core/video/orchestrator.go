package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/poll"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/storage"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

// Phase is the orchestrator's position in the generation state machine.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseGenerating        Phase = "generating"
	PhasePollingGeneration Phase = "polling_generation"
	PhaseExtending         Phase = "extending"
	PhasePollingExtension  Phase = "polling_extension"
	PhaseFinalizing        Phase = "finalizing"
	PhaseReady             Phase = "ready"
	PhaseErrored           Phase = "errored"
)

// Progress messages shown while a chain runs.
const (
	ProgressGenerating = "Generating initial clip..."
	ProgressFinalizing = "Finalizing video..."
	ProgressExtending  = "Extending video..."
)

// State is the observable snapshot of an Orchestrator.
type State struct {
	Phase              Phase          `json:"phase"`
	VideoRef           string         `json:"video_ref,omitempty"`
	IsLoading          bool           `json:"is_loading"`
	Error              string         `json:"error,omitempty"`
	ErrorType          core.ErrorType `json:"error_type,omitempty"`
	ProgressMessage    string         `json:"progress_message,omitempty"`
	Step               int            `json:"step,omitempty"`
	Steps              int            `json:"steps,omitempty"`
	CanExtend          bool           `json:"can_extend"`
	CredentialPrompted bool           `json:"credential_prompted,omitempty"`
	Attempt            uint64         `json:"attempt"`
}

// GenerateRequest starts a new chain.
type GenerateRequest struct {
	Prompt      string
	Image       *Image
	AspectRatio types.AspectRatio
	Duration    types.VideoDuration
	Character   *types.Character
}

// ExtendVideoRequest continues the last finished clip with a new prompt.
type ExtendVideoRequest struct {
	Prompt    string
	Character *types.Character
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCredentials sets the credential capability. Without one, every
// generation fails with an environment-unavailable error.
func WithCredentials(c CredentialSelector) Option {
	return func(o *Orchestrator) { o.creds = c }
}

// WithStore sets where finished videos are published.
func WithStore(s storage.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithPollInterval overrides the status query interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNameFunc overrides how published video names are generated.
func WithNameFunc(fn func() string) Option {
	return func(o *Orchestrator) { o.newName = fn }
}

// slot is everything guarded by the attempt id. The continuity asset is
// overwritten on each completion, never merged.
type slot struct {
	state State
	last  *Asset
}

// Orchestrator drives generate/extend/reset against a Service. All state
// writes go through update, which drops writes from superseded attempts.
type Orchestrator struct {
	svc      Service
	creds    CredentialSelector
	store    storage.Store
	interval time.Duration
	logger   *slog.Logger
	newName  func() string

	mu      sync.Mutex
	cur     slot
	attempt uint64
	cancel  context.CancelFunc
	subs    map[chan State]struct{}
}

// New creates an orchestrator for svc.
func New(svc Service, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		svc:      svc,
		interval: poll.DefaultInterval,
		logger:   slog.Default(),
		newName:  func() string { return uuid.NewString() + ".mp4" },
		subs:     make(map[chan State]struct{}),
	}
	o.cur.state.Phase = PhaseIdle
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = storage.NewMemoryStore("", 0)
	}
	return o
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() State {
	s := o.cur.state
	s.CanExtend = o.cur.last != nil
	s.Attempt = o.attempt
	return s
}

// LastAsset returns the continuity asset the next Extend would use.
func (o *Orchestrator) LastAsset() (Asset, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cur.last == nil {
		return Asset{}, false
	}
	return *o.cur.last, true
}

// Subscribe delivers state snapshots until ctx is done. Slow readers only
// see the latest snapshot.
func (o *Orchestrator) Subscribe(ctx context.Context) <-chan State {
	ch := make(chan State, 1)
	o.mu.Lock()
	o.subs[ch] = struct{}{}
	ch <- o.snapshotLocked()
	o.mu.Unlock()

	go func() {
		<-ctx.Done()
		o.mu.Lock()
		delete(o.subs, ch)
		close(ch)
		o.mu.Unlock()
	}()
	return ch
}

func (o *Orchestrator) notifyLocked() {
	s := o.snapshotLocked()
	for ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// update applies fn if id is still the current attempt.
func (o *Orchestrator) update(id uint64, fn func(*slot)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if id != o.attempt {
		return false
	}
	fn(&o.cur)
	o.notifyLocked()
	return true
}

// begin supersedes any in-flight attempt. prepare runs under the lock; if it
// returns an error no new attempt starts.
func (o *Orchestrator) begin(parent context.Context, prepare func(*slot) error) (uint64, context.Context, context.CancelFunc, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := prepare(&o.cur); err != nil {
		o.notifyLocked()
		return 0, nil, nil, err
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.attempt++
	ctx, cancel := context.WithCancel(parent)
	o.cancel = cancel
	o.notifyLocked()
	return o.attempt, ctx, cancel, nil
}

// Reset returns to idle, stops any polling and discards the continuity asset.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.attempt++
	o.cur = slot{state: State{Phase: PhaseIdle}}
	o.notifyLocked()
	o.logger.Debug("video orchestrator reset", "attempt", o.attempt)
}

// Generate runs a full chain and blocks until it finishes, fails or is
// superseded. The returned error is also stored in the state.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) error {
	run, err := o.prepareGenerate(ctx, req)
	if err != nil {
		return err
	}
	return run()
}

// GenerateAsync validates req, resets state synchronously and runs the chain
// in the background.
func (o *Orchestrator) GenerateAsync(ctx context.Context, req GenerateRequest) error {
	run, err := o.prepareGenerate(ctx, req)
	if err != nil {
		return err
	}
	go run()
	return nil
}

// Extend continues the last finished clip once and blocks until done.
func (o *Orchestrator) Extend(ctx context.Context, req ExtendVideoRequest) error {
	run, err := o.prepareExtend(ctx, req)
	if err != nil {
		return err
	}
	return run()
}

// ExtendAsync is the background form of Extend.
func (o *Orchestrator) ExtendAsync(ctx context.Context, req ExtendVideoRequest) error {
	run, err := o.prepareExtend(ctx, req)
	if err != nil {
		return err
	}
	go run()
	return nil
}

func (o *Orchestrator) prepareGenerate(parent context.Context, req GenerateRequest) (func() error, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("prompt is required", "prompt")
	}
	id, ctx, cancel, err := o.begin(parent, func(s *slot) error {
		*s = slot{state: State{Phase: PhaseGenerating, IsLoading: true}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return func() error {
		defer cancel()
		return o.runGenerate(ctx, id, req)
	}, nil
}

func (o *Orchestrator) prepareExtend(parent context.Context, req ExtendVideoRequest) (func() error, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("prompt is required", "prompt")
	}
	var prev Asset
	id, ctx, cancel, err := o.begin(parent, func(s *slot) error {
		if s.last == nil {
			e := &core.Error{Type: core.ErrInvalidRequest, Code: core.CodeNothingToExtend, Message: core.MsgNothingToExtend}
			s.state.Error = e.Message
			s.state.ErrorType = e.Type
			return e
		}
		prev = *s.last
		s.state = State{Phase: PhaseExtending, IsLoading: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return func() error {
		defer cancel()
		return o.runExtend(ctx, id, req, prev)
	}, nil
}

func (o *Orchestrator) runGenerate(ctx context.Context, id uint64, req GenerateRequest) error {
	if err := o.ensureCredential(ctx, id); err != nil {
		return o.fail(ctx, id, err)
	}

	prompt := types.CharacterPrompt(req.Prompt, req.Character)
	ratio := req.AspectRatio.VideoRatio()
	steps := types.ExtensionCount(req.Duration)
	o.logger.Info("video generation started", "attempt", id, "aspect_ratio", ratio, "extensions", steps)

	o.update(id, func(s *slot) {
		s.state.Phase = PhaseGenerating
		s.state.ProgressMessage = ProgressGenerating
		s.state.Steps = steps
	})
	op, err := o.svc.StartGeneration(ctx, StartRequest{Prompt: prompt, Image: req.Image, AspectRatio: ratio})
	if err != nil {
		return o.fail(ctx, id, err)
	}
	o.update(id, func(s *slot) { s.state.Phase = PhasePollingGeneration })
	asset, err := o.complete(ctx, id, op, ratio, core.MsgGenerationEmpty)
	if err != nil {
		return o.fail(ctx, id, err)
	}

	for i := 0; i < steps; i++ {
		step := i + 1
		o.update(id, func(s *slot) {
			s.state.Phase = PhaseExtending
			s.state.Step = step
			s.state.ProgressMessage = fmt.Sprintf("Extending video (%d/%d)...", step, steps)
		})
		op, err = o.svc.ExtendGeneration(ctx, ExtendRequest{Prompt: prompt, Previous: asset})
		if err != nil {
			return o.fail(ctx, id, err)
		}
		o.update(id, func(s *slot) { s.state.Phase = PhasePollingExtension })
		asset, err = o.complete(ctx, id, op, ratio, core.MsgGenerationEmpty)
		if err != nil {
			return o.fail(ctx, id, err)
		}
	}

	o.update(id, func(s *slot) {
		s.state.Phase = PhaseFinalizing
		s.state.ProgressMessage = ProgressFinalizing
	})
	return o.finish(ctx, id, asset)
}

func (o *Orchestrator) runExtend(ctx context.Context, id uint64, req ExtendVideoRequest, prev Asset) error {
	if err := o.ensureCredential(ctx, id); err != nil {
		return o.fail(ctx, id, err)
	}
	o.logger.Info("video extension started", "attempt", id, "previous", prev.Operation)

	o.update(id, func(s *slot) { s.state.ProgressMessage = ProgressExtending })
	prompt := types.CharacterPrompt(req.Prompt, req.Character)
	op, err := o.svc.ExtendGeneration(ctx, ExtendRequest{Prompt: prompt, Previous: prev})
	if err != nil {
		return o.fail(ctx, id, err)
	}
	o.update(id, func(s *slot) { s.state.Phase = PhasePollingExtension })

	op, err = o.wait(ctx, op)
	if err != nil {
		return o.fail(ctx, id, err)
	}
	v, ok := op.FirstVideo()
	if !ok {
		return o.fail(ctx, id, core.NewEmptyResultError(core.MsgExtensionEmpty))
	}
	asset := Asset{Operation: op.Name, Video: v, AspectRatio: prev.AspectRatio}
	// The continuity slot only moves once the new clip is playable.
	return o.finish(ctx, id, asset)
}

// complete polls op to a terminal state and records it as the continuity
// asset.
func (o *Orchestrator) complete(ctx context.Context, id uint64, op *Operation, ratio types.AspectRatio, emptyMsg string) (Asset, error) {
	op, err := o.wait(ctx, op)
	if err != nil {
		return Asset{}, err
	}
	v, ok := op.FirstVideo()
	if !ok {
		return Asset{}, core.NewEmptyResultError(emptyMsg)
	}
	asset := Asset{Operation: op.Name, Video: v, AspectRatio: ratio}
	if !o.update(id, func(s *slot) { a := asset; s.last = &a }) {
		return Asset{}, context.Canceled
	}
	return asset, nil
}

func (o *Orchestrator) wait(ctx context.Context, op *Operation) (*Operation, error) {
	p := &poll.Poller[*Operation]{
		Interval: o.interval,
		Poll:     o.svc.PollStatus,
		Done: func(op *Operation) (bool, error) {
			if op == nil || !op.Done {
				return false, nil
			}
			if op.Error != nil {
				return true, op.Error
			}
			if op.Response == nil {
				return true, poll.ErrNoResult
			}
			return true, nil
		},
		OnPoll: func(op *Operation, attempt int) {
			if op == nil {
				return
			}
			o.logger.Debug("video operation polled", "operation", op.Name, "attempt", attempt, "done", op.Done)
		},
	}
	return p.Wait(ctx, op)
}

// finish fetches and publishes the final clip.
func (o *Orchestrator) finish(ctx context.Context, id uint64, asset Asset) error {
	data := asset.Video.Data
	if len(data) == 0 {
		var err error
		data, err = o.svc.FetchResult(ctx, asset.Video)
		if err != nil {
			return o.fail(ctx, id, err)
		}
	}
	mimeType := asset.Video.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	ref, err := o.store.Put(ctx, o.newName(), mimeType, data)
	if err != nil {
		return o.fail(ctx, id, err)
	}
	// The continuity asset stays as the remote returned it: inline clips
	// have no URI, so their bytes are the only way to extend them.
	ok := o.update(id, func(s *slot) {
		a := asset
		s.last = &a
		s.state.Phase = PhaseReady
		s.state.VideoRef = ref
		s.state.IsLoading = false
		s.state.ProgressMessage = ""
		s.state.Error = ""
		s.state.ErrorType = ""
	})
	if !ok {
		return context.Canceled
	}
	o.logger.Info("video ready", "attempt", id, "ref", ref, "bytes", len(data))
	return nil
}

func (o *Orchestrator) ensureCredential(ctx context.Context, id uint64) error {
	if o.creds == nil {
		return core.NewEnvironmentUnavailableError()
	}
	ok, err := o.creds.HasCredential(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := o.creds.PromptForCredential(ctx); err != nil {
		return err
	}
	o.update(id, func(s *slot) { s.state.CredentialPrompted = true })
	return nil
}

// fail records err for attempt id and returns the classified error. Errors
// from superseded attempts are returned without touching state.
func (o *Orchestrator) fail(ctx context.Context, id uint64, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	ce := classify(err)
	prompted := false
	if ce.Type == core.ErrCredentialInvalid && o.creds != nil {
		if perr := o.creds.PromptForCredential(ctx); perr != nil {
			o.logger.Warn("credential reselection failed", "error", perr)
		} else {
			prompted = true
		}
	}
	o.update(id, func(s *slot) {
		s.state.Phase = PhaseErrored
		s.state.IsLoading = false
		s.state.ProgressMessage = ""
		s.state.Error = ce.Message
		s.state.ErrorType = ce.Type
		if prompted {
			s.state.CredentialPrompted = true
		}
	})
	o.logger.Warn("video attempt failed", "attempt", id, "error_type", ce.Type, "error", err)
	return ce
}

func classify(err error) *core.Error {
	var ce *core.Error
	if errors.As(err, &ce) {
		switch ce.Type {
		case core.ErrEnvironmentUnavailable, core.ErrCredentialInvalid, core.ErrEmptyResult, core.ErrTransport:
			return ce
		}
		if ce.Code == core.CodeNothingToExtend {
			return ce
		}
	}
	if errors.Is(err, poll.ErrNoResult) {
		return core.NewEmptyResultError(poll.ErrNoResult.Error()).WithCause(err)
	}
	if core.IsEntityNotFound(err) {
		return core.NewCredentialInvalidError(err)
	}
	return core.NewTransportError(err)
}
