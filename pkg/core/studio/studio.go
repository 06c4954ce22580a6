// Package studio defines the single-shot creative calls: image generation
// and editing, character chat, stories, prompt inspiration, frame analysis
// and speech.
package studio

import (
	"context"
	"regexp"
	"strings"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

// Fixed instructions sent with image and frame analysis requests.
const (
	StoryPrompt         = "Write a detailed, imaginative short story based on this image. Explore the characters, setting, and what might be happening."
	FrameAnalysisPrompt = "Analyze these video frames in sequence. Describe what is happening in the video, identify key objects, and summarize the overall activity."

	// MaxFrames bounds a frame analysis request.
	MaxFrames = 32
)

// Media is an inline image or audio payload.
type Media struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// ImageRequest generates a new image.
type ImageRequest struct {
	Prompt      string
	AspectRatio types.AspectRatio
	Character   *types.Character
}

// EditRequest edits Image according to Prompt.
type EditRequest struct {
	Prompt string
	Image  Media
}

// ChatRequest is one chat turn. History holds the earlier turns in order.
type ChatRequest struct {
	History           []types.ChatMessage
	Message           string
	SystemInstruction string
	Character         *types.Character
}

// Speech is synthesized 16-bit mono PCM.
type Speech struct {
	Data       []byte
	SampleRate int
}

// Service is the remote backend for single-shot calls.
type Service interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*Media, error)
	EditImage(ctx context.Context, req EditRequest) (*Media, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
	Story(ctx context.Context, image Media) (string, error)
	Inspiration(ctx context.Context, subject string) (string, error)
	AnalyzeFrames(ctx context.Context, frames []Media) (string, error)
	Speak(ctx context.Context, text string, c *types.Character) (*Speech, error)
}

// InspirationPrompt asks for one creative prompt about subject.
func InspirationPrompt(subject string) string {
	return "Generate a single, creative, and detailed prompt for generating " + subject +
		". Be imaginative. Only return the prompt text itself, no extra words or quotes."
}

var quoted = regexp.MustCompile(`^"(.*)"$`)

// CleanInspiration trims s and drops one pair of surrounding double quotes.
func CleanInspiration(s string) string {
	return quoted.ReplaceAllString(strings.TrimSpace(s), "$1")
}

// Validate checks the fields every backend requires.
func (r ImageRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return core.NewInvalidRequestErrorWithParam("prompt is required", "prompt")
	}
	if r.AspectRatio != "" && !r.AspectRatio.Valid() {
		return core.NewInvalidRequestErrorWithParam("unsupported aspect_ratio", "aspect_ratio")
	}
	return nil
}

// Validate checks the fields every backend requires.
func (r EditRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return core.NewInvalidRequestErrorWithParam("prompt is required", "prompt")
	}
	if len(r.Image.Data) == 0 {
		return core.NewInvalidRequestErrorWithParam("image is required", "image")
	}
	return nil
}

// Validate checks the fields every backend requires.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return core.NewInvalidRequestErrorWithParam("message is required", "message")
	}
	return nil
}

// ValidateFrames checks a frame analysis request.
func ValidateFrames(frames []Media) error {
	if len(frames) == 0 {
		return core.NewInvalidRequestErrorWithParam("at least one frame is required", "frames")
	}
	if len(frames) > MaxFrames {
		return core.NewInvalidRequestErrorWithParam("too many frames", "frames")
	}
	for _, f := range frames {
		if len(f.Data) == 0 {
			return core.NewInvalidRequestErrorWithParam("frame data is empty", "frames")
		}
	}
	return nil
}
