package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/studio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

const (
	thinkingBudget = 32768

	msgNoImage = "The model returned no image."
	msgNoText  = "The model returned no text."
	msgNoAudio = "The model returned no audio."
)

// StudioService implements studio.Service.
type StudioService struct {
	p *Provider
}

var _ studio.Service = (*StudioService)(nil)

// Studio returns the single-shot service.
func (p *Provider) Studio() *StudioService {
	return &StudioService{p: p}
}

// GenerateImage renders one JPEG with Imagen.
func (s *StudioService) GenerateImage(ctx context.Context, req studio.ImageRequest) (*studio.Media, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c, err := s.p.client(ctx)
	if err != nil {
		return nil, err
	}
	ratio := req.AspectRatio
	if ratio == "" {
		ratio = types.AspectSquare
	}
	resp, err := c.Models.GenerateImages(ctx, s.p.models.Image, types.CharacterPrompt(req.Prompt, req.Character), &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/jpeg",
		AspectRatio:    string(ratio),
	})
	if err != nil {
		return nil, s.fail("generate_images", err)
	}
	for _, img := range resp.GeneratedImages {
		if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
			continue
		}
		mime := img.Image.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		return &studio.Media{Data: img.Image.ImageBytes, MIMEType: mime}, nil
	}
	return nil, core.NewEmptyResultError(msgNoImage)
}

// EditImage returns the first image part of the model's reply.
func (s *StudioService) EditImage(ctx context.Context, req studio.EditRequest) (*studio.Media, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.Image.Data, mimeOr(req.Image.MIMEType, "image/png")),
			genai.NewPartFromText(req.Prompt),
		}, genai.RoleUser),
	}
	resp, err := s.generate(ctx, "edit_image", s.p.models.ImageEdit, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
	})
	if err != nil {
		return nil, err
	}
	blob := firstInline(resp)
	if blob == nil {
		return nil, core.NewEmptyResultError(msgNoImage)
	}
	return &studio.Media{Data: blob.Data, MIMEType: mimeOr(blob.MIMEType, "image/png")}, nil
}

// Chat sends one turn after replaying the history. The persona instruction
// wraps the system instruction when a character is set.
func (s *StudioService) Chat(ctx context.Context, req studio.ChatRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if m.Sender != "user" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	resp, err := s.generate(ctx, "chat", s.p.models.Chat, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(types.PersonaInstruction(req.SystemInstruction, req.Character), genai.RoleUser),
	})
	if err != nil {
		return "", err
	}
	return textOf(resp)
}

// Story writes a short story about image.
func (s *StudioService) Story(ctx context.Context, image studio.Media) (string, error) {
	if len(image.Data) == 0 {
		return "", core.NewInvalidRequestErrorWithParam("image is required", "image")
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image.Data, mimeOr(image.MIMEType, "image/jpeg")),
			genai.NewPartFromText(studio.StoryPrompt),
		}, genai.RoleUser),
	}
	resp, err := s.generate(ctx, "story", s.p.models.Analysis, contents, thinkingConfig())
	if err != nil {
		return "", err
	}
	return textOf(resp)
}

// Inspiration returns one prompt idea for subject.
func (s *StudioService) Inspiration(ctx context.Context, subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", core.NewInvalidRequestErrorWithParam("context is required", "context")
	}
	resp, err := s.generate(ctx, "inspiration", s.p.models.Inspiration, genai.Text(studio.InspirationPrompt(subject)), nil)
	if err != nil {
		return "", err
	}
	text, err := textOf(resp)
	if err != nil {
		return "", err
	}
	return studio.CleanInspiration(text), nil
}

// AnalyzeFrames describes a sequence of video frames.
func (s *StudioService) AnalyzeFrames(ctx context.Context, frames []studio.Media) (string, error) {
	if err := studio.ValidateFrames(frames); err != nil {
		return "", err
	}
	parts := make([]*genai.Part, 0, len(frames)+1)
	for _, f := range frames {
		parts = append(parts, genai.NewPartFromBytes(f.Data, mimeOr(f.MIMEType, "image/jpeg")))
	}
	parts = append(parts, genai.NewPartFromText(studio.FrameAnalysisPrompt))

	resp, err := s.generate(ctx, "analyze_frames", s.p.models.Analysis, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, thinkingConfig())
	if err != nil {
		return "", err
	}
	return textOf(resp)
}

// Speak synthesizes text in the character's voice as 24 kHz PCM.
func (s *StudioService) Speak(ctx context.Context, text string, c *types.Character) (*studio.Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("text is required", "text")
	}
	resp, err := s.generate(ctx, "speech", s.p.models.Speech, genai.Text(types.SpeechText(text, c)), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig:       speechConfig(types.SpeechVoice(c)),
	})
	if err != nil {
		return nil, err
	}
	blob := firstInline(resp)
	if blob == nil {
		return nil, core.NewEmptyResultError(msgNoAudio)
	}
	return &studio.Speech{Data: blob.Data, SampleRate: audio.OutputSampleRate}, nil
}

func (s *StudioService) generate(ctx context.Context, op, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	c, err := s.p.client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return resp, nil
}

func (s *StudioService) fail(op string, err error) error {
	err = mapError(err)
	s.p.logFailure(op, err)
	return err
}

func thinkingConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](thinkingBudget)},
	}
}

// firstInline returns the first inline blob of the first candidate.
func firstInline(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return nil
	}
	for _, part := range cand.Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData
		}
	}
	return nil
}

func textOf(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", core.NewEmptyResultError(msgNoText)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", core.NewEmptyResultError(msgNoText)
	}
	return text, nil
}

func mimeOr(mime, fallback string) string {
	if mime == "" {
		return fallback
	}
	return mime
}
