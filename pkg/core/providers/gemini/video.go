package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/genai"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/video"
)

const (
	videoResolution = "720p"

	// maxVideoBytes caps a single downloaded clip.
	maxVideoBytes = 512 << 20
)

// VideoService implements video.Service on Veo.
type VideoService struct {
	p *Provider
}

var _ video.Service = (*VideoService)(nil)

// Video returns the Veo-backed video service.
func (p *Provider) Video() *VideoService {
	return &VideoService{p: p}
}

// StartGeneration submits a new clip.
func (s *VideoService) StartGeneration(ctx context.Context, req video.StartRequest) (*video.Operation, error) {
	c, err := s.p.client(ctx)
	if err != nil {
		return nil, err
	}
	source := &genai.GenerateVideosSource{Prompt: req.Prompt}
	if req.Image != nil && len(req.Image.Data) > 0 {
		source.Image = &genai.Image{ImageBytes: req.Image.Data, MIMEType: req.Image.MIMEType}
	}
	op, err := c.Models.GenerateVideosFromSource(ctx, s.p.models.VideoStart, source, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     videoResolution,
		AspectRatio:    string(req.AspectRatio.VideoRatio()),
	})
	if err != nil {
		err = mapError(err)
		s.p.logFailure("generate_videos", err)
		return nil, err
	}
	return fromOperation(op), nil
}

// ExtendGeneration submits a continuation of req.Previous.
func (s *VideoService) ExtendGeneration(ctx context.Context, req video.ExtendRequest) (*video.Operation, error) {
	prev := req.Previous.Video
	if prev.URI == "" && len(prev.Data) == 0 {
		return nil, core.NewInvalidRequestError("Previous video not found in operation to extend.")
	}
	c, err := s.p.client(ctx)
	if err != nil {
		return nil, err
	}
	op, err := c.Models.GenerateVideosFromSource(ctx, s.p.models.VideoExtend, &genai.GenerateVideosSource{
		Prompt: req.Prompt,
		Video:  &genai.Video{URI: prev.URI, VideoBytes: prev.Data, MIMEType: prev.MIMEType},
	}, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     videoResolution,
		AspectRatio:    string(req.Previous.AspectRatio),
	})
	if err != nil {
		err = mapError(err)
		s.p.logFailure("extend_video", err)
		return nil, err
	}
	return fromOperation(op), nil
}

// PollStatus fetches a fresh snapshot of op.
func (s *VideoService) PollStatus(ctx context.Context, op *video.Operation) (*video.Operation, error) {
	if op == nil || op.Name == "" {
		return nil, core.NewInvalidRequestError("operation name is required")
	}
	c, err := s.p.client(ctx)
	if err != nil {
		return nil, err
	}
	next, err := c.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: op.Name}, nil)
	if err != nil {
		err = mapError(err)
		s.p.logFailure("get_videos_operation", err)
		return nil, err
	}
	return fromOperation(next), nil
}

// FetchResult downloads the clip bytes, authenticating with the current key.
func (s *VideoService) FetchResult(ctx context.Context, v video.Video) ([]byte, error) {
	if len(v.Data) > 0 {
		return v.Data, nil
	}
	if v.URI == "" {
		return nil, core.NewInvalidRequestError("video uri is required")
	}
	key, err := s.p.key()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URI, nil)
	if err != nil {
		return nil, fmt.Errorf("build video request: %w", err)
	}
	req.Header.Set("x-goog-api-key", key)

	resp, err := s.p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := mapError(genai.APIError{Code: resp.StatusCode, Message: string(body)})
		s.p.logFailure("download_video", err)
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVideoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read video: %w", err)
	}
	if len(data) > maxVideoBytes {
		return nil, core.NewAPIError("video exceeds download limit")
	}
	return data, nil
}

func fromOperation(op *genai.GenerateVideosOperation) *video.Operation {
	if op == nil {
		return nil
	}
	out := &video.Operation{Name: op.Name, Done: op.Done}
	if code, status, msg := operationError(op.Error); msg != "" {
		out.Error = &video.OperationError{Code: code, Message: remoteMessage(0, status, msg)}
	}
	if op.Response != nil {
		res := &video.Result{FilteredReasons: op.Response.RAIMediaFilteredReasons}
		for _, gv := range op.Response.GeneratedVideos {
			if gv == nil || gv.Video == nil {
				continue
			}
			res.Videos = append(res.Videos, video.Video{
				URI:      gv.Video.URI,
				MIMEType: gv.Video.MIMEType,
				Data:     gv.Video.VideoBytes,
			})
		}
		out.Response = res
	}
	return out
}
