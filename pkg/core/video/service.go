// Package video orchestrates long-running video generation: an initial clip,
// a strictly sequential chain of extensions, then publishing the final bytes.
package video

import (
	"context"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

// Image is an optional source frame for image-to-video generation.
type Image struct {
	Data     []byte
	MIMEType string
}

// Video references a generated clip. Data is set when the service returned
// the bytes inline.
type Video struct {
	URI      string `json:"uri,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"-"`
}

// Result is the payload of a finished operation.
type Result struct {
	Videos          []Video  `json:"videos,omitempty"`
	FilteredReasons []string `json:"filtered_reasons,omitempty"`
}

// OperationError is the failure carried by a terminal operation.
type OperationError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *OperationError) Error() string { return e.Message }

// Operation is an immutable snapshot of a remote job. Each status query
// yields a new value.
type Operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Response *Result         `json:"response,omitempty"`
	Error    *OperationError `json:"error,omitempty"`
}

// FirstVideo returns the first generated clip that can be fetched.
func (o *Operation) FirstVideo() (Video, bool) {
	if o == nil || o.Response == nil || len(o.Response.Videos) == 0 {
		return Video{}, false
	}
	v := o.Response.Videos[0]
	if v.URI == "" && len(v.Data) == 0 {
		return Video{}, false
	}
	return v, true
}

// Asset is the continuity input for an extension: the previous clip and the
// aspect ratio fixed for the whole chain.
type Asset struct {
	Operation   string            `json:"operation"`
	Video       Video             `json:"video"`
	AspectRatio types.AspectRatio `json:"aspect_ratio"`
}

// StartRequest starts a new clip.
type StartRequest struct {
	Prompt      string
	Image       *Image
	AspectRatio types.AspectRatio
}

// ExtendRequest continues Previous.
type ExtendRequest struct {
	Prompt   string
	Previous Asset
}

// Service is the remote video generation backend.
type Service interface {
	StartGeneration(ctx context.Context, req StartRequest) (*Operation, error)
	ExtendGeneration(ctx context.Context, req ExtendRequest) (*Operation, error)
	PollStatus(ctx context.Context, op *Operation) (*Operation, error)
	FetchResult(ctx context.Context, v Video) ([]byte, error)
}

// CredentialSelector is the host capability that holds the user's API key
// selection.
type CredentialSelector interface {
	HasCredential(ctx context.Context) (bool, error)
	PromptForCredential(ctx context.Context) error
}
