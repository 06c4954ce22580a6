package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/character"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/auth"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/principal"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/workspace"
)

// bindWorkspace returns the caller's workspace. A BYOK header replaces the
// workspace key for this and later calls.
func bindWorkspace(r *http.Request, cfg config.Config, reg *workspace.Registry) (*workspace.Workspace, error) {
	if reg == nil {
		return nil, core.NewAPIError("workspaces are not configured")
	}
	ws := reg.Get(principal.Workspace(r, cfg))
	if key := auth.ProviderKey(r); key != "" {
		ws.Keys.Set(key)
	}
	return ws, nil
}

// lookupCharacter returns inline when set, otherwise the stored character
// named by id. Both empty means no character.
func lookupCharacter(ctx context.Context, store character.Store, inline *types.Character, id string) (*types.Character, error) {
	if inline != nil {
		if err := inline.Validate(); err != nil {
			return nil, core.NewInvalidRequestErrorWithParam(err.Error(), "character")
		}
		c := *inline
		return &c, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	if store == nil {
		return nil, core.NewNotFoundError("character " + id + " not found")
	}
	c, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// mediaPayload is inline binary data on the wire.
type mediaPayload struct {
	DataB64  string `json:"data_b64"`
	MIMEType string `json:"mime_type"`
}

func (m mediaPayload) decode(param string) ([]byte, string, error) {
	if strings.TrimSpace(m.DataB64) == "" {
		return nil, "", core.NewInvalidRequestErrorWithParam("data_b64 is required", param)
	}
	data, err := base64.StdEncoding.DecodeString(m.DataB64)
	if err != nil {
		return nil, "", core.NewInvalidRequestErrorWithParam("data_b64 is not valid base64", param)
	}
	mimeType := strings.TrimSpace(m.MIMEType)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
