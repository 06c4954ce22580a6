package handlers

import (
	"net/http"
	"strings"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/character"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
)

const charactersPath = "/v1/characters"

type characterList struct {
	Object     string            `json:"object"`
	Data       []types.Character `json:"data"`
	VoiceTypes []types.VoiceType `json:"voice_types"`
}

// CharactersHandler serves /v1/characters and /v1/characters/{id}.
type CharactersHandler struct {
	Config config.Config
	Store  character.Store
}

func (h CharactersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeErr(w, r, core.NewAPIError("character store is not configured"))
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, charactersPath), "/")
	if id == "" {
		h.serveCollection(w, r)
		return
	}
	if strings.Contains(id, "/") {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}
	h.serveItem(w, r, id)
}

func (h CharactersHandler) serveCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.Store.List(r.Context())
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if list == nil {
			list = []types.Character{}
		}
		writeJSON(w, http.StatusOK, characterList{Object: "list", Data: list, VoiceTypes: types.VoiceTypes()})
	case http.MethodPost:
		var c types.Character
		if err := decodeBody(w, r, h.Config.MaxBodyBytes, &c); err != nil {
			writeErr(w, r, err)
			return
		}
		c.ID = ""
		saved, err := h.Store.Save(r.Context(), c)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		w.Header().Set("Location", charactersPath+"/"+saved.ID)
		writeJSON(w, http.StatusCreated, saved)
	default:
		writeMethodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (h CharactersHandler) serveItem(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		c, err := h.Store.Get(r.Context(), id)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodPut, http.MethodPatch:
		var update types.Character
		if err := decodeBody(w, r, h.Config.MaxBodyBytes, &update); err != nil {
			writeErr(w, r, err)
			return
		}
		if _, err := h.Store.Get(r.Context(), id); err != nil {
			writeErr(w, r, err)
			return
		}
		update.ID = id
		saved, err := h.Store.Save(r.Context(), update)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	case http.MethodDelete:
		if err := h.Store.Delete(r.Context(), id); err != nil {
			writeErr(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
}
