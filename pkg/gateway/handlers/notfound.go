package handlers

import (
	"net/http"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCoreErrorJSON(w, requestIDFromContext(r.Context()), &core.Error{
		Type:    core.ErrNotFound,
		Message: "not found",
	}, http.StatusNotFound)
}
