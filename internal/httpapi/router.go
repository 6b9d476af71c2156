package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/igait-niu/igait-pipeline/internal/filesapi"
	"github.com/igait-niu/igait-pipeline/internal/rerun"
	"github.com/igait-niu/igait-pipeline/internal/upload"
)

// Deps bundles the handlers NewRouter wires onto routes.
type Deps struct {
	Upload *upload.Handler
	Rerun  *rerun.Handler
	Files  *filesapi.Handler

	JWTSecret string
}

// NewRouter builds the full upload/rerun/files route table. /upload is
// exempt from bearer auth (the original system authenticates it by uid
// form field alone); /rerun and /files require a valid bearer token.
func NewRouter(deps Deps) http.Handler {
	r := mux.NewRouter()

	r.Handle("/upload", deps.Upload).Methods(http.MethodPost)

	authed := r.NewRoute().Subrouter()
	authed.Use(AuthMiddleware(deps.JWTSecret))
	authed.Handle("/rerun", deps.Rerun).Methods(http.MethodPost)
	authed.Handle("/files/{job_id}", deps.Files).Methods(http.MethodGet)

	return r
}
