package server

import (
	"net/http"
	"path/filepath"
	"strings"
)

var datasetNames = map[string]bool{
	"comment_generation": true,
	"code_refinement":    true,
}

// handleDatasetDownload handles GET /datasets/download/{dataset} — serve
// a dataset archive from the data directory as an attachment. The
// withContext query flag selects the variant with surrounding code
// context included.
func (s *Server) handleDatasetDownload(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	dataset := PathParam(r, "/datasets/download/", "")
	if !datasetNames[dataset] {
		WriteError(w, http.StatusBadRequest, "Invalid dataset name")
		return
	}

	variant := "no_context"
	if strings.EqualFold(r.URL.Query().Get("withContext"), "true") {
		variant = "with_context"
	}
	filename := dataset + "_" + variant + ".zip"

	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, r, filepath.Join(s.app.Config.Storage.DataPath, filename))
}
