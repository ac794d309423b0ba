package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/gradebook/internal/core"
)

// importFormField is the multipart field carrying the CSV.
const importFormField = "resultsFile"

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 4 << 20

type importResponse struct {
	Status string `json:"status"`
	*core.ImportSummary
}

// handleImport handles POST /api/results/import. Row-level failures are part
// of a 200 response; only batch-level failures produce an error status.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.respondError(w, r, formError(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile(importFormField)
	if err != nil {
		s.respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	summary, err := s.service.ImportCSV(r.Context(), file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Status: "success", ImportSummary: summary})
}

// handleImportStatus handles GET /api/results/import/status.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ImportLimiterStatus())
}

// formError classifies a multipart parsing failure.
func formError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large") {
		return errBodyTooLarge
	}
	return errNoFile
}
