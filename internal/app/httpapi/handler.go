package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/R3E-Network/orchestrator/internal/app/importapi"
)

type importResponse struct {
	AssetsCreated      int `json:"assets_created"`
	AssetsUpdated      int `json:"assets_updated"`
	VulnsCreated       int `json:"vulns_created"`
	VulnsUpdated       int `json:"vulns_updated"`
	CredentialsCreated int `json:"credentials_created"`
	CredentialsUpdated int `json:"credentials_updated"`
	ResultsCreated     int `json:"results_created"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleImport binds POST /import/{project}/{format} onto the Import API:
// read the request body as the raw scan file, hand it to importapi.Import,
// and report created/updated counts.
func handleImport(importer *importapi.Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := uuid.Parse(chi.URLParam(r, "project"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid project id")
			return
		}
		format := chi.URLParam(r, "format")

		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
			return
		}

		counts, err := importer.Import(r.Context(), projectID, format, data)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, importResponse{
			AssetsCreated:      counts.AssetsCreated,
			AssetsUpdated:      counts.AssetsUpdated,
			VulnsCreated:       counts.VulnsCreated,
			VulnsUpdated:       counts.VulnsUpdated,
			CredentialsCreated: counts.CredentialsCreated,
			CredentialsUpdated: counts.CredentialsUpdated,
			ResultsCreated:     counts.ResultsCreated,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
