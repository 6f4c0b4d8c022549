// Package api exposes the labeling core to presentation-layer callers over
// HTTP. It decides nothing about rendering: it only reports state and
// triggers workflows.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
	"github.com/jhapran/OCR-Form-Tools/pkg/orchestrate"
	"github.com/jhapran/OCR-Form-Tools/pkg/table"
)

// TagLister is the slice of the store the API needs beyond the orchestrator.
type TagLister interface {
	ListTags(ctx context.Context, projectID string) ([]labeling.Tag, error)
}

// ListAssetsHandler handles GET /assets
func ListAssetsHandler(orch *orchestrate.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"assets": orch.Session().Assets(),
		})
	}
}

// SelectAssetHandler handles POST /assets/{assetId}:select
func SelectAssetHandler(orch *orchestrate.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID := chi.URLParam(r, "assetId")
		if assetID == "" {
			writeError(w, http.StatusBadRequest, "missing asset ID")
			return
		}

		meta, err := orch.SelectAsset(r.Context(), assetID)
		if err != nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("select asset: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, meta)
	}
}

// DeleteAssetHandler handles DELETE /assets/{assetId}
func DeleteAssetHandler(orch *orchestrate.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID := chi.URLParam(r, "assetId")
		if assetID == "" {
			writeError(w, http.StatusBadRequest, "missing asset ID")
			return
		}

		if err := orch.RemoveAsset(r.Context(), assetID); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("delete asset: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "deleted",
			"assetId": assetID,
		})
	}
}

// StatusHandler handles GET /status
func StatusHandler(orch *orchestrate.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orch.Status())
	}
}

type runOCRRequest struct {
	Force bool `json:"force,omitempty"`
}

// RunOCRHandler handles POST /ocr:run. The batch runs in the background; the
// response only acknowledges the start. A concurrent start is refused with
// 409 (no queuing, the caller retries).
func RunOCRHandler(orch *orchestrate.Orchestrator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runOCRRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
				return
			}
		}

		if orch.IsBusy() {
			writeError(w, http.StatusConflict, "another labeling workflow is running")
			return
		}

		// The gate inside RecognizeAll is authoritative; the check above only
		// gives callers a clean 409 in the common case.
		go func() {
			if !orch.RecognizeAll(context.Background(), req.Force) {
				logger.Info("recognize-all start refused after dispatch")
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "started",
			"force":  req.Force,
		})
	}
}

// RunAutoLabelHandler handles POST /autolabel:run
func RunAutoLabelHandler(orch *orchestrate.Orchestrator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if orch.IsBusy() {
			writeError(w, http.StatusConflict, "another labeling workflow is running")
			return
		}

		go func() {
			if !orch.AutoLabelBatch(context.Background()) {
				logger.Info("auto-label batch start refused after dispatch")
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

// AutoLabelAssetHandler handles POST /assets/{assetId}:autolabel
func AutoLabelAssetHandler(orch *orchestrate.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID := chi.URLParam(r, "assetId")
		if assetID == "" {
			writeError(w, http.StatusBadRequest, "missing asset ID")
			return
		}

		err := orch.AutoLabelAsset(r.Context(), assetID)
		if errors.Is(err, orchestrate.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("auto-label asset: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "labeled",
			"assetId": assetID,
		})
	}
}

// ListTagsHandler handles GET /tags
func ListTagsHandler(tags TagLister, projectID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := tags.ListTags(r.Context(), projectID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("list tags: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": list})
	}
}

type renameTagRequest struct {
	NewName string `json:"newName"`
}

// RenameTagHandler handles POST /tags/{tagName}:rename
func RenameTagHandler(orch *orchestrate.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tagName := chi.URLParam(r, "tagName")
		var req renameTagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewName == "" {
			writeError(w, http.StatusBadRequest, "newName is required")
			return
		}

		if err := orch.RenameTag(r.Context(), tagName, req.NewName); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("rename tag: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "renamed",
			"oldName": tagName,
			"newName": req.NewName,
		})
	}
}

// DeleteTagHandler handles DELETE /tags/{tagName}
func DeleteTagHandler(orch *orchestrate.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tagName := chi.URLParam(r, "tagName")
		if err := orch.DeleteTag(r.Context(), tagName); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("delete tag: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "deleted",
			"tag":    tagName,
		})
	}
}

// tableBodyResponse flattens the cell matrix for JSON consumers.
type tableBodyResponse struct {
	Tag     string                `json:"tag"`
	Rows    int                   `json:"rows"`
	Columns int                   `json:"columns"`
	Cells   [][][]labeling.Region `json:"cells"`
}

// TableBodyHandler handles GET /tags/{tagName}/table for the selected asset.
func TableBodyHandler(orch *orchestrate.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tagName := chi.URLParam(r, "tagName")
		body, err := orch.TableBody(tagName)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("table body: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, toTableBodyResponse(tagName, body))
	}
}

func toTableBodyResponse(tag string, body table.Body) tableBodyResponse {
	cells := make([][][]labeling.Region, len(body))
	for i, row := range body {
		cells[i] = make([][]labeling.Region, len(row))
		for j, cell := range row {
			cells[i][j] = cell
		}
	}
	return tableBodyResponse{
		Tag:     tag,
		Rows:    body.Rows(),
		Columns: body.Columns(),
		Cells:   cells,
	}
}

// RefreshProjectHandler handles POST /project:refresh
func RefreshProjectHandler(orch *orchestrate.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := orch.RefreshProject(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("refresh project: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
