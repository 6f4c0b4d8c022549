package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/jhapran/OCR-Form-Tools/pkg/orchestrate"
)

// Router creates a chi.Router for the labeling API. Browser-based labeling
// frontends call this API cross-origin, so CORS is permitted for all origins.
func Router(orch *orchestrate.Orchestrator, tags TagLister, projectID string, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/status", StatusHandler(orch))
	r.Post("/project:refresh", RefreshProjectHandler(orch))

	r.Get("/assets", ListAssetsHandler(orch))
	r.Post("/assets/{assetId}:select", SelectAssetHandler(orch))
	r.Post("/assets/{assetId}:autolabel", AutoLabelAssetHandler(orch))
	r.Delete("/assets/{assetId}", DeleteAssetHandler(orch))

	r.Post("/ocr:run", RunOCRHandler(orch, logger))
	r.Post("/autolabel:run", RunAutoLabelHandler(orch, logger))

	r.Get("/tags", ListTagsHandler(tags, projectID))
	r.Get("/tags/{tagName}/table", TableBodyHandler(orch))
	r.Post("/tags/{tagName}:rename", RenameTagHandler(orch))
	r.Delete("/tags/{tagName}", DeleteTagHandler(orch))

	return r
}
