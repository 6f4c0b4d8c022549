package orchestrate

import (
	"context"
	"encoding/json"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
	"github.com/jhapran/OCR-Form-Tools/pkg/reconcile"
)

// ProjectStore is the persistence collaborator. It is satisfied by
// store.Store but defined here, on the consumer side, so the orchestrator can
// be tested against in-memory fakes.
type ProjectStore interface {
	LoadAssets(ctx context.Context, projectID string) ([]labeling.Asset, error)
	LoadAssetMetadata(ctx context.Context, assetID string) (*labeling.AssetMetadata, error)
	SaveAssetMetadata(ctx context.Context, meta *labeling.AssetMetadata) error
	SaveProject(ctx context.Context, project *labeling.Project) error
	UpdateProjectTag(ctx context.Context, projectID, oldName, newName string) ([]*labeling.AssetMetadata, error)
	DeleteProjectTag(ctx context.Context, projectID, tagName string) ([]*labeling.AssetMetadata, error)
	DeleteAsset(ctx context.Context, meta *labeling.AssetMetadata) error
	NotifyTagCountDelta(ctx context.Context, projectID string, delta reconcile.TagDelta) error
}

// RecognizeRequest identifies the asset a text recognition call runs against.
type RecognizeRequest struct {
	AssetPath string
	AssetName string
	MimeType  string
	RunForAll bool
}

// RecognitionResult is the structured outcome of a recognition call. Raw
// carries the service response verbatim for callers that need more than the
// summary fields.
type RecognitionResult struct {
	Status    string          `json:"status"`
	PageCount int             `json:"pageCount"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Recognizer runs text recognition (OCR) against one asset.
type Recognizer interface {
	Recognize(ctx context.Context, req RecognizeRequest) (*RecognitionResult, error)
}

// PredictedField is one labeled value in a prediction.
type PredictedField struct {
	Tag        string               `json:"tag"`
	Value      string               `json:"value,omitempty"`
	Confidence float64              `json:"confidence,omitempty"`
	PageNumber int                  `json:"pageNumber,omitempty"`
	Bounds     labeling.BoundingBox `json:"bounds"`
	RowKey     string               `json:"rowKey,omitempty"`
	ColumnKey  string               `json:"columnKey,omitempty"`
}

// Prediction is the structured outcome of an auto-label prediction call.
type Prediction struct {
	ModelID string           `json:"modelId,omitempty"`
	Fields  []PredictedField `json:"fields,omitempty"`
	Raw     json.RawMessage  `json:"raw,omitempty"`
}

// Predictor runs the auto-label prediction service against one asset.
type Predictor interface {
	Predict(ctx context.Context, assetPath string) (*Prediction, error)
}

// PredictionMapper transforms a prediction into asset metadata.
type PredictionMapper interface {
	ToMetadata(asset labeling.Asset, prediction *Prediction) (*labeling.AssetMetadata, error)
}

// ArtifactUploader persists the raw prediction result as a side artifact.
type ArtifactUploader interface {
	UploadRawResult(ctx context.Context, asset labeling.Asset, prediction *Prediction) error
}

// AttributeReader probes an asset's pixel dimensions. Failures are
// best-effort: logged and ignored, the asset proceeds without a size.
type AttributeReader interface {
	ReadAssetAttributes(ctx context.Context, asset labeling.Asset) (width, height int, err error)
}

// Collaborators bundles the external services the orchestrator drives.
type Collaborators struct {
	Store      ProjectStore
	Recognizer Recognizer
	Predictor  Predictor
	Mapper     PredictionMapper
	Artifacts  ArtifactUploader
	Attributes AttributeReader
}
