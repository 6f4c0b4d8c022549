package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
	"github.com/jhapran/OCR-Form-Tools/pkg/orchestrate"
	"github.com/jhapran/OCR-Form-Tools/pkg/reconcile"
)

// apiStore is an in-memory ProjectStore plus TagLister for handler tests.
type apiStore struct {
	mu       sync.Mutex
	assets   []labeling.Asset
	metadata map[string]*labeling.AssetMetadata
	tags     []labeling.Tag
}

func (s *apiStore) LoadAssets(_ context.Context, _ string) ([]labeling.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]labeling.Asset, len(s.assets))
	copy(out, s.assets)
	return out, nil
}

func (s *apiStore) LoadAssetMetadata(_ context.Context, assetID string) (*labeling.AssetMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata[assetID], nil
}

func (s *apiStore) SaveAssetMetadata(_ context.Context, meta *labeling.AssetMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[meta.Asset.ID] = meta
	return nil
}

func (s *apiStore) SaveAsset(_ context.Context, asset labeling.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assets {
		if s.assets[i].ID == asset.ID {
			s.assets[i] = asset
			return nil
		}
	}
	s.assets = append(s.assets, asset)
	return nil
}

func (s *apiStore) SaveProject(_ context.Context, _ *labeling.Project) error { return nil }

func (s *apiStore) UpdateProjectTag(_ context.Context, _, _, _ string) ([]*labeling.AssetMetadata, error) {
	return nil, nil
}

func (s *apiStore) DeleteProjectTag(_ context.Context, _, _ string) ([]*labeling.AssetMetadata, error) {
	return nil, nil
}

func (s *apiStore) DeleteAsset(_ context.Context, meta *labeling.AssetMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.metadata, meta.Asset.ID)
	for i, a := range s.assets {
		if a.ID == meta.Asset.ID {
			s.assets = append(s.assets[:i], s.assets[i+1:]...)
			break
		}
	}
	return nil
}

func (s *apiStore) NotifyTagCountDelta(_ context.Context, _ string, _ reconcile.TagDelta) error {
	return nil
}

func (s *apiStore) ListTags(_ context.Context, _ string) ([]labeling.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags, nil
}

type blockingRecognizer struct {
	block chan struct{}
}

func (r *blockingRecognizer) Recognize(_ context.Context, _ orchestrate.RecognizeRequest) (*orchestrate.RecognitionResult, error) {
	if r.block != nil {
		<-r.block
	}
	return &orchestrate.RecognitionResult{Status: "succeeded"}, nil
}

type stubPredictor struct{}

func (stubPredictor) Predict(_ context.Context, _ string) (*orchestrate.Prediction, error) {
	return &orchestrate.Prediction{}, nil
}

type stubMapper struct{}

func (stubMapper) ToMetadata(asset labeling.Asset, _ *orchestrate.Prediction) (*labeling.AssetMetadata, error) {
	return &labeling.AssetMetadata{Asset: asset, LabelData: &labeling.LabelData{}}, nil
}

type stubArtifacts struct{}

func (stubArtifacts) UploadRawResult(_ context.Context, _ labeling.Asset, _ *orchestrate.Prediction) error {
	return nil
}

func apiAsset(id string, state labeling.AssetState) labeling.Asset {
	return labeling.Asset{
		ID:            id,
		Name:          id + ".jpg",
		Path:          "/docs/" + id + ".jpg",
		Type:          labeling.TypeImage,
		State:         state,
		LabelingState: labeling.LabelingNone,
	}
}

func setupAPI(t *testing.T, recognizer orchestrate.Recognizer, assets ...labeling.Asset) (http.Handler, *orchestrate.Orchestrator, *apiStore) {
	t.Helper()

	store := &apiStore{
		assets:   assets,
		metadata: make(map[string]*labeling.AssetMetadata),
	}
	reconciler := reconcile.NewReconciler(reconcile.NewSession(), store, nil)
	orch := orchestrate.New(
		labeling.Project{ID: "p1", Name: "test"},
		orchestrate.Collaborators{
			Store:      store,
			Recognizer: recognizer,
			Predictor:  stubPredictor{},
			Mapper:     stubMapper{},
			Artifacts:  stubArtifacts{},
		},
		reconciler,
		nil,
		nil,
	)
	require.NoError(t, orch.LoadProject(context.Background()))

	return Router(orch, store, "p1", nil), orch, store
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	handler, _, _ := setupAPI(t, &blockingRecognizer{}, apiAsset("a1", labeling.StateNotVisited))

	rec := doRequest(t, handler, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status orchestrate.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Busy)
	assert.Empty(t, status.RecentErrors)
}

func TestListAssetsEndpoint(t *testing.T) {
	handler, _, _ := setupAPI(t, &blockingRecognizer{},
		apiAsset("a1", labeling.StateNotVisited),
		apiAsset("a2", labeling.StateTagged),
	)

	rec := doRequest(t, handler, http.MethodGet, "/assets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Assets []labeling.Asset `json:"assets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Assets, 2)
	assert.Equal(t, "a1", resp.Assets[0].ID)
}

func TestSelectAssetEndpoint(t *testing.T) {
	handler, orch, _ := setupAPI(t, &blockingRecognizer{}, apiAsset("a1", labeling.StateNotVisited))

	rec := doRequest(t, handler, http.MethodPost, "/assets/a1:select", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a1", orch.Session().SelectedID())

	rec = doRequest(t, handler, http.MethodPost, "/assets/missing:select", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunOCREndpoint(t *testing.T) {
	handler, orch, _ := setupAPI(t, &blockingRecognizer{}, apiAsset("a1", labeling.StateNotVisited))

	rec := doRequest(t, handler, http.MethodPost, "/ocr:run", map[string]bool{"force": false})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		asset, ok := orch.Session().Asset("a1")
		return ok && asset.State == labeling.StateVisited && !orch.IsBusy()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunOCREndpointRefusesWhileBusy(t *testing.T) {
	recognizer := &blockingRecognizer{block: make(chan struct{})}
	handler, orch, _ := setupAPI(t, recognizer, apiAsset("a1", labeling.StateNotVisited))

	rec := doRequest(t, handler, http.MethodPost, "/ocr:run", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, orch.IsBusy, time.Second, time.Millisecond)

	rec = doRequest(t, handler, http.MethodPost, "/ocr:run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/autolabel:run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/assets/a1:autolabel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(recognizer.block)
	require.Eventually(t, func() bool { return !orch.IsBusy() }, 2*time.Second, 10*time.Millisecond)
}

func TestAutoLabelAssetEndpoint(t *testing.T) {
	handler, orch, _ := setupAPI(t, &blockingRecognizer{}, apiAsset("a1", labeling.StateVisited))

	rec := doRequest(t, handler, http.MethodPost, "/assets/a1:autolabel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	asset, ok := orch.Session().Asset("a1")
	require.True(t, ok)
	assert.Equal(t, labeling.StateTagged, asset.State)

	rec = doRequest(t, handler, http.MethodPost, "/assets/missing:autolabel", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDeleteAssetEndpoint(t *testing.T) {
	handler, orch, store := setupAPI(t, &blockingRecognizer{},
		apiAsset("a1", labeling.StateVisited),
		apiAsset("a2", labeling.StateVisited),
	)

	rec := doRequest(t, handler, http.MethodDelete, "/assets/a1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := orch.Session().Asset("a1")
	assert.False(t, ok)
	store.mu.Lock()
	assert.Len(t, store.assets, 1)
	store.mu.Unlock()
}

func TestListTagsEndpoint(t *testing.T) {
	handler, _, store := setupAPI(t, &blockingRecognizer{}, apiAsset("a1", labeling.StateVisited))
	store.tags = []labeling.Tag{
		{Name: "invoice", Type: labeling.TagTypeString, DocumentCount: 2},
	}

	rec := doRequest(t, handler, http.MethodGet, "/tags", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tags []labeling.Tag `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tags, 1)
	assert.Equal(t, 2, resp.Tags[0].DocumentCount)
}

func TestRenameTagEndpointRequiresNewName(t *testing.T) {
	handler, _, _ := setupAPI(t, &blockingRecognizer{}, apiAsset("a1", labeling.StateVisited))

	rec := doRequest(t, handler, http.MethodPost, "/tags/invoice:rename", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/tags/invoice:rename", map[string]string{"newName": "invoiceNumber"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTableBodyEndpoint(t *testing.T) {
	handler, orch, store := setupAPI(t, &blockingRecognizer{}, apiAsset("a1", labeling.StateVisited))
	orch.SetTags([]labeling.Tag{
		{
			Name:   "lineItems",
			Type:   labeling.TagTypeTable,
			Format: labeling.FormatRowDynamic,
			ColumnKeys: []labeling.TableField{
				{Key: "description", Type: labeling.FieldText},
			},
		},
	})

	// No selected asset yet.
	rec := doRequest(t, handler, http.MethodGet, "/tags/lineItems/table", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	store.metadata["a1"] = &labeling.AssetMetadata{
		Asset: apiAsset("a1", labeling.StateTagged),
		LabelData: &labeling.LabelData{
			TableLabels: []labeling.Label{{Tag: "lineItems"}},
		},
		Regions: []labeling.Region{
			{ID: "r1", TagNames: []string{"lineItems"}, RowKey: "#1", ColumnKey: "description"},
		},
	}
	rec = doRequest(t, handler, http.MethodPost, "/assets/a1:select", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/tags/lineItems/table", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tag     string                `json:"tag"`
		Rows    int                   `json:"rows"`
		Columns int                   `json:"columns"`
		Cells   [][][]labeling.Region `json:"cells"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "lineItems", resp.Tag)
	assert.Equal(t, 1, resp.Rows)
	assert.Equal(t, 1, resp.Columns)
	require.Len(t, resp.Cells[0][0], 1)
	assert.Equal(t, "r1", resp.Cells[0][0][0].ID)

	rec = doRequest(t, handler, http.MethodGet, "/tags/unknown/table", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshProjectEndpoint(t *testing.T) {
	handler, orch, store := setupAPI(t, &blockingRecognizer{}, apiAsset("a1", labeling.StateNotVisited))

	store.mu.Lock()
	store.assets[0].State = labeling.StateTagged
	store.mu.Unlock()

	rec := doRequest(t, handler, http.MethodPost, "/project:refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	asset, _ := orch.Session().Asset("a1")
	assert.Equal(t, labeling.StateTagged, asset.State)
}
