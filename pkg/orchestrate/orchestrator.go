// Package orchestrate composes the batch runner, the table mapper, and the
// state reconciler into the recognize-all and auto-label-next-batch
// workflows, serialized by a single busy gate.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jhapran/OCR-Form-Tools/pkg/batch"
	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
	"github.com/jhapran/OCR-Form-Tools/pkg/reconcile"
	"github.com/jhapran/OCR-Form-Tools/pkg/table"
)

// ErrBusy is returned by per-asset operations when another workflow holds the
// busy gate. Batch workflows signal the same condition by returning false.
var ErrBusy = errors.New("another labeling workflow is running")

// maxRecentErrors bounds the ring of surfaced error events.
const maxRecentErrors = 20

// ErrorEvent is a structured per-asset or per-batch failure surfaced for
// display.
type ErrorEvent struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Status is a snapshot of workflow activity.
type Status struct {
	Busy                   bool         `json:"busy"`
	RunningRecognition     bool         `json:"runningRecognition"`
	RunningAutoLabelBatch  bool         `json:"runningAutoLabelBatch"`
	RunningSingleAutoLabel bool         `json:"runningSingleAutoLabel"`
	WarnOnLeave            bool         `json:"warnOnLeave"`
	RecentErrors           []ErrorEvent `json:"recentErrors,omitempty"`
}

// Orchestrator drives the labeling workflows for one project.
type Orchestrator struct {
	project    labeling.Project
	cfg        *Config
	collab     Collaborators
	reconciler *reconcile.Reconciler
	gate       *Gate
	logger     *slog.Logger

	// OnError, when non-nil, receives every surfaced error event in addition
	// to the recent-errors ring.
	OnError func(ErrorEvent)

	mu     sync.Mutex
	mapper table.Mapper
	tags   []labeling.Tag
	recent []ErrorEvent
}

// New creates an orchestrator. A nil cfg uses defaults; a nil logger uses
// slog.Default().
func New(project labeling.Project, collab Collaborators, reconciler *reconcile.Reconciler, cfg *Config, logger *slog.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		project:    project,
		cfg:        cfg,
		collab:     collab,
		reconciler: reconciler,
		gate:       NewGate(),
		logger:     logger,
	}
}

// Session returns the labeling session driven by this orchestrator.
func (o *Orchestrator) Session() *reconcile.Session { return o.reconciler.Session() }

// IsBusy reports whether any workflow is running.
func (o *Orchestrator) IsBusy() bool { return o.gate.Busy() }

// Status returns a snapshot of workflow activity and recent errors.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	recent := make([]ErrorEvent, len(o.recent))
	copy(recent, o.recent)
	o.mu.Unlock()
	return Status{
		Busy:                   o.gate.Busy(),
		RunningRecognition:     o.gate.Running(OpRecognition),
		RunningAutoLabelBatch:  o.gate.Running(OpAutoLabelBatch),
		RunningSingleAutoLabel: o.gate.Running(OpSingleAutoLabel),
		WarnOnLeave:            o.gate.ShouldWarnOnLeave(),
		RecentErrors:           recent,
	}
}

// LoadProject loads the asset roster from the store, replacing the session
// roster.
func (o *Orchestrator) LoadProject(ctx context.Context) error {
	assets, err := o.collab.Store.LoadAssets(ctx, o.project.ID)
	if err != nil {
		return fmt.Errorf("load assets: %w", err)
	}
	o.reconciler.ReplaceRoster(assets)
	o.logger.Info("project loaded", "projectID", o.project.ID, "assets", len(assets))
	return nil
}

// RefreshProject re-reads the externally persisted asset states and copies
// divergences into the roster. When the selected asset changed externally its
// full metadata is reloaded from the store rather than patched in place.
func (o *Orchestrator) RefreshProject(ctx context.Context) error {
	assets, err := o.collab.Store.LoadAssets(ctx, o.project.ID)
	if err != nil {
		return fmt.Errorf("load assets: %w", err)
	}

	if len(o.Session().Assets()) == 0 {
		o.reconciler.ReplaceRoster(assets)
		return nil
	}

	changed, reloadSelected := o.reconciler.SyncRosterFromProject(assets)
	if changed {
		o.logger.Info("roster synchronized from project", "projectID", o.project.ID)
	}
	if reloadSelected {
		if _, err := o.SelectAsset(ctx, o.Session().SelectedID()); err != nil {
			return fmt.Errorf("reload selected asset: %w", err)
		}
	}
	return nil
}

// SelectAsset loads an asset's metadata, probes its attributes best-effort,
// and makes it the selected asset with its derived lifecycle state applied.
// An unknown asset id is a hard failure: it indicates a broken invariant
// upstream.
func (o *Orchestrator) SelectAsset(ctx context.Context, assetID string) (*labeling.AssetMetadata, error) {
	asset, ok := o.Session().Asset(assetID)
	if !ok {
		return nil, fmt.Errorf("asset %s is not in the roster", assetID)
	}

	meta, err := o.collab.Store.LoadAssetMetadata(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("load asset metadata %s: %w", assetID, err)
	}
	if meta == nil {
		meta = &labeling.AssetMetadata{Asset: asset}
	}

	if meta.Asset.Width == 0 && o.collab.Attributes != nil {
		w, h, err := o.collab.Attributes.ReadAssetAttributes(ctx, meta.Asset)
		if err != nil {
			o.logger.Warn("asset attributes unavailable", "assetID", assetID, "error", err)
		} else {
			meta.Asset.Width = w
			meta.Asset.Height = h
		}
	}

	if _, err := o.reconciler.SetSelected(ctx, meta); err != nil {
		return nil, err
	}

	o.project.LastVisitedAssetID = assetID
	if err := o.collab.Store.SaveProject(ctx, &o.project); err != nil {
		o.logger.Warn("save project failed", "projectID", o.project.ID, "error", err)
	}
	return meta, nil
}

// RecognizeAll runs text recognition over every not-yet-visited asset, or
// over all assets when force is set. It returns false as a no-op when another
// workflow is running. Per-asset failures are surfaced as error events and
// never abort the batch; the workflow flag is cleared once the full batch
// completes, including when zero assets were eligible.
func (o *Orchestrator) RecognizeAll(ctx context.Context, force bool) bool {
	if !o.gate.TryStart(OpRecognition) {
		o.logger.Info("recognize-all refused, another workflow is running")
		return false
	}
	defer o.gate.Finish(OpRecognition)

	var ids []string
	for _, a := range o.Session().Assets() {
		if force || a.State == labeling.StateNotVisited {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		o.logger.Info("recognize-all found no eligible assets")
		return true
	}

	runner := batch.Runner[string]{
		Limit:    o.cfg.Concurrency,
		Continue: func() bool { return ctx.Err() == nil },
	}
	failed := runner.Run(ctx, ids, func(ctx context.Context, id string) error {
		return o.recognizeOne(ctx, id, force)
	})

	o.logger.Info("recognize-all completed",
		"projectID", o.project.ID,
		"attempted", len(ids),
		"failed", len(failed))
	return true
}

func (o *Orchestrator) recognizeOne(ctx context.Context, id string, force bool) error {
	// Re-fetch the latest copy: state may have changed since dispatch.
	asset, ok := o.Session().Asset(id)
	if !ok {
		return nil
	}
	if !force && asset.State != labeling.StateNotVisited {
		return nil
	}

	o.reconciler.MarkRunningOCR(id, true)
	defer o.reconciler.MarkRunningOCR(id, false)

	_, err := o.collab.Recognizer.Recognize(ctx, RecognizeRequest{
		AssetPath: asset.Path,
		AssetName: asset.Name,
		MimeType:  asset.MimeType,
		RunForAll: force,
	})
	if err != nil {
		o.emit("Recognition failed", "text recognition for %s failed: %v", asset.Name, err)
		return err
	}

	// Advance to visited; an already tagged asset is never demoted.
	if _, _, err := o.reconciler.EscalateAssetState(ctx, id, labeling.StateVisited); err != nil {
		o.emit("Recognition failed", "recording state for %s failed: %v", asset.Name, err)
		return err
	}
	return nil
}

// AutoLabelBatch picks up to the configured batch size of assets, in roster
// order, whose state is notVisited or visited, and auto-labels them. Returns
// false as a no-op when another workflow is running.
func (o *Orchestrator) AutoLabelBatch(ctx context.Context) bool {
	if !o.gate.TryStart(OpAutoLabelBatch) {
		o.logger.Info("auto-label batch refused, another workflow is running")
		return false
	}
	defer o.gate.Finish(OpAutoLabelBatch)

	var ids []string
	for _, a := range o.Session().Assets() {
		if a.State == labeling.StateNotVisited || a.State == labeling.StateVisited {
			ids = append(ids, a.ID)
			if len(ids) == o.cfg.AutoLabelBatchSize {
				break
			}
		}
	}
	if len(ids) == 0 {
		o.logger.Info("auto-label batch found no eligible assets")
		return true
	}

	runner := batch.Runner[string]{
		Limit:    o.cfg.Concurrency,
		Continue: func() bool { return ctx.Err() == nil },
	}
	failed := runner.Run(ctx, ids, o.autoLabelOne)

	o.logger.Info("auto-label batch completed",
		"projectID", o.project.ID,
		"attempted", len(ids),
		"failed", len(failed))
	return true
}

// AutoLabelAsset runs the auto-label flow for a single asset, holding the
// manual-operation slot of the busy gate. An unknown asset id is a hard
// failure.
func (o *Orchestrator) AutoLabelAsset(ctx context.Context, assetID string) error {
	if !o.gate.TryStart(OpSingleAutoLabel) {
		return ErrBusy
	}
	defer o.gate.Finish(OpSingleAutoLabel)

	if _, ok := o.Session().Asset(assetID); !ok {
		return fmt.Errorf("asset %s is not in the roster", assetID)
	}
	return o.autoLabelOne(ctx, assetID)
}

func (o *Orchestrator) autoLabelOne(ctx context.Context, id string) error {
	asset, ok := o.Session().Asset(id)
	if !ok {
		return nil
	}
	if asset.State == labeling.StateTagged {
		return nil
	}

	o.reconciler.MarkRunningAutoLabel(id, true)
	defer o.reconciler.MarkRunningAutoLabel(id, false)

	prediction, err := o.collab.Predictor.Predict(ctx, asset.Path)
	if err != nil {
		o.emit("Auto-labeling failed", "prediction for %s failed: %v", asset.Name, err)
		return err
	}

	meta, err := o.collab.Mapper.ToMetadata(asset, prediction)
	if err != nil {
		o.emit("Auto-labeling failed", "mapping prediction for %s failed: %v", asset.Name, err)
		return err
	}

	if err := o.collab.Artifacts.UploadRawResult(ctx, asset, prediction); err != nil {
		o.emit("Auto-labeling failed", "uploading raw result for %s failed: %v", asset.Name, err)
		return err
	}

	meta.Asset.LabelingState = labeling.LabelingAuto
	delta, err := o.reconciler.ApplyMetadataChange(ctx, meta)
	if err != nil {
		o.emit("Auto-labeling failed", "reconciling %s failed: %v", asset.Name, err)
		return err
	}

	// Completion is marked tagged even when the prediction came back empty.
	if _, _, err := o.reconciler.EscalateAssetState(ctx, id, labeling.StateTagged); err != nil {
		o.emit("Auto-labeling failed", "recording state for %s failed: %v", asset.Name, err)
		return err
	}

	if !delta.IsZero() {
		if err := o.collab.Store.NotifyTagCountDelta(ctx, o.project.ID, delta); err != nil {
			o.emit("Auto-labeling failed", "updating tag counts for %s failed: %v", asset.Name, err)
			return err
		}
	}
	return nil
}

// RenameTag renames a tag across the project. Touched metadata for the
// selected asset is reloaded into the session.
func (o *Orchestrator) RenameTag(ctx context.Context, oldName, newName string) error {
	touched, err := o.collab.Store.UpdateProjectTag(ctx, o.project.ID, oldName, newName)
	if err != nil {
		return fmt.Errorf("rename tag %s: %w", oldName, err)
	}
	return o.resyncTouched(ctx, touched)
}

// DeleteTag removes a tag across the project after external confirmation.
func (o *Orchestrator) DeleteTag(ctx context.Context, tagName string) error {
	touched, err := o.collab.Store.DeleteProjectTag(ctx, o.project.ID, tagName)
	if err != nil {
		return fmt.Errorf("delete tag %s: %w", tagName, err)
	}
	return o.resyncTouched(ctx, touched)
}

func (o *Orchestrator) resyncTouched(ctx context.Context, touched []*labeling.AssetMetadata) error {
	selectedID := o.Session().SelectedID()
	for _, meta := range touched {
		if meta.Asset.ID == selectedID {
			if _, err := o.reconciler.SetSelected(ctx, meta); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// RemoveAsset deletes an asset in response to an external delete
// confirmation: the store first, then the session.
func (o *Orchestrator) RemoveAsset(ctx context.Context, assetID string) error {
	meta, err := o.collab.Store.LoadAssetMetadata(ctx, assetID)
	if err != nil {
		return fmt.Errorf("load asset metadata %s: %w", assetID, err)
	}
	if meta == nil {
		asset, ok := o.Session().Asset(assetID)
		if !ok {
			return fmt.Errorf("asset %s is not in the roster", assetID)
		}
		meta = &labeling.AssetMetadata{Asset: asset}
	}
	if err := o.collab.Store.DeleteAsset(ctx, meta); err != nil {
		return fmt.Errorf("delete asset %s: %w", assetID, err)
	}
	o.reconciler.RemoveAsset(assetID)
	return nil
}

// SetTags replaces the tag definitions (on initial load and on hot reload of
// the fields file).
func (o *Orchestrator) SetTags(tags []labeling.Tag) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tags = tags
}

// Tags returns the current tag definitions.
func (o *Orchestrator) Tags() []labeling.Tag {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]labeling.Tag, len(o.tags))
	copy(out, o.tags)
	return out
}

// Tag looks up a tag definition by name.
func (o *Orchestrator) Tag(name string) (labeling.Tag, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.tags {
		if t.Name == name {
			return t, true
		}
	}
	return labeling.Tag{}, false
}

// TableBody builds the table cell matrix for a table tag from the selected
// asset's regions. The mapper keeps its continuation state between calls so
// that repeatedly labeling the same row-dynamic tag never shrinks the matrix.
func (o *Orchestrator) TableBody(tagName string) (table.Body, error) {
	tag, ok := o.Tag(tagName)
	if !ok {
		return nil, fmt.Errorf("unknown tag %s", tagName)
	}
	if tag.Type != labeling.TagTypeTable {
		return nil, fmt.Errorf("tag %s is not a table tag", tagName)
	}

	meta := o.Session().CurrentMetadata()
	if meta == nil {
		return nil, errors.New("no asset selected")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mapper.Build(&tag, meta.Regions), nil
}

func (o *Orchestrator) emit(title, format string, args ...any) {
	ev := ErrorEvent{Title: title, Message: fmt.Sprintf(format, args...)}
	o.logger.Error(ev.Title, "message", ev.Message)

	o.mu.Lock()
	o.recent = append(o.recent, ev)
	if len(o.recent) > maxRecentErrors {
		o.recent = o.recent[len(o.recent)-maxRecentErrors:]
	}
	o.mu.Unlock()

	if o.OnError != nil {
		o.OnError(ev)
	}
}
