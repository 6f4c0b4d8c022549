// Package reconcile derives asset lifecycle state from label content and
// keeps the roster, the selected-asset view, and the external store in sync.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
)

// MetadataStore is the slice of the external store the reconciler needs. It
// is satisfied by store.ProjectStore but keeps this package independent of
// the persistence layer.
type MetadataStore interface {
	// LoadAssetMetadata returns the persisted metadata for an asset, nil when
	// none has been stored yet.
	LoadAssetMetadata(ctx context.Context, assetID string) (*labeling.AssetMetadata, error)
	SaveAssetMetadata(ctx context.Context, meta *labeling.AssetMetadata) error
	// SaveAsset persists a roster asset row without touching label content.
	SaveAsset(ctx context.Context, asset labeling.Asset) error
}

// TagDelta maps tag names to documentCount adjustments (+1 when an asset
// gains a tag, -1 when it loses one). Tags present before and after an edit
// contribute nothing.
type TagDelta map[string]int

// IsZero reports whether the delta carries no adjustments.
func (d TagDelta) IsZero() bool { return len(d) == 0 }

// DeriveState computes the lifecycle state an asset should be in given its
// label content. The derivation is idempotent: applying it twice to the same
// input yields the same output.
func DeriveState(asset labeling.Asset, labelData *labeling.LabelData) labeling.AssetState {
	if asset.Type.Taggable() {
		if labelData.HasLabels() {
			return labeling.StateTagged
		}
		return labeling.StateVisited
	}
	if asset.State == labeling.StateNotVisited {
		return labeling.StateVisited
	}
	return asset.State
}

// Reconciler is the single writer for the labeling session. It owns state
// derivation, tag counter deltas, and persistence of changed metadata.
type Reconciler struct {
	session *Session
	store   MetadataStore
	logger  *slog.Logger
}

// NewReconciler creates a reconciler over the given session and store.
func NewReconciler(session *Session, store MetadataStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{session: session, store: store, logger: logger}
}

// Session returns the session this reconciler writes to.
func (r *Reconciler) Session() *Session { return r.session }

// ReplaceRoster swaps the full roster, typically after loading assets from
// the external store.
func (r *Reconciler) ReplaceRoster(assets []labeling.Asset) {
	r.session.replaceRoster(assets)
}

// SetSelected loads the given metadata as the selected asset, deriving and
// applying its lifecycle state first.
func (r *Reconciler) SetSelected(ctx context.Context, meta *labeling.AssetMetadata) (TagDelta, error) {
	return r.apply(ctx, meta, true)
}

// ApplyMetadataChange reconciles an edited or freshly produced metadata
// object: derives the new state, computes the tag documentCount delta against
// the previously held label set, persists through the store when a change was
// detected, and updates the roster entry (and selected view when applicable).
func (r *Reconciler) ApplyMetadataChange(ctx context.Context, meta *labeling.AssetMetadata) (TagDelta, error) {
	return r.apply(ctx, meta, false)
}

func (r *Reconciler) apply(ctx context.Context, meta *labeling.AssetMetadata, selectAfter bool) (TagDelta, error) {
	oldState := meta.Asset.State
	derived := DeriveState(meta.Asset, meta.LabelData)
	// Forward-only: a derivation never silently demotes an asset that was
	// already tagged; demotion requires an explicit external edit.
	newState := labeling.Escalate(oldState, derived)

	// The prior label set comes from the metadata currently held by the
	// session; for assets the session does not hold (batch operations on
	// unselected assets) it comes from the store. Priming the session while
	// selecting an asset is not an edit and yields no delta.
	held := r.session.held(meta.Asset.ID)
	priorNames := meta.LabelData.TagNames()
	contentChanged := held != meta
	switch {
	case held != nil:
		priorNames = held.LabelData.TagNames()
	case selectAfter:
		contentChanged = false
	default:
		prior, err := r.store.LoadAssetMetadata(ctx, meta.Asset.ID)
		if err != nil {
			return nil, fmt.Errorf("load prior metadata %s: %w", meta.Asset.ID, err)
		}
		priorNames = nil
		if prior != nil {
			priorNames = prior.LabelData.TagNames()
		}
	}
	delta := diffTagSets(priorNames, meta.LabelData.TagNames())

	meta.Asset.State = newState

	if newState != oldState || contentChanged {
		if err := r.store.SaveAssetMetadata(ctx, meta); err != nil {
			return nil, fmt.Errorf("save asset metadata %s: %w", meta.Asset.ID, err)
		}
	}

	if !r.session.updateAsset(meta.Asset.ID, func(a *labeling.Asset) {
		a.State = meta.Asset.State
		a.LabelingState = meta.Asset.LabelingState
		a.Width = meta.Asset.Width
		a.Height = meta.Asset.Height
	}) {
		r.logger.Warn("reconciled asset is not in the roster", "assetID", meta.Asset.ID)
	}

	if selectAfter || r.session.SelectedID() == meta.Asset.ID {
		r.session.setSelected(meta)
	}

	return delta, nil
}

// MarkRunningOCR flips the transient recognition-in-progress flag on the
// roster entry for id.
func (r *Reconciler) MarkRunningOCR(id string, running bool) bool {
	return r.session.updateAsset(id, func(a *labeling.Asset) { a.IsRunningOCR = running })
}

// MarkRunningAutoLabel flips the transient auto-labeling-in-progress flag.
func (r *Reconciler) MarkRunningAutoLabel(id string, running bool) bool {
	return r.session.updateAsset(id, func(a *labeling.Asset) { a.IsRunningAutoLabeling = running })
}

// EscalateAssetState advances the roster entry for id to next, never
// demoting, and persists the advanced asset row through the store. Batch
// steps use this to record progress without rewriting label content; without
// the write-back a roster refresh would copy the stale stored state over the
// advanced one.
func (r *Reconciler) EscalateAssetState(ctx context.Context, id string, next labeling.AssetState) (labeling.AssetState, bool, error) {
	var result labeling.AssetState
	changed := false
	ok := r.session.updateAsset(id, func(a *labeling.Asset) {
		escalated := labeling.Escalate(a.State, next)
		changed = escalated != a.State
		a.State = escalated
		result = a.State
	})
	if !ok || !changed {
		return result, ok, nil
	}

	asset, _ := r.session.Asset(id)
	if err := r.store.SaveAsset(ctx, asset); err != nil {
		return result, true, fmt.Errorf("save asset state %s: %w", id, err)
	}
	return result, true, nil
}

// RemoveAsset drops an asset from the session after an external delete was
// confirmed and executed against the store.
func (r *Reconciler) RemoveAsset(id string) {
	r.session.removeAsset(id)
}

// SyncRosterFromProject compares each roster entry against the externally
// persisted source of truth and copies diverging state/labelingState values
// into the roster. The returned reloadSelected flag is set when the selected
// asset's entry changed this way: the roster is a summary view, so the caller
// must reload that asset's full metadata from the store rather than patch it
// in place.
func (r *Reconciler) SyncRosterFromProject(projectAssets []labeling.Asset) (changed, reloadSelected bool) {
	byID := make(map[string]labeling.Asset, len(projectAssets))
	for _, a := range projectAssets {
		byID[a.ID] = a
	}

	selectedID := r.session.SelectedID()
	for _, entry := range r.session.Assets() {
		external, ok := byID[entry.ID]
		if !ok {
			continue
		}
		if entry.State == external.State && entry.LabelingState == external.LabelingState {
			continue
		}
		r.session.updateAsset(entry.ID, func(a *labeling.Asset) {
			a.State = external.State
			a.LabelingState = external.LabelingState
		})
		changed = true
		if entry.ID == selectedID {
			reloadSelected = true
		}
	}
	return changed, reloadSelected
}

// diffTagSets computes the documentCount delta between two tag name sets by
// set difference, not length comparison: label count can change without the
// tag-set membership changing.
func diffTagSets(oldNames, newNames []string) TagDelta {
	oldSet := mapset.NewThreadUnsafeSet(oldNames...)
	newSet := mapset.NewThreadUnsafeSet(newNames...)

	delta := make(TagDelta)
	for _, name := range oldSet.Difference(newSet).ToSlice() {
		delta[name] = -1
	}
	for _, name := range newSet.Difference(oldSet).ToSlice() {
		delta[name] = 1
	}
	return delta
}
