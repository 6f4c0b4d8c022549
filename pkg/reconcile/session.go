package reconcile

import (
	"sync"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
)

// Session is the single shared mutable resource of the labeling core: the
// asset roster, the currently selected asset view, and the metadata held for
// it. Reads are safe from any goroutine; all mutation goes through the
// Reconciler's read-modify-write helpers (single-writer discipline), never
// through direct assignment from call sites.
type Session struct {
	mu         sync.RWMutex
	roster     []labeling.Asset
	selectedID string
	selected   labeling.Asset
	current    *labeling.AssetMetadata
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// Assets returns a snapshot copy of the roster.
func (s *Session) Assets() []labeling.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]labeling.Asset, len(s.roster))
	copy(out, s.roster)
	return out
}

// Asset returns the current roster entry for id.
func (s *Session) Asset(id string) (labeling.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.roster {
		if a.ID == id {
			return a, true
		}
	}
	return labeling.Asset{}, false
}

// SelectedID returns the id of the currently selected asset, "" when none.
func (s *Session) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedID
}

// Selected returns a copy of the selected asset view.
func (s *Session) Selected() (labeling.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selectedID == "" {
		return labeling.Asset{}, false
	}
	return s.selected, true
}

// CurrentMetadata returns the metadata held for the selected asset.
func (s *Session) CurrentMetadata() *labeling.AssetMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// held returns the metadata currently held for the given asset id, nil when
// the session holds none.
func (s *Session) held(assetID string) *labeling.AssetMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current != nil && s.current.Asset.ID == assetID {
		return s.current
	}
	return nil
}

// replaceRoster swaps the whole roster.
func (s *Session) replaceRoster(assets []labeling.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = assets
	if s.selectedID != "" {
		for _, a := range s.roster {
			if a.ID == s.selectedID {
				s.selected = a
				return
			}
		}
		// Selected asset no longer exists.
		s.selectedID = ""
		s.selected = labeling.Asset{}
		s.current = nil
	}
}

// updateAsset applies mutate to the roster entry for id under the write lock
// and mirrors the result into the selected view when it is the same asset.
// Returns false when the asset is not in the roster.
func (s *Session) updateAsset(id string, mutate func(*labeling.Asset)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.roster {
		if s.roster[i].ID == id {
			mutate(&s.roster[i])
			if s.selectedID == id {
				s.selected = s.roster[i]
			}
			return true
		}
	}
	return false
}

// setSelected records the selected asset view and its held metadata.
func (s *Session) setSelected(meta *labeling.AssetMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = meta.Asset.ID
	s.selected = meta.Asset
	s.current = meta
	for i := range s.roster {
		if s.roster[i].ID == meta.Asset.ID {
			s.roster[i] = meta.Asset
			return
		}
	}
}

// removeAsset drops the roster entry for id, clearing the selection when it
// pointed at the removed asset.
func (s *Session) removeAsset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.roster {
		if s.roster[i].ID == id {
			s.roster = append(s.roster[:i], s.roster[i+1:]...)
			break
		}
	}
	if s.selectedID == id {
		s.selectedID = ""
		s.selected = labeling.Asset{}
		s.current = nil
	}
}
