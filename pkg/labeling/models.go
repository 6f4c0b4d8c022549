package labeling

// Asset is a single document (or image) in the project roster. The roster
// owns the canonical copy; the selected-asset view holds a shallow copy that
// must be kept in sync by the reconciler.
type Asset struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId,omitempty"`
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	MimeType  string     `json:"mimeType,omitempty"`
	Type      AssetType  `json:"type"`
	State     AssetState `json:"state"`

	LabelingState LabelingState `json:"labelingState"`

	// Pixel dimensions, populated best-effort on first load.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Transient per-asset busy flags, never persisted.
	IsRunningOCR          bool `json:"isRunningOCR,omitempty"`
	IsRunningAutoLabeling bool `json:"isRunningAutoLabeling,omitempty"`
}

// BoundingBox is the pixel rectangle of a region on the asset surface.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Region is a geometric annotation on an asset, optionally tagged. Regions
// assigned to a table tag additionally carry the row and column field keys
// identifying their cell.
type Region struct {
	ID         string      `json:"id"`
	TagNames   []string    `json:"tagNames,omitempty"`
	Bounds     BoundingBox `json:"bounds"`
	PageNumber int         `json:"pageNumber,omitempty"`
	Value      string      `json:"value,omitempty"`
	RowKey     string      `json:"rowKey,omitempty"`
	ColumnKey  string      `json:"columnKey,omitempty"`
}

// PrimaryTag returns the first assigned tag name, or "" for untagged regions.
func (r Region) PrimaryTag() string {
	if len(r.TagNames) == 0 {
		return ""
	}
	return r.TagNames[0]
}

// Label aggregates the regions assigned to one tag on one asset.
type Label struct {
	Tag     string   `json:"tag"`
	Regions []Region `json:"regions,omitempty"`
}

// LabelData is the ordered label content of an asset. Table labels are kept
// separate from free-form labels because their regions are addressed by
// row/column keys rather than a single value.
type LabelData struct {
	Labels      []Label `json:"labels,omitempty"`
	TableLabels []Label `json:"tableLabels,omitempty"`
}

// HasLabels reports whether any label content is present.
func (d *LabelData) HasLabels() bool {
	if d == nil {
		return false
	}
	return len(d.Labels) > 0 || len(d.TableLabels) > 0
}

// TagNames returns the distinct tag names present in the label data, in
// encounter order.
func (d *LabelData) TagNames() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var names []string
	for _, group := range [][]Label{d.Labels, d.TableLabels} {
		for _, l := range group {
			if _, ok := seen[l.Tag]; ok {
				continue
			}
			seen[l.Tag] = struct{}{}
			names = append(names, l.Tag)
		}
	}
	return names
}

// AssetMetadata is an asset plus its full label content.
type AssetMetadata struct {
	Asset     Asset      `json:"asset"`
	LabelData *LabelData `json:"labelData,omitempty"`
	Regions   []Region   `json:"regions,omitempty"`
	Version   string     `json:"version,omitempty"`
}

// Project groups the assets being labeled against one set of tag
// definitions.
type Project struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	LastVisitedAssetID string `json:"lastVisitedAssetId,omitempty"`
}

// Tag is a label definition. DocumentCount is the number of distinct assets
// whose label set includes this tag; it is maintained incrementally by the
// reconciler, never recomputed by full scan.
type Tag struct {
	Name          string       `json:"name"`
	Type          TagType      `json:"type"`
	Format        TagFormat    `json:"format,omitempty"`
	Color         string       `json:"color,omitempty"`
	DocumentCount int          `json:"documentCount"`
	RowKeys       []TableField `json:"rowKeys,omitempty"`
	ColumnKeys    []TableField `json:"columnKeys,omitempty"`
}
