package labeling

// AssetState represents the visitation lifecycle of an asset.
type AssetState string

const (
	StateNotVisited AssetState = "notVisited"
	StateVisited    AssetState = "visited"
	StateTagged     AssetState = "tagged"
)

// stateRank orders states for forward-only escalation.
var stateRank = map[AssetState]int{
	StateNotVisited: 0,
	StateVisited:    1,
	StateTagged:     2,
}

// Escalate returns next if it ranks higher than cur, otherwise cur.
// Asset state only moves forward; demotion requires an explicit edit.
func Escalate(cur, next AssetState) AssetState {
	if stateRank[next] > stateRank[cur] {
		return next
	}
	return cur
}

// LabelingState records how an asset's labels were produced.
type LabelingState string

const (
	LabelingNone             LabelingState = "unlabeled"
	LabelingManual           LabelingState = "manuallyLabeled"
	LabelingAuto             LabelingState = "autoLabeled"
	LabelingAutoThenAdjusted LabelingState = "autoLabeledAndAdjusted"
)

// AssetType classifies the underlying document format.
type AssetType string

const (
	TypeImage   AssetType = "image"
	TypePDF     AssetType = "pdf"
	TypeTIFF    AssetType = "tiff"
	TypeUnknown AssetType = "unknown"
)

// Taggable reports whether assets of this type can carry labels.
func (t AssetType) Taggable() bool {
	return t != TypeUnknown
}

// TagType distinguishes free-form tags from table tags.
type TagType string

const (
	TagTypeString TagType = "string"
	TagTypeTable  TagType = "table"
)

// TagFormat applies to table tags only.
type TagFormat string

const (
	FormatFixed      TagFormat = "fixed"
	FormatRowDynamic TagFormat = "rowDynamic"
)

// FieldType is the value type of a table row or column field.
type FieldType string

const (
	FieldText          FieldType = "text"
	FieldSelectionMark FieldType = "selectionMark"
)

// TableField identifies one row or column of a table tag.
type TableField struct {
	Key  string    `json:"key" yaml:"key"`
	Type FieldType `json:"type" yaml:"type"`
}
