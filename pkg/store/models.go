package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
)

// JSONLabels is a custom GORM type for []labeling.Label stored as JSON.
type JSONLabels []labeling.Label

// Scan implements the sql.Scanner interface for JSONLabels.
func (l *JSONLabels) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONLabels: %T", value)
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface for JSONLabels.
func (l JSONLabels) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONRegions is a custom GORM type for []labeling.Region stored as JSON.
type JSONRegions []labeling.Region

// Scan implements the sql.Scanner interface for JSONRegions.
func (r *JSONRegions) Scan(value any) error {
	if value == nil {
		*r = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONRegions: %T", value)
	}
	return json.Unmarshal(bytes, r)
}

// Value implements the driver.Valuer interface for JSONRegions.
func (r JSONRegions) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONFields is a custom GORM type for []labeling.TableField stored as JSON.
type JSONFields []labeling.TableField

// Scan implements the sql.Scanner interface for JSONFields.
func (f *JSONFields) Scan(value any) error {
	if value == nil {
		*f = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONFields: %T", value)
	}
	return json.Unmarshal(bytes, f)
}

// Value implements the driver.Valuer interface for JSONFields.
func (f JSONFields) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// ProjectRecord is the GORM model for a labeling project.
type ProjectRecord struct {
	ID                 string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Name               string    `gorm:"column:name;not null"`
	LastVisitedAssetID string    `gorm:"column:last_visited_asset_id"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (ProjectRecord) TableName() string { return "projects" }

// AssetRecord is the GORM model for one roster asset.
type AssetRecord struct {
	ID            string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	ProjectID     string    `gorm:"column:project_id;index:idx_asset_project;not null"`
	Name          string    `gorm:"column:name;not null"`
	Path          string    `gorm:"column:path;not null"`
	MimeType      string    `gorm:"column:mime_type"`
	Type          string    `gorm:"column:type;not null;default:unknown"`
	State         string    `gorm:"column:state;not null;default:notVisited"`
	LabelingState string    `gorm:"column:labeling_state;not null;default:unlabeled"`
	Width         int       `gorm:"column:width"`
	Height        int       `gorm:"column:height"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (AssetRecord) TableName() string { return "assets" }

// AssetMetadataRecord stores the label content of one asset. Labels and
// regions are kept as JSON documents: they are always read and written as a
// unit with the asset.
type AssetMetadataRecord struct {
	AssetID     string      `gorm:"primaryKey;column:asset_id;type:varchar(36)"`
	Labels      JSONLabels  `gorm:"column:labels;type:text"`
	TableLabels JSONLabels  `gorm:"column:table_labels;type:text"`
	Regions     JSONRegions `gorm:"column:regions;type:text"`
	Version     string      `gorm:"column:version"`
	UpdatedAt   time.Time   `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (AssetMetadataRecord) TableName() string { return "asset_metadata" }

// TagRecord is the GORM model for a tag definition. DocumentCount is the
// number of distinct assets carrying at least one label for the tag,
// maintained incrementally via NotifyTagCountDelta.
type TagRecord struct {
	ProjectID     string     `gorm:"primaryKey;column:project_id;type:varchar(36)"`
	Name          string     `gorm:"primaryKey;column:name"`
	Type          string     `gorm:"column:type;not null;default:string"`
	Format        string     `gorm:"column:format"`
	Color         string     `gorm:"column:color"`
	DocumentCount int        `gorm:"column:document_count;not null;default:0"`
	RowKeys       JSONFields `gorm:"column:row_keys;type:text"`
	ColumnKeys    JSONFields `gorm:"column:column_keys;type:text"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (TagRecord) TableName() string { return "tags" }

// RawResultRecord stores an uploaded raw prediction payload as a side
// artifact of auto-labeling.
type RawResultRecord struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	AssetID   string    `gorm:"column:asset_id;index:idx_raw_asset;not null"`
	ModelID   string    `gorm:"column:model_id"`
	Payload   string    `gorm:"column:payload;type:text"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName returns the GORM table name.
func (RawResultRecord) TableName() string { return "raw_results" }
