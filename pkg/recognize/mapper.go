package recognize

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
	"github.com/jhapran/OCR-Form-Tools/pkg/orchestrate"
)

// Mapper converts predictions into asset metadata. It implements
// orchestrate.PredictionMapper.
type Mapper struct{}

// ToMetadata turns each predicted field into a tagged region and groups the
// regions into labels per tag, preserving prediction order. Table fields
// (those carrying row/column keys) are grouped as table labels.
func (Mapper) ToMetadata(asset labeling.Asset, prediction *orchestrate.Prediction) (*labeling.AssetMetadata, error) {
	if prediction == nil {
		return nil, fmt.Errorf("nil prediction for asset %s", asset.ID)
	}

	meta := &labeling.AssetMetadata{Asset: asset}

	var (
		plain      []labeling.Label
		tabular    []labeling.Label
		plainByTag = make(map[string]int)
		tableByTag = make(map[string]int)
	)

	for _, field := range prediction.Fields {
		if field.Tag == "" {
			continue
		}
		region := labeling.Region{
			ID:         uuid.New().String(),
			TagNames:   []string{field.Tag},
			Bounds:     field.Bounds,
			PageNumber: field.PageNumber,
			Value:      field.Value,
			RowKey:     field.RowKey,
			ColumnKey:  field.ColumnKey,
		}
		meta.Regions = append(meta.Regions, region)

		if field.RowKey != "" || field.ColumnKey != "" {
			idx, ok := tableByTag[field.Tag]
			if !ok {
				idx = len(tabular)
				tabular = append(tabular, labeling.Label{Tag: field.Tag})
				tableByTag[field.Tag] = idx
			}
			tabular[idx].Regions = append(tabular[idx].Regions, region)
			continue
		}

		idx, ok := plainByTag[field.Tag]
		if !ok {
			idx = len(plain)
			plain = append(plain, labeling.Label{Tag: field.Tag})
			plainByTag[field.Tag] = idx
		}
		plain[idx].Regions = append(plain[idx].Regions, region)
	}

	if len(plain) > 0 || len(tabular) > 0 {
		meta.LabelData = &labeling.LabelData{
			Labels:      plain,
			TableLabels: tabular,
		}
	}
	return meta, nil
}
