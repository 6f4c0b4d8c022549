// Package store persists projects, assets, label metadata, tag definitions,
// and raw prediction artifacts behind a gorm database.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
	"github.com/jhapran/OCR-Form-Tools/pkg/orchestrate"
	"github.com/jhapran/OCR-Form-Tools/pkg/reconcile"
)

// Store provides database operations for the labeling core.
type Store struct {
	db *gorm.DB
}

// New creates a Store over the given gorm database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates all labeling tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&ProjectRecord{},
		&AssetRecord{},
		&AssetMetadataRecord{},
		&TagRecord{},
		&RawResultRecord{},
	)
}

// LoadAssets returns the asset roster of a project in stable name order.
func (s *Store) LoadAssets(ctx context.Context, projectID string) ([]labeling.Asset, error) {
	var records []AssetRecord
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("name ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}

	assets := make([]labeling.Asset, len(records))
	for i := range records {
		assets[i] = recordToAsset(&records[i])
	}
	return assets, nil
}

// LoadAssetMetadata returns the asset plus its label content, nil when the
// asset is unknown.
func (s *Store) LoadAssetMetadata(ctx context.Context, assetID string) (*labeling.AssetMetadata, error) {
	var asset AssetRecord
	if err := s.db.WithContext(ctx).First(&asset, "id = ?", assetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load asset %s: %w", assetID, err)
	}

	meta := &labeling.AssetMetadata{Asset: recordToAsset(&asset)}

	var content AssetMetadataRecord
	err := s.db.WithContext(ctx).First(&content, "asset_id = ?", assetID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return meta, nil
		}
		return nil, fmt.Errorf("load asset metadata %s: %w", assetID, err)
	}

	meta.Regions = content.Regions
	meta.Version = content.Version
	if len(content.Labels) > 0 || len(content.TableLabels) > 0 {
		meta.LabelData = &labeling.LabelData{
			Labels:      content.Labels,
			TableLabels: content.TableLabels,
		}
	}
	return meta, nil
}

// SaveAssetMetadata upserts the asset row and its label content as a unit.
func (s *Store) SaveAssetMetadata(ctx context.Context, meta *labeling.AssetMetadata) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		asset := assetToRecord(&meta.Asset)
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(asset).Error; err != nil {
			return fmt.Errorf("save asset %s: %w", meta.Asset.ID, err)
		}

		content := &AssetMetadataRecord{
			AssetID:   meta.Asset.ID,
			Regions:   meta.Regions,
			Version:   meta.Version,
			UpdatedAt: time.Now(),
		}
		if meta.LabelData != nil {
			content.Labels = meta.LabelData.Labels
			content.TableLabels = meta.LabelData.TableLabels
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "asset_id"}},
			UpdateAll: true,
		}).Create(content).Error; err != nil {
			return fmt.Errorf("save asset metadata %s: %w", meta.Asset.ID, err)
		}
		return nil
	})
}

// SaveProject upserts the project row.
func (s *Store) SaveProject(ctx context.Context, project *labeling.Project) error {
	record := &ProjectRecord{
		ID:                 project.ID,
		Name:               project.Name,
		LastVisitedAssetID: project.LastVisitedAssetID,
		UpdatedAt:          time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("save project %s: %w", project.ID, err)
	}
	return nil
}

// UpdateProjectTag renames a tag across the project: the tag definition and
// every stored label and region carrying the old name. Returns the metadata
// of every touched asset.
func (s *Store) UpdateProjectTag(ctx context.Context, projectID, oldName, newName string) ([]*labeling.AssetMetadata, error) {
	return s.rewriteTag(ctx, projectID, oldName, &newName)
}

// DeleteProjectTag removes a tag across the project. Returns the metadata of
// every touched asset.
func (s *Store) DeleteProjectTag(ctx context.Context, projectID, tagName string) ([]*labeling.AssetMetadata, error) {
	return s.rewriteTag(ctx, projectID, tagName, nil)
}

// rewriteTag renames (newName non-nil) or removes (newName nil) a tag across
// all stored metadata of a project.
func (s *Store) rewriteTag(ctx context.Context, projectID, oldName string, newName *string) ([]*labeling.AssetMetadata, error) {
	var touchedIDs []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if newName != nil {
			res := tx.Model(&TagRecord{}).
				Where("project_id = ? AND name = ?", projectID, oldName).
				Update("name", *newName)
			if res.Error != nil {
				return fmt.Errorf("rename tag record: %w", res.Error)
			}
		} else {
			if err := tx.Where("project_id = ? AND name = ?", projectID, oldName).
				Delete(&TagRecord{}).Error; err != nil {
				return fmt.Errorf("delete tag record: %w", err)
			}
		}

		var contents []AssetMetadataRecord
		err := tx.Joins("JOIN assets ON assets.id = asset_metadata.asset_id").
			Where("assets.project_id = ?", projectID).
			Find(&contents).Error
		if err != nil {
			return fmt.Errorf("load project metadata: %w", err)
		}

		for i := range contents {
			content := &contents[i]
			changed := false
			content.Labels = rewriteLabels(content.Labels, oldName, newName, &changed)
			content.TableLabels = rewriteLabels(content.TableLabels, oldName, newName, &changed)
			content.Regions = rewriteRegions(content.Regions, oldName, newName, &changed)
			if !changed {
				continue
			}
			content.UpdatedAt = time.Now()
			if err := tx.Save(content).Error; err != nil {
				return fmt.Errorf("rewrite metadata %s: %w", content.AssetID, err)
			}
			touchedIDs = append(touchedIDs, content.AssetID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	touched := make([]*labeling.AssetMetadata, 0, len(touchedIDs))
	for _, id := range touchedIDs {
		meta, err := s.LoadAssetMetadata(ctx, id)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			touched = append(touched, meta)
		}
	}
	return touched, nil
}

func rewriteLabels(labels JSONLabels, oldName string, newName *string, changed *bool) JSONLabels {
	out := labels[:0]
	for _, l := range labels {
		if l.Tag == oldName {
			*changed = true
			if newName == nil {
				continue
			}
			l.Tag = *newName
			l.Regions = renameRegionTags(l.Regions, oldName, *newName)
		}
		out = append(out, l)
	}
	return out
}

func rewriteRegions(regions JSONRegions, oldName string, newName *string, changed *bool) JSONRegions {
	for i := range regions {
		names := regions[i].TagNames[:0]
		for _, n := range regions[i].TagNames {
			if n == oldName {
				*changed = true
				if newName == nil {
					continue
				}
				n = *newName
			}
			names = append(names, n)
		}
		regions[i].TagNames = names
	}
	return regions
}

func renameRegionTags(regions []labeling.Region, oldName, newName string) []labeling.Region {
	for i := range regions {
		for j, n := range regions[i].TagNames {
			if n == oldName {
				regions[i].TagNames[j] = newName
			}
		}
	}
	return regions
}

// DeleteAsset removes an asset, its metadata, and its raw artifacts, and
// decrements the documentCount of every tag the asset carried.
func (s *Store) DeleteAsset(ctx context.Context, meta *labeling.AssetMetadata) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&AssetMetadataRecord{}, "asset_id = ?", meta.Asset.ID).Error; err != nil {
			return fmt.Errorf("delete asset metadata: %w", err)
		}
		if err := tx.Delete(&RawResultRecord{}, "asset_id = ?", meta.Asset.ID).Error; err != nil {
			return fmt.Errorf("delete raw results: %w", err)
		}
		if err := tx.Delete(&AssetRecord{}, "id = ?", meta.Asset.ID).Error; err != nil {
			return fmt.Errorf("delete asset: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	delta := make(reconcile.TagDelta)
	for _, name := range meta.LabelData.TagNames() {
		delta[name] = -1
	}
	if len(delta) == 0 {
		return nil
	}
	return s.NotifyTagCountDelta(ctx, meta.Asset.ProjectID, delta)
}

// NotifyTagCountDelta applies incremental documentCount adjustments. The
// stored counter never drops below zero.
func (s *Store) NotifyTagCountDelta(ctx context.Context, projectID string, delta reconcile.TagDelta) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for name, d := range delta {
			if d == 0 {
				continue
			}
			if d > 0 {
				res := tx.Model(&TagRecord{}).
					Where("project_id = ? AND name = ?", projectID, name).
					Update("document_count", gorm.Expr("document_count + ?", d))
				if res.Error != nil {
					return fmt.Errorf("adjust tag count %s: %w", name, res.Error)
				}
				continue
			}
			// Negative deltas floor at zero: a count below zero is a
			// data-quality condition, not an error.
			var record TagRecord
			err := tx.Where("project_id = ? AND name = ?", projectID, name).First(&record).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return fmt.Errorf("load tag %s: %w", name, err)
			}
			count := record.DocumentCount + d
			if count < 0 {
				count = 0
			}
			res := tx.Model(&TagRecord{}).
				Where("project_id = ? AND name = ?", projectID, name).
				Update("document_count", count)
			if res.Error != nil {
				return fmt.Errorf("adjust tag count %s: %w", name, res.Error)
			}
		}
		return nil
	})
}

// UploadRawResult stores the raw prediction payload as a side artifact.
func (s *Store) UploadRawResult(ctx context.Context, asset labeling.Asset, prediction *orchestrate.Prediction) error {
	payload, err := json.Marshal(prediction)
	if err != nil {
		return fmt.Errorf("marshal raw result: %w", err)
	}
	record := &RawResultRecord{
		ID:        uuid.New().String(),
		AssetID:   asset.ID,
		ModelID:   prediction.ModelID,
		Payload:   string(payload),
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("store raw result for %s: %w", asset.ID, err)
	}
	return nil
}

// SyncTags upserts tag definitions from the fields file, preserving the
// incrementally maintained documentCount of existing tags.
func (s *Store) SyncTags(ctx context.Context, projectID string, tags []labeling.Tag) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tags {
			record := &TagRecord{
				ProjectID:  projectID,
				Name:       t.Name,
				Type:       string(t.Type),
				Format:     string(t.Format),
				Color:      t.Color,
				RowKeys:    t.RowKeys,
				ColumnKeys: t.ColumnKeys,
				UpdatedAt:  time.Now(),
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "project_id"}, {Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"type", "format", "color", "row_keys", "column_keys", "updated_at",
				}),
			}).Create(record).Error
			if err != nil {
				return fmt.Errorf("sync tag %s: %w", t.Name, err)
			}
		}
		return nil
	})
}

// ListTags returns the project's tag definitions with their current document
// counts.
func (s *Store) ListTags(ctx context.Context, projectID string) ([]labeling.Tag, error) {
	var records []TagRecord
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("name ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	tags := make([]labeling.Tag, len(records))
	for i, r := range records {
		tags[i] = labeling.Tag{
			Name:          r.Name,
			Type:          labeling.TagType(r.Type),
			Format:        labeling.TagFormat(r.Format),
			Color:         r.Color,
			DocumentCount: r.DocumentCount,
			RowKeys:       r.RowKeys,
			ColumnKeys:    r.ColumnKeys,
		}
	}
	return tags, nil
}

// SaveAsset upserts one roster asset row without touching label content.
func (s *Store) SaveAsset(ctx context.Context, asset labeling.Asset) error {
	record := assetToRecord(&asset)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("save asset %s: %w", asset.ID, err)
	}
	return nil
}

// SaveAssets inserts roster assets discovered outside the store (initial
// project import).
func (s *Store) SaveAssets(ctx context.Context, assets []labeling.Asset) error {
	for i := range assets {
		if err := s.SaveAsset(ctx, assets[i]); err != nil {
			return err
		}
	}
	return nil
}

func recordToAsset(r *AssetRecord) labeling.Asset {
	return labeling.Asset{
		ID:            r.ID,
		ProjectID:     r.ProjectID,
		Name:          r.Name,
		Path:          r.Path,
		MimeType:      r.MimeType,
		Type:          labeling.AssetType(r.Type),
		State:         labeling.AssetState(r.State),
		LabelingState: labeling.LabelingState(r.LabelingState),
		Width:         r.Width,
		Height:        r.Height,
	}
}

func assetToRecord(a *labeling.Asset) *AssetRecord {
	return &AssetRecord{
		ID:            a.ID,
		ProjectID:     a.ProjectID,
		Name:          a.Name,
		Path:          a.Path,
		MimeType:      a.MimeType,
		Type:          string(a.Type),
		State:         string(a.State),
		LabelingState: string(a.LabelingState),
		Width:         a.Width,
		Height:        a.Height,
		UpdatedAt:     time.Now(),
	}
}
