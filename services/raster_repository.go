package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/GrainArc/RasterImport/models"
	"gorm.io/gorm"
)

// RasterRepository 栅格记录持久化，所有状态变更都按迁移表做条件更新
type RasterRepository struct {
	db *gorm.DB
}

func NewRasterRepository(db *gorm.DB) *RasterRepository {
	return &RasterRepository{db: db}
}

func (r *RasterRepository) DB() *gorm.DB {
	return r.db
}

// FindByTriple 按 (类别, 试验, 时间) 查找，不存在时返回 nil
func (r *RasterRepository) FindByTriple(category models.RasterCategory, experimentID int64, ts time.Time) (*models.RasterRecord, error) {
	var rec models.RasterRecord
	err := r.db.Where("type = ? AND experiment_id = ? AND timestamp = ?", category, experimentID, ts).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find raster record: %w", ErrStorage, err)
	}
	return &rec, nil
}

func (r *RasterRepository) Create(rec *models.RasterRecord) error {
	if rec.UserID == 0 {
		return fmt.Errorf("%w: raster record needs an owner", ErrValidation)
	}
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("%w: create raster record: %w", ErrStorage, err)
	}
	return nil
}

// Get 读取记录并带出所属试验
func (r *RasterRepository) Get(id int64) (*models.RasterRecord, error) {
	var rec models.RasterRecord
	err := r.db.Preload("Experiment").Take(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load raster record %d: %w", ErrStorage, id, err)
	}
	return &rec, nil
}

func (r *RasterRepository) Status(id int64) (models.RasterStatus, error) {
	var rec models.RasterRecord
	err := r.db.Select("id", "status").Take(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return rec.Status, nil
}

func (r *RasterRepository) UpdateFiles(rec *models.RasterRecord) error {
	err := r.db.Model(&models.RasterRecord{}).Where("id = ?", rec.ID).Update("files", rec.Files).Error
	if err != nil {
		return fmt.Errorf("%w: update files of record %d: %w", ErrStorage, rec.ID, err)
	}
	return nil
}

// Transition 只有当前持久化状态是事件的合法源状态时才更新
func (r *RasterRepository) Transition(rec *models.RasterRecord, event models.RasterEvent) error {
	return r.conditionalUpdate(rec, event, map[string]interface{}{"status": event.Target()})
}

// Publish 记录图层名并完成导入，图层名不能为空
func (r *RasterRepository) Publish(rec *models.RasterRecord, layerName string) error {
	if layerName == "" {
		return fmt.Errorf("%w: layer name is empty", ErrValidation)
	}
	err := r.conditionalUpdate(rec, models.EventImported, map[string]interface{}{
		"status":                models.EventImported.Target(),
		"is_layer":              true,
		"geo_server_layer_name": layerName,
	})
	if err != nil {
		return err
	}
	rec.IsLayer = true
	rec.GeoServerLayerName = layerName
	return nil
}

// MarkStored 只存储不发布，是否图层取决于之前是否发布过
func (r *RasterRepository) MarkStored(rec *models.RasterRecord) error {
	isLayer := rec.GeoServerLayerName != ""
	err := r.conditionalUpdate(rec, models.EventStored, map[string]interface{}{
		"status":   models.EventStored.Target(),
		"is_layer": isLayer,
	})
	if err != nil {
		return err
	}
	rec.IsLayer = isLayer
	return nil
}

func (r *RasterRepository) conditionalUpdate(rec *models.RasterRecord, event models.RasterEvent, values map[string]interface{}) error {
	res := r.db.Model(&models.RasterRecord{}).
		Where("id = ? AND status IN ?", rec.ID, models.StatusStrings(event.Sources())).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("%w: %s on record %d: %w", ErrStorage, event, rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.Status(rec.ID)
		if err != nil {
			return err
		}
		rec.Status = current
		return fmt.Errorf("%w: %s not allowed from %q", ErrInvalidTransition, event, current)
	}
	rec.Status = event.Target()
	return nil
}

// SetFieldMapping 保存拖拉机图层的文件名字段和显示字段
func (r *RasterRepository) SetFieldMapping(rec *models.RasterRecord, filenameField, displayField string) error {
	err := r.db.Model(&models.RasterRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
		"filename_field": filenameField,
		"display_field":  displayField,
	}).Error
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	rec.FilenameField = filenameField
	rec.DisplayField = displayField
	return nil
}

// ImportLayers 已发布到 GeoServer 的记录
func (r *RasterRepository) ImportLayers() ([]models.RasterRecord, error) {
	var list []models.RasterRecord
	err := r.db.Preload("Experiment").
		Where("is_layer = ? AND status = ? AND geo_server_layer_name <> ''", true, models.StatusImportComplete).
		Order("id").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return list, nil
}

func (r *RasterRepository) FindByLayerName(layerName string) (*models.RasterRecord, error) {
	var rec models.RasterRecord
	err := r.db.Where("geo_server_layer_name = ?", layerName).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: layer %s", ErrNotFound, layerName)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return &rec, nil
}

func (r *RasterRepository) FindExperiment(id int64) (*models.Experiment, error) {
	var exp models.Experiment
	err := r.db.Take(&exp, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: experiment %d not found", ErrValidation, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return &exp, nil
}
