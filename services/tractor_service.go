package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/GrainArc/RasterImport/Transformer"
	"github.com/GrainArc/RasterImport/methods"
	"github.com/GrainArc/RasterImport/models"
	"github.com/gabriel-vasile/mimetype"
)

// TractorService 拖拉机图像压缩包的探测和重打包
type TractorService struct {
	repo     *RasterRepository
	store    *UploadStore
	importer *ImporterService
	notifier Notifier
}

func NewTractorService(repo *RasterRepository, store *UploadStore, importer *ImporterService, notifier Notifier) *TractorService {
	return &TractorService{repo: repo, store: store, importer: importer, notifier: notifier}
}

// Postprocess 上传结束后的处理：重复上传直接完成，否则探测矢量数据
func (s *TractorService) Postprocess(username string, rec *models.RasterRecord, fileName string) error {
	if rec.FileCount() > 1 {
		s.notifier.Notify(username, StatusMessage{Message: "A matching layer has already been created.", Type: TypeInfo})
		return s.repo.MarkStored(rec)
	}

	s.notifier.Notify(username, StatusMessage{Message: "Checking file for layer info...", Type: TypeInfo})
	summary, err := s.Probe(s.store.PathOf(fileName))
	if err != nil {
		log.Printf("record %d: %v", rec.ID, err)
		s.notifier.Notify(username, StatusMessage{Message: "No layer info found.", Type: TypeInfo})
		return s.repo.MarkStored(rec)
	}

	log.Printf("record %d: %d features, fields %v (%s)", rec.ID, summary.Count, summary.Fields, summary.Encoding)
	s.notifier.Notify(username, StatusMessage{Message: "File can be published as layer!", Type: TypeInfo})
	s.notifier.Notify(username, TractorLayerMessage{
		TractorLayerDetected: true,
		ExampleProperties:    summary.First.Properties,
		RasterFileID:         rec.ID,
		RasterFileName:       fileName,
	})
	return nil
}

// Probe 解出矢量文件并读取第一个要素；任何失败都归为 ErrArchiveParse
func (s *TractorService) Probe(path string) (summary *Transformer.ShpSummary, err error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveParse, err)
	}
	if !isZip(mtype) {
		return nil, fmt.Errorf("%w: %s is %s", ErrArchiveParse, filepath.Base(path), mtype.String())
	}

	dir, err := os.MkdirTemp("", "probe-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer os.RemoveAll(dir)

	n, err := methods.ExtractEntries(path, dir, methods.ProbeExts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveParse, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no shapefile entries", ErrArchiveParse)
	}
	shpPath := methods.FindShpFile(dir, ".shp")
	if shpPath == nil {
		return nil, fmt.Errorf("%w: no .shp entry", ErrArchiveParse)
	}

	// go-shp 对损坏的文件会 panic
	defer func() {
		if r := recover(); r != nil {
			summary = nil
			err = fmt.Errorf("%w: %v", ErrArchiveParse, r)
		}
	}()
	summary, err = Transformer.ReadFirstFeature(*shpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveParse, err)
	}
	return summary, nil
}

// Republish 只保留矢量文件生成新压缩包，返回路径和清理函数
func (s *TractorService) Republish(fileName string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "republish-*")
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	out := filepath.Join(dir, filepath.Base(fileName))
	entries, err := methods.FilterZipTo(s.store.PathOf(fileName), out, methods.GeometryExts)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("%w: %w", ErrArchiveParse, err)
	}
	if len(entries) == 0 {
		cleanup()
		return "", nil, fmt.Errorf("%w: %s has no geometry entries", ErrArchiveParse, fileName)
	}
	log.Printf("republished %s with %v", fileName, entries)
	return out, cleanup, nil
}

// ImportTractorLayer 保存字段映射，重打包矢量文件后发布
func (s *TractorService) ImportTractorLayer(ctx context.Context, username string, req TractorLayerRequest) error {
	rec, err := s.prepareImport(req)
	if err != nil {
		s.notifier.Notify(username, StatusMessage{Message: err.Error(), Type: TypeWarning})
		return err
	}

	out, cleanup, err := s.Republish(req.RasterFileName)
	if err != nil {
		s.importer.fail(username, rec, err)
		return err
	}
	defer cleanup()
	return s.importer.Retry(ctx, username, rec.ID, out)
}

func (s *TractorService) prepareImport(req TractorLayerRequest) (*models.RasterRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	rec, err := s.repo.Get(req.RasterFileID)
	if err != nil {
		return nil, err
	}
	if rec.Type != models.CategoryTractor {
		return nil, fmt.Errorf("%w: record %d is not a tractor capture", ErrValidation, rec.ID)
	}
	if !hasFile(rec, req.RasterFileName) {
		return nil, fmt.Errorf("%w: %s does not belong to record %d", ErrValidation, req.RasterFileName, rec.ID)
	}
	if err := s.repo.SetFieldMapping(rec, req.FileNameAttribute, req.DisplayNameAttribute); err != nil {
		return nil, err
	}
	return rec, nil
}

func hasFile(rec *models.RasterRecord, fileName string) bool {
	for _, v := range rec.Files {
		if name, ok := v.(string); ok && name == fileName {
			return true
		}
	}
	return false
}

func isZip(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}
