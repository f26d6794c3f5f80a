package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/GrainArc/RasterImport/models"
)

// ImportClient GeoServer 导入接口
type ImportClient interface {
	CreateImport(ctx context.Context) (int64, error)
	UploadTask(ctx context.Context, importID int64, filePath string) (int64, error)
	RunImport(ctx context.Context, importID int64) error
	LayerName(ctx context.Context, importID int64) (string, error)
}

// ImporterService 把本地文件通过四步导入发布为 GeoServer 图层
type ImporterService struct {
	repo     *RasterRepository
	store    *UploadStore
	client   ImportClient
	notifier Notifier

	mu       sync.Mutex
	inFlight map[int64]context.CancelFunc
}

func NewImporterService(repo *RasterRepository, store *UploadStore, client ImportClient, notifier Notifier) *ImporterService {
	return &ImporterService{
		repo:     repo,
		store:    store,
		client:   client,
		notifier: notifier,
		inFlight: make(map[int64]context.CancelFunc),
	}
}

// CreateLayer 依次执行四个导入步骤，每次状态落库后再推送进度
func (s *ImporterService) CreateLayer(ctx context.Context, username string, rec *models.RasterRecord, filePath string) error {
	return s.createLayer(ctx, username, rec, filePath, models.EventImportStarted)
}

func (s *ImporterService) createLayer(ctx context.Context, username string, rec *models.RasterRecord, filePath string, start models.RasterEvent) error {
	if err := s.repo.Transition(rec, start); err != nil {
		return err
	}
	s.stage(username, 1, MsgPrepareImport)

	importID, err := s.client.CreateImport(ctx)
	if err != nil {
		return fmt.Errorf("%w: prepare import: %w", ErrExternalService, err)
	}
	if err := s.repo.Transition(rec, models.EventJobCreated); err != nil {
		return err
	}
	s.stage(username, 2, MsgPrepareTask)

	taskID, err := s.client.UploadTask(ctx, importID, filePath)
	if err != nil {
		return fmt.Errorf("%w: prepare task for import %d: %w", ErrExternalService, importID, err)
	}
	if err := s.repo.Transition(rec, models.EventTaskAccepted); err != nil {
		return err
	}
	s.stage(username, 3, MsgRunImport)

	if err := s.client.RunImport(ctx, importID); err != nil {
		return fmt.Errorf("%w: run import %d: %w", ErrExternalService, importID, err)
	}
	s.stage(username, 4, MsgGetLayerName)

	layerName, err := s.client.LayerName(ctx, importID)
	if err != nil {
		return fmt.Errorf("%w: layer name of import %d: %w", ErrExternalService, importID, err)
	}
	if err := s.repo.Publish(rec, layerName); err != nil {
		return err
	}
	s.notifier.Notify(username, ImportStageMessage{
		Message:     MsgImportSuccess,
		ImportStage: 5,
		I18nOpts:    map[string]string{"layer": layerName},
		ImportDone:  true,
		RasterFile:  rec,
	})
	log.Printf("import %d (task %d) of record %d completed as layer %s", importID, taskID, rec.ID, layerName)
	return nil
}

func (s *ImporterService) stage(username string, stage int, message string) {
	s.notifier.Notify(username, ImportStageMessage{Message: message, ImportStage: stage})
}

// Publish 发布刚上传完成的记录。同一记录同时只允许一个导入；失败时记录置为 ERROR，已取消的除外
func (s *ImporterService) Publish(ctx context.Context, username string, recordID int64, filePath string) error {
	return s.publish(ctx, username, recordID, filePath, false)
}

// Retry 同 Publish，但也允许 ERROR 或 CANCELED 的记录重新发布
func (s *ImporterService) Retry(ctx context.Context, username string, recordID int64, filePath string) error {
	return s.publish(ctx, username, recordID, filePath, true)
}

func (s *ImporterService) publish(ctx context.Context, username string, recordID int64, filePath string, retry bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if _, ok := s.inFlight[recordID]; ok {
		s.mu.Unlock()
		s.notifier.Notify(username, StatusMessage{Message: "An import for this file is already running.", Type: TypeWarning})
		return fmt.Errorf("%w: %d", ErrImportInFlight, recordID)
	}
	s.inFlight[recordID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, recordID)
		s.mu.Unlock()
	}()

	rec, err := s.repo.Get(recordID)
	if err != nil {
		s.notifier.Notify(username, StatusMessage{Message: MsgImportError, Type: TypeError})
		importRuns.WithLabelValues("error").Inc()
		return err
	}
	start := models.EventImportStarted
	if retry && models.CanTransition(rec.Status, models.EventImportRetried) {
		start = models.EventImportRetried
	}
	if err := s.createLayer(ctx, username, rec, filePath, start); err != nil {
		s.fail(username, rec, err)
		return err
	}
	importRuns.WithLabelValues("success").Inc()
	return nil
}

func (s *ImporterService) fail(username string, rec *models.RasterRecord, cause error) {
	log.Printf("error creating layer for record %d: %v", rec.ID, cause)
	err := s.repo.Transition(rec, models.EventFailed)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidTransition) && rec.Status == models.StatusCanceled:
		importRuns.WithLabelValues("canceled").Inc()
		s.notifier.Notify(username, StatusMessage{Message: MsgImportCancel, Type: TypeWarning})
		return
	default:
		log.Printf("set record %d to %s: %v", rec.ID, models.StatusError, err)
	}
	importRuns.WithLabelValues("error").Inc()
	s.notifier.Notify(username, StatusMessage{Message: MsgImportError, Type: TypeError})
}

// Cancel 把记录置为 CANCELED，关闭未结束的传输并中断正在进行的外部调用
func (s *ImporterService) Cancel(recordID int64) (*models.RasterRecord, error) {
	rec, err := s.repo.Get(recordID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Transition(rec, models.EventCanceled); err != nil {
		return rec, err
	}
	if n := s.store.CloseRecord(recordID); n > 0 {
		log.Printf("record %d: closed %d open uploads", recordID, n)
	}
	s.mu.Lock()
	if cancel, ok := s.inFlight[recordID]; ok {
		cancel()
	}
	s.mu.Unlock()
	log.Printf("record %d canceled", recordID)
	return rec, nil
}

func (s *ImporterService) Running(recordID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[recordID]
	return ok
}

// TractorLayerRequest 用户选定字段后发布拖拉机图层
type TractorLayerRequest struct {
	RasterFileID         int64  `json:"rasterFileId"`
	RasterFileName       string `json:"rasterFileName"`
	FileNameAttribute    string `json:"fileNameAttribute"`
	DisplayNameAttribute string `json:"displayNameAttribute"`
}

func (r TractorLayerRequest) validate() error {
	var missing []string
	if r.RasterFileID == 0 {
		missing = append(missing, "rasterFileId")
	}
	if r.RasterFileName == "" {
		missing = append(missing, "rasterFileName")
	}
	if r.FileNameAttribute == "" {
		missing = append(missing, "fileNameAttribute")
	}
	if r.DisplayNameAttribute == "" {
		missing = append(missing, "displayNameAttribute")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}
