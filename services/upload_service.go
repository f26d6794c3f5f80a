package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/GrainArc/RasterImport/methods"
	"github.com/GrainArc/RasterImport/models"
)

// ExperimentRef startfile 消息中的试验
type ExperimentRef struct {
	ID      int64  `json:"id"`
	Expcode string `json:"expcode"`
	Title   string `json:"title"`
}

// StartFileRequest startfile 消息体
type StartFileRequest struct {
	Experiment ExperimentRef         `json:"experiment"`
	Category   models.RasterCategory `json:"category"`
	Date       string                `json:"date"`
	Day        string                `json:"day,omitempty"` // 拍摄日，默认同 date
	Sensor     string                `json:"sensor"`
	Format     string                `json:"format"`
	Product    string                `json:"product"`
	AddAsLayer bool                  `json:"addAsLayer"`
}

func (r *StartFileRequest) validate() error {
	var problems []string
	if r.Experiment.ID == 0 {
		problems = append(problems, "experiment is required")
	}
	if !r.Category.Valid() {
		problems = append(problems, fmt.Sprintf("unknown category %q", r.Category))
	}
	if !methods.IsStringInSlice(r.Sensor, models.Sensors) {
		problems = append(problems, fmt.Sprintf("unknown sensor %q", r.Sensor))
	}
	if !methods.IsStringInSlice(r.Format, models.Formats) {
		problems = append(problems, fmt.Sprintf("unknown format %q", r.Format))
	}
	if r.Product != "" && !methods.IsStringInSlice(r.Product, models.Products) {
		problems = append(problems, fmt.Sprintf("unknown product %q", r.Product))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// UploadService 传输开始和结束的编排
type UploadService struct {
	repo     *RasterRepository
	store    *UploadStore
	importer *ImporterService
	tractor  *TractorService
	notifier Notifier
	tasks    TaskGroup
}

func NewUploadService(repo *RasterRepository, store *UploadStore, importer *ImporterService, tractor *TractorService, notifier Notifier) *UploadService {
	return &UploadService{
		repo:     repo,
		store:    store,
		importer: importer,
		tractor:  tractor,
		notifier: notifier,
	}
}

// StartFile 创建或更新记录，打开目标文件并返回传输句柄
func (s *UploadService) StartFile(user *models.User, req StartFileRequest) (*Upload, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	ts, err := methods.ParseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	exp, err := s.repo.FindExperiment(req.Experiment.ID)
	if err != nil {
		return nil, err
	}
	expcode := exp.Expcode
	if expcode == "" {
		expcode = req.Experiment.Expcode
	}
	captured := ts
	if req.Day != "" {
		if captured, err = methods.ParseDate(req.Day); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	day := methods.DayKey(captured)
	fileName := methods.RasterFileName(expcode, string(req.Category), captured, req.Sensor, req.Format)
	log.Printf("user %s started an upload for experiment %s", user.Username, expcode)

	rec, err := s.repo.FindByTriple(req.Category, exp.ID, ts)
	if err != nil {
		return nil, err
	}
	switch {
	case rec != nil && req.Category == models.CategoryTractor:
		// 导入进行中的记录不能追加
		if err := s.repo.Transition(rec, models.EventTransferStarted); err != nil {
			return nil, err
		}
	case rec != nil:
		return nil, fmt.Errorf("%w: raster file of type %s in experiment %s already exists at this date",
			ErrValidation, req.Category, exp.Title)
	default:
		rec = &models.RasterRecord{
			Type:         req.Category,
			ExperimentID: exp.ID,
			Timestamp:    ts,
			Sensor:       req.Sensor,
			Format:       req.Format,
			Product:      req.Product,
			AddAsLayer:   req.AddAsLayer,
			UserID:       user.ID,
		}
		if err := s.repo.Create(rec); err != nil {
			return nil, err
		}
		if err := s.repo.Transition(rec, models.EventTransferStarted); err != nil {
			return nil, err
		}
	}

	// 文件打开成功后才登记日期键
	u, err := s.store.Open(rec.ID, fileName)
	if err != nil {
		s.abort(rec)
		return nil, err
	}
	rec.SetFile(day, fileName)
	if err := s.repo.UpdateFiles(rec); err != nil {
		if _, cerr := s.store.Close(u.Handle); cerr != nil {
			log.Printf("close upload %s: %v", u.Handle, cerr)
		}
		s.abort(rec)
		return nil, err
	}
	log.Printf("raster file %s added to database as record %d", fileName, rec.ID)
	return u, nil
}

func (s *UploadService) abort(rec *models.RasterRecord) {
	if err := s.repo.Transition(rec, models.EventFailed); err != nil {
		log.Printf("set record %d to %s: %v", rec.ID, models.StatusError, err)
	}
}

// EndFile 关闭传输，按类别探测或发布；后续工作在后台进行
func (s *UploadService) EndFile(username string, handle string) (*models.RasterRecord, error) {
	u, err := s.store.Close(handle)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Get(u.RecordID)
	if err != nil {
		return nil, err
	}

	// 传输期间被取消或置错的记录不再探测或发布
	if rec.Status != models.StatusUploading {
		log.Printf("record %d is %s after upload, skipping postprocess", rec.ID, rec.Status)
		s.notifier.Notify(username, StatusMessage{
			Message: fmt.Sprintf("%s uploaded, but raster file %d is %s.", u.FileName, rec.ID, rec.Status),
			Type:    TypeWarning,
		})
		return rec, nil
	}

	switch {
	case rec.Type == models.CategoryTractor:
		s.tasks.Go(fmt.Sprintf("postprocess %d", rec.ID), func() error {
			return s.tractor.Postprocess(username, rec, u.FileName)
		})
	case rec.AddAsLayer:
		s.tasks.Go(fmt.Sprintf("import %d", rec.ID), func() error {
			return s.importer.Publish(context.Background(), username, rec.ID, u.Path)
		})
	default:
		if err := s.repo.MarkStored(rec); err != nil {
			return rec, err
		}
		s.notifier.Notify(username, StatusMessage{Message: fmt.Sprintf("%s stored.", u.FileName), Type: TypeSuccess})
	}
	return rec, nil
}

// ImportTractorLayer 在后台发布拖拉机图层
func (s *UploadService) ImportTractorLayer(username string, req TractorLayerRequest) {
	s.tasks.Go(fmt.Sprintf("tractor import %d", req.RasterFileID), func() error {
		return s.tractor.ImportTractorLayer(context.Background(), username, req)
	})
}

// Wait 等待后台任务结束
func (s *UploadService) Wait() {
	s.tasks.Wait()
}
