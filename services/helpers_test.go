package services

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gitee.com/LJ_COOL/go-shp"
	"github.com/GrainArc/RasterImport/config"
	"github.com/GrainArc/RasterImport/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.InitDB(&config.Config{
		DBType: "sqlite",
		SQLite: filepath.Join(t.TempDir(), "raster.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seed(t *testing.T, db *gorm.DB) (*models.User, *models.Experiment) {
	t.Helper()
	user := &models.User{ID: 1, Username: "alice"}
	require.NoError(t, db.Create(user).Error)
	exp := &models.Experiment{ID: 7, Expcode: "EXP7", Title: "Wheat 2024"}
	require.NoError(t, db.Create(exp).Error)
	return user, exp
}

// recordingNotifier 记录推送，并在收到导入阶段消息时读取当时的持久化状态
type recordingNotifier struct {
	mu       sync.Mutex
	repo     *RasterRepository
	recordID int64
	messages []interface{}
	statuses []models.RasterStatus
}

func (n *recordingNotifier) Notify(username string, v interface{}) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, v)
	if _, ok := v.(ImportStageMessage); ok && n.repo != nil && n.recordID != 0 {
		if st, err := n.repo.Status(n.recordID); err == nil {
			n.statuses = append(n.statuses, st)
		}
	}
	return true
}

func (n *recordingNotifier) stages() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []int
	for _, m := range n.messages {
		if s, ok := m.(ImportStageMessage); ok {
			out = append(out, s.ImportStage)
		}
	}
	return out
}

func (n *recordingNotifier) statusMessages() []StatusMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []StatusMessage
	for _, m := range n.messages {
		if s, ok := m.(StatusMessage); ok {
			out = append(out, s)
		}
	}
	return out
}

func (n *recordingNotifier) tractorMessages() []TractorLayerMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []TractorLayerMessage
	for _, m := range n.messages {
		if s, ok := m.(TractorLayerMessage); ok {
			out = append(out, s)
		}
	}
	return out
}

// fakeImportClient GeoServer 导入接口的替身
type fakeImportClient struct {
	mu       sync.Mutex
	calls    []string
	files    []string
	entries  []string
	failStep string
	block    chan struct{}
}

var errFakeService = errors.New("geoserver unavailable")

func (f *fakeImportClient) step(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	fail := f.failStep == name
	block := f.block
	f.mu.Unlock()
	if block != nil && name == "run" {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errFakeService
	}
	return nil
}

func (f *fakeImportClient) CreateImport(ctx context.Context) (int64, error) {
	return 42, f.step(ctx, "create")
}

func (f *fakeImportClient) UploadTask(ctx context.Context, importID int64, filePath string) (int64, error) {
	var names []string
	if zr, err := zip.OpenReader(filePath); err == nil {
		for _, zf := range zr.File {
			names = append(names, zf.Name)
		}
		zr.Close()
	}
	f.mu.Lock()
	f.files = append(f.files, filePath)
	f.entries = names
	f.mu.Unlock()
	return 1, f.step(ctx, "task")
}

func (f *fakeImportClient) RunImport(ctx context.Context, importID int64) error {
	return f.step(ctx, "run")
}

func (f *fakeImportClient) LayerName(ctx context.Context, importID int64) (string, error) {
	if err := f.step(ctx, "layer"); err != nil {
		return "", err
	}
	return "exp7_layer", nil
}

func (f *fakeImportClient) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func writeZip(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// shapefileEntries 生成一个点图层 plot.shp/.shx/.dbf/.prj 的文件内容
func shapefileEntries(t *testing.T) map[string][]byte {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plot.shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	w.SetFields([]shp.Field{shp.StringField("IMAGE", 50), shp.StringField("TITLE", 50)})
	w.Write(&shp.Point{X: 8.5, Y: 50.1})
	require.NoError(t, w.WriteAttribute(0, 0, "photo1.jpg"))
	require.NoError(t, w.WriteAttribute(0, 1, "Plot 1"))
	w.Write(&shp.Point{X: 8.6, Y: 50.2})
	require.NoError(t, w.WriteAttribute(1, 0, "photo2.jpg"))
	require.NoError(t, w.WriteAttribute(1, 1, "Plot 2"))
	w.Close()

	entries := map[string][]byte{
		"plot.prj": []byte(`GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.0174532925199433]]`),
	}
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		data, err := os.ReadFile(filepath.Join(dir, "plot"+ext))
		require.NoError(t, err)
		entries["plot"+ext] = data
	}
	return entries
}

type pipeline struct {
	db       *gorm.DB
	repo     *RasterRepository
	store    *UploadStore
	client   *fakeImportClient
	notifier *recordingNotifier
	importer *ImporterService
	tractor  *TractorService
	uploads  *UploadService
	user     *models.User
	exp      *models.Experiment
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	db := newTestDB(t)
	user, exp := seed(t, db)
	repo := NewRasterRepository(db)
	store := NewUploadStore(filepath.Join(t.TempDir(), "upload"))
	client := &fakeImportClient{}
	notifier := &recordingNotifier{repo: repo}
	importer := NewImporterService(repo, store, client, notifier)
	tractor := NewTractorService(repo, store, importer, notifier)
	uploads := NewUploadService(repo, store, importer, tractor, notifier)
	return &pipeline{db, repo, store, client, notifier, importer, tractor, uploads, user, exp}
}

func (p *pipeline) startFile(t *testing.T, req StartFileRequest) *Upload {
	t.Helper()
	u, err := p.uploads.StartFile(p.user, req)
	require.NoError(t, err)
	return u
}

func copterRequest() StartFileRequest {
	return StartFileRequest{
		Experiment: ExperimentRef{ID: 7, Expcode: "EXP7"},
		Category:   models.CategoryCopter,
		Date:       "2024-06-01",
		Sensor:     "RGB",
		Format:     "TIFF",
		Product:    "ortho",
		AddAsLayer: true,
	}
}

func tractorRequest(day string) StartFileRequest {
	return StartFileRequest{
		Experiment: ExperimentRef{ID: 7, Expcode: "EXP7"},
		Category:   models.CategoryTractor,
		Date:       "2024-06-01",
		Day:        day,
		Sensor:     "RGB",
		Format:     "JPG",
		Product:    "images",
	}
}
