package services

import (
	"testing"
	"time"

	"github.com/GrainArc/RasterImport/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(t *testing.T, repo *RasterRepository, category models.RasterCategory) *models.RasterRecord {
	t.Helper()
	rec := &models.RasterRecord{
		Type:         category,
		ExperimentID: 7,
		Timestamp:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Sensor:       "RGB",
		Format:       "TIFF",
		UserID:       1,
	}
	rec.SetFile("20240601", "EXP7_PhotosCopter_20240601_RGB_TIFF.zip")
	require.NoError(t, repo.Create(rec))
	return rec
}

func TestRepositoryFindByTriple(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	repo := NewRasterRepository(db)
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	rec, err := repo.FindByTriple(models.CategoryCopter, 7, ts)
	require.NoError(t, err)
	assert.Nil(t, rec)

	created := newRecord(t, repo, models.CategoryCopter)
	rec, err = repo.FindByTriple(models.CategoryCopter, 7, ts)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, created.ID, rec.ID)

	rec, err = repo.FindByTriple(models.CategoryTractor, 7, ts)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRepositoryCreateNeedsOwner(t *testing.T) {
	repo := NewRasterRepository(newTestDB(t))
	err := repo.Create(&models.RasterRecord{Type: models.CategoryCopter, Timestamp: time.Now()})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRepositoryTransition(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	repo := NewRasterRepository(db)
	rec := newRecord(t, repo, models.CategoryCopter)

	require.NoError(t, repo.Transition(rec, models.EventTransferStarted))
	assert.Equal(t, models.StatusUploading, rec.Status)

	err := repo.Transition(rec, models.EventTaskAccepted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.StatusUploading, rec.Status)

	// 内存中的状态过期时以数据库为准
	stale := *rec
	require.NoError(t, repo.Transition(rec, models.EventCanceled))
	err = repo.Transition(&stale, models.EventImportStarted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.StatusCanceled, stale.Status)
	require.NoError(t, repo.Transition(&stale, models.EventImportRetried), "canceled records may be retried")

	st, err := repo.Status(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusImportInit, st)
}

func TestRepositoryPublish(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	repo := NewRasterRepository(db)
	rec := newRecord(t, repo, models.CategoryCopter)
	for _, e := range []models.RasterEvent{models.EventTransferStarted, models.EventImportStarted, models.EventJobCreated, models.EventTaskAccepted} {
		require.NoError(t, repo.Transition(rec, e))
	}

	assert.ErrorIs(t, repo.Publish(rec, ""), ErrValidation)
	require.NoError(t, repo.Publish(rec, "exp7_layer"))

	got, err := repo.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusImportComplete, got.Status)
	assert.True(t, got.IsLayer)
	assert.Equal(t, "exp7_layer", got.GeoServerLayerName)
	require.NotNil(t, got.Experiment)
	assert.Equal(t, "EXP7", got.Experiment.Expcode)

	byName, err := repo.FindByLayerName("exp7_layer")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byName.ID)

	layers, err := repo.ImportLayers()
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, rec.ID, layers[0].ID)
}

func TestRepositoryMarkStored(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	repo := NewRasterRepository(db)
	rec := newRecord(t, repo, models.CategoryCopter)

	assert.ErrorIs(t, repo.MarkStored(rec), ErrInvalidTransition)
	require.NoError(t, repo.Transition(rec, models.EventTransferStarted))
	require.NoError(t, repo.MarkStored(rec))

	got, err := repo.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusImportComplete, got.Status)
	assert.False(t, got.IsLayer)

	layers, err := repo.ImportLayers()
	require.NoError(t, err)
	assert.Empty(t, layers)
}

func TestRepositoryGetMissing(t *testing.T) {
	repo := NewRasterRepository(newTestDB(t))
	_, err := repo.Get(99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindExperiment(99)
	assert.ErrorIs(t, err, ErrValidation)
}
