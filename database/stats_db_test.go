package database

import (
	"database/sql"
	"testing"

	"github.com/camden-git/facesysbackend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupStatsTestDB creates an in-memory SQLite database and returns both the
// GORM handle used for seeding and the raw handle the projections query
func setupStatsTestDB(t *testing.T) (*gorm.DB, *sql.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "Failed to create test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a second pool connection would see its own empty in-memory database
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, AutoMigrateModels(db), "Failed to migrate schema")
	return db, sqlDB
}

func seedProcessedImage(t *testing.T, db *gorm.DB, fileID string, modelID uint, processedAt, duration int64) uint {
	t.Helper()
	image := models.Image{
		FileID:             fileID,
		ModelID:            modelID,
		IsProcessed:        true,
		LastProcessedTime:  &processedAt,
		ProcessingDuration: &duration,
	}
	require.NoError(t, db.Create(&image).Error)
	return image.ID
}

func seedClusteredFace(t *testing.T, db *gorm.DB, imageID uint, userID, personName string) {
	t.Helper()
	face := models.Face{ImageID: imageID, Width: 100, Height: 100, Confidence: 0.95, CreationTime: 1}
	face.SetDescriptor([]float64{0.5})
	require.NoError(t, db.Create(&face).Error)

	person := models.Person{UserID: userID, Name: &personName, IsValid: true, IsVisible: true, LastGenerationTime: 1}
	require.NoError(t, db.Create(&person).Error)
	require.NoError(t, db.Create(&models.FaceCluster{FaceID: face.ID, PersonID: person.ID}).Error)
}

func TestAvgProcessingDuration(t *testing.T) {
	db, sqlDB := setupStatsTestDB(t)

	t.Run("NoData", func(t *testing.T) {
		avg, err := AvgProcessingDuration(sqlDB, 1, 0)
		require.NoError(t, err)
		assert.Nil(t, avg, "no matching image means no average")
	})

	seedProcessedImage(t, db, "a.jpg", 1, 1000, 100)
	seedProcessedImage(t, db, "b.jpg", 1, 2000, 300)
	seedProcessedImage(t, db, "old.jpg", 1, 10, 9999)
	seedProcessedImage(t, db, "other.jpg", 2, 1500, 9999)

	t.Run("SinceCutoff", func(t *testing.T) {
		avg, err := AvgProcessingDuration(sqlDB, 1, 500)
		require.NoError(t, err)
		require.NotNil(t, avg)
		assert.InDelta(t, 200.0, *avg, 0.001, "cutoff and model filter apply")
	})
}

func TestCountImagesFromPerson(t *testing.T) {
	db, sqlDB := setupStatsTestDB(t)

	img1 := seedProcessedImage(t, db, "a.jpg", 1, 1000, 100)
	img2 := seedProcessedImage(t, db, "b.jpg", 1, 1000, 100)
	seedClusteredFace(t, db, img1, "u1", "alice")
	seedClusteredFace(t, db, img2, "u1", "alice")
	seedClusteredFace(t, db, img2, "u1", "bob")
	seedClusteredFace(t, db, img1, "u2", "alice")

	count, err := CountImagesFromPerson(sqlDB, "u1", 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = CountImagesFromPerson(sqlDB, "u1", 1, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = CountImagesFromPerson(sqlDB, "u1", 1, "nobody")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFindImageIDsFromPerson(t *testing.T) {
	db, sqlDB := setupStatsTestDB(t)

	img1 := seedProcessedImage(t, db, "a.jpg", 1, 1000, 100)
	img2 := seedProcessedImage(t, db, "b.jpg", 1, 1000, 100)
	seedClusteredFace(t, db, img2, "u1", "alice")
	seedClusteredFace(t, db, img1, "u1", "alice")

	ids, err := FindImageIDsFromPerson(sqlDB, "u1", 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint{img1, img2}, ids, "results come back in image ID order")

	ids, err = FindImageIDsFromPerson(sqlDB, "u1", 1, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
