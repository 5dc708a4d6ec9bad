package repository

import (
	"errors"
	"strings"
	"testing"

	"github.com/camden-git/facesysbackend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageInsertSharedFile(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	first := models.Image{FileID: "a.jpg", ModelID: 1}
	require.NoError(t, repo.Insert(&first, "u1"))

	second := models.Image{FileID: "a.jpg", ModelID: 1}
	require.NoError(t, repo.Insert(&second, "u2"))
	assert.Equal(t, first.ID, second.ID, "same file and model reuse one row")

	// inserting again for the same user is a no-op
	require.NoError(t, repo.Insert(&second, "u2"))

	var images int64
	require.NoError(t, db.Model(&models.Image{}).Count(&images).Error)
	assert.Equal(t, int64(1), images)

	var assocs int64
	require.NoError(t, db.Model(&models.ImageUser{}).Where("image_id = ?", first.ID).Count(&assocs).Error)
	assert.Equal(t, int64(2), assocs)

	shared, err := repo.OtherUserStillHasConnection(first.ID)
	require.NoError(t, err)
	assert.True(t, shared)
}

func TestImageGetByFileAndModel(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	imageID := addImage(t, db, "a.jpg", 1, "u1")

	image, err := repo.GetByFileAndModel("a.jpg", 1)
	require.NoError(t, err)
	require.NotNil(t, image)
	assert.Equal(t, imageID, image.ID)

	image, err = repo.GetByFileAndModel("a.jpg", 2)
	require.NoError(t, err)
	assert.Nil(t, image)
}

func TestImageProcessedReplacesFaces(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	imageID := addImage(t, db, "a.jpg", 1, "u1")
	stale := addFace(t, db, imageID, 50, 50, 0.8, nil)
	addPerson(t, db, "u1", nil, stale)

	replacement := models.Face{Width: 90, Height: 90, Confidence: 0.97}
	replacement.SetDescriptor([]float64{1.5})
	require.NoError(t, repo.ImageProcessed(imageID, []NewFace{{Face: replacement}}, 250, nil))

	var image models.Image
	require.NoError(t, db.First(&image, imageID).Error)
	assert.True(t, image.IsProcessed)
	assert.Nil(t, image.Error)
	require.NotNil(t, image.LastProcessedTime)
	require.NotNil(t, image.ProcessingDuration)
	assert.Equal(t, int64(250), *image.ProcessingDuration)

	var faces []models.Face
	require.NoError(t, db.Where("image_id = ?", imageID).Find(&faces).Error)
	require.Len(t, faces, 1)
	assert.NotEqual(t, stale, faces[0].ID, "old faces are wiped before re-insert")
	assert.Equal(t, 90, faces[0].Width)

	var edges int64
	require.NoError(t, db.Model(&models.FaceCluster{}).Count(&edges).Error)
	assert.Zero(t, edges, "stale membership goes with the stale faces")
}

func TestImageProcessedWithError(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	imageID := addImage(t, db, "a.jpg", 1, "u1")

	face := models.Face{Width: 90, Height: 90, Confidence: 0.97}
	face.SetDescriptor([]float64{1.5})
	taskErr := errors.New(strings.Repeat("x", models.MaxImageErrorLength+100))

	require.NoError(t, repo.ImageProcessed(imageID, []NewFace{{Face: face}}, 10, taskErr))

	var image models.Image
	require.NoError(t, db.First(&image, imageID).Error)
	assert.True(t, image.IsProcessed, "a failed pass still counts as processed")
	require.NotNil(t, image.Error)
	assert.Len(t, *image.Error, models.MaxImageErrorLength, "stored error text is truncated")

	var faces int64
	require.NoError(t, db.Model(&models.Face{}).Count(&faces).Error)
	assert.Zero(t, faces, "faces from a failed pass are not stored")
}

func TestImageProcessedMissingImage(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	err := repo.ImageProcessed(9999, nil, 10, nil)
	require.Error(t, err)
}

func TestRemoveUserAssociation(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	imageID := addImage(t, db, "a.jpg", 1, "u1", "u2")
	addFace(t, db, imageID, 100, 100, 0.95, nil)

	require.NoError(t, repo.RemoveUserAssociation(imageID, "u1"))

	var image int64
	require.NoError(t, db.Model(&models.Image{}).Where("id = ?", imageID).Count(&image).Error)
	assert.Equal(t, int64(1), image, "image survives while u2 still references it")

	require.NoError(t, repo.RemoveUserAssociation(imageID, "u2"))

	require.NoError(t, db.Model(&models.Image{}).Where("id = ?", imageID).Count(&image).Error)
	assert.Zero(t, image, "last association removal cascades to the image")

	var faces int64
	require.NoError(t, db.Model(&models.Face{}).Count(&faces).Error)
	assert.Zero(t, faces)
}

func TestFindImagesWithoutFaces(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	pending := addImage(t, db, "a.jpg", 1, "u1")
	done := addImage(t, db, "b.jpg", 1, "u1")
	require.NoError(t, db.Model(&models.Image{}).Where("id = ?", done).Update("is_processed", true).Error)
	addImage(t, db, "c.jpg", 1, "u2")

	userID := "u1"
	images, err := repo.FindImagesWithoutFaces(&userID, 1)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, pending, images[0].ID)

	all, err := repo.FindImagesWithoutFaces(nil, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2, "nil user means every user's unprocessed images")
}

func TestImageCounts(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	addImage(t, db, "a.jpg", 1, "u1")
	done := addImage(t, db, "b.jpg", 1, "u1", "u2")
	require.NoError(t, db.Model(&models.Image{}).Where("id = ?", done).Update("is_processed", true).Error)

	total, err := repo.CountImages(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	processed, err := repo.CountProcessedImages(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processed)

	u2Images, err := repo.CountUserImages("u2", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u2Images)
}

func TestListUsers(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	addImage(t, db, "a.jpg", 1, "u2", "u1")
	addImage(t, db, "b.jpg", 1, "u1")
	addImage(t, db, "c.jpg", 2, "u3")

	users, err := repo.ListUsers(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, users, "distinct users of the model in stable order")
}

func TestResetImage(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	imageID := addImage(t, db, "a.jpg", 1, "u1")
	require.NoError(t, repo.ImageProcessed(imageID, nil, 10, errors.New("lens cap on")))

	require.NoError(t, repo.ResetImage("a.jpg", 1))

	var image models.Image
	require.NoError(t, db.First(&image, imageID).Error)
	assert.False(t, image.IsProcessed)
	assert.Nil(t, image.Error)
	assert.Nil(t, image.LastProcessedTime)
	assert.Nil(t, image.ProcessingDuration)
}

func TestDeleteUserImages(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	solo := addImage(t, db, "a.jpg", 1, "u1")
	shared := addImage(t, db, "b.jpg", 1, "u1", "u2")
	addFace(t, db, solo, 100, 100, 0.95, nil)

	require.NoError(t, repo.DeleteUserImages("u1"))

	var count int64
	require.NoError(t, db.Model(&models.Image{}).Where("id = ?", solo).Count(&count).Error)
	assert.Zero(t, count, "image referenced only by u1 is garbage-collected")

	require.NoError(t, db.Model(&models.Image{}).Where("id = ?", shared).Count(&count).Error)
	assert.Equal(t, int64(1), count, "shared image survives")

	require.NoError(t, db.Model(&models.ImageUser{}).Where("user_id = ?", "u1").Count(&count).Error)
	assert.Zero(t, count)

	var faces int64
	require.NoError(t, db.Model(&models.Face{}).Count(&faces).Error)
	assert.Zero(t, faces)
}

func TestDeleteUserModel(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewImageRepository(db)

	m1 := addImage(t, db, "a.jpg", 1, "u1")
	m2 := addImage(t, db, "a.jpg", 2, "u1")

	require.NoError(t, repo.DeleteUserModel("u1", 1))

	var count int64
	require.NoError(t, db.Model(&models.Image{}).Where("id = ?", m1).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, db.Model(&models.Image{}).Where("id = ?", m2).Count(&count).Error)
	assert.Equal(t, int64(1), count, "other models' records are untouched")
}
