package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/facesysbackend/models"
	"gorm.io/gorm"
)

// descriptorBatchSize is the number of face IDs fetched per IN-clause page,
// kept below backend parameter-count limits.
const descriptorBatchSize = 1000

// FaceDescriptor pairs a face ID with its decoded embedding vector.
type FaceDescriptor struct {
	FaceID     uint
	Descriptor []float64
}

// FaceRepository handles database operations for Face entities
type FaceRepository struct {
	DB *gorm.DB
}

// NewFaceRepository creates a new instance of FaceRepository
func NewFaceRepository(db *gorm.DB) *FaceRepository {
	return &FaceRepository{DB: db}
}

// Create creates a new face record. When personID is given, the membership
// edge is created in the same transaction so the two writes commit or roll
// back together.
func (r *FaceRepository) Create(face *models.Face, personID *uint) error {
	if face.CreationTime == 0 {
		face.CreationTime = time.Now().Unix()
	}

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(face).Error; err != nil {
			return err
		}
		if personID != nil {
			edge := models.FaceCluster{FaceID: face.ID, PersonID: *personID}
			if err := tx.Create(&edge).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create face for image %d: %w", face.ImageID, err)
	}
	return nil
}

// GetByID retrieves a face by its ID, or nil when no such face exists.
func (r *FaceRepository) GetByID(id uint) (*models.Face, error) {
	var face models.Face
	err := r.DB.First(&face, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get face by ID %d: %w", id, err)
	}
	return &face, nil
}

// ListByImage retrieves all faces of one image, independent of cluster or
// model filtering.
func (r *FaceRepository) ListByImage(imageID uint) ([]models.Face, error) {
	var faces []models.Face
	err := r.DB.Where("image_id = ?", imageID).Order("id ASC").Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list faces for image %d: %w", imageID, err)
	}
	return faces, nil
}

// DeleteByImage deletes all faces of an image together with their membership
// edges, used before re-insertion on reprocessing.
func (r *FaceRepository) DeleteByImage(imageID uint) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		return deleteFacesOfImage(tx, imageID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete faces for image %d: %w", imageID, err)
	}
	return nil
}

// deleteFacesOfImage removes the faces of an image and their cluster edges
// within the caller's transaction.
func deleteFacesOfImage(tx *gorm.DB, imageID uint) error {
	var faceIDs []uint
	if err := tx.Model(&models.Face{}).Where("image_id = ?", imageID).Pluck("id", &faceIDs).Error; err != nil {
		return err
	}
	if len(faceIDs) > 0 {
		if err := tx.Where("face_id IN ?", faceIDs).Delete(&models.FaceCluster{}).Error; err != nil {
			return err
		}
	}
	return tx.Where("image_id = ?", imageID).Delete(&models.Face{}).Error
}

// userModelFaces scopes face queries to one user and model.
func (r *FaceRepository) userModelFaces(userID string, modelID uint) *gorm.DB {
	return r.DB.Model(&models.Face{}).
		Joins("JOIN images ON images.id = faces.image_id").
		Joins("JOIN image_users ON image_users.image_id = images.id").
		Where("image_users.user_id = ? AND images.model_id = ?", userID, modelID)
}

// GetGroupableFaces returns the faces of a user+model that pass the size and
// confidence thresholds and are not manually excluded, ordered by face ID for
// determinism.
func (r *FaceRepository) GetGroupableFaces(userID string, modelID uint, minSize int, minConfidence float64) ([]models.Face, error) {
	var faces []models.Face
	err := r.userModelFaces(userID, modelID).
		Where("faces.width >= ? AND faces.height >= ?", minSize, minSize).
		Where("faces.confidence >= ?", minConfidence).
		Where("(faces.is_groupable IS NULL OR faces.is_groupable = ?)", true).
		Order("faces.id ASC").
		Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get groupable faces for user %s model %d: %w", userID, modelID, err)
	}
	return faces, nil
}

// GetNonGroupableFaces returns the faces of a user+model that fail at least
// one groupability criterion.
func (r *FaceRepository) GetNonGroupableFaces(userID string, modelID uint, minSize int, minConfidence float64) ([]models.Face, error) {
	var faces []models.Face
	err := r.userModelFaces(userID, modelID).
		Where("(faces.width < ? OR faces.height < ? OR faces.confidence < ? OR faces.is_groupable = ?)",
			minSize, minSize, minConfidence, false).
		Order("faces.id ASC").
		Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get non-groupable faces for user %s model %d: %w", userID, modelID, err)
	}
	return faces, nil
}

// CountFaces counts the faces of a user+model, optionally restricted to
// faces with no cluster membership within that user's clustering.
func (r *FaceRepository) CountFaces(userID string, modelID uint, onlyWithoutCluster bool) (int64, error) {
	query := r.userModelFaces(userID, modelID)
	if onlyWithoutCluster {
		query = query.Where(
			"faces.id NOT IN (?)",
			r.DB.Model(&models.FaceCluster{}).
				Select("face_clusters.face_id").
				Joins("JOIN persons ON persons.id = face_clusters.person_id").
				Where("persons.user_id = ?", userID),
		)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count faces for user %s model %d: %w", userID, modelID, err)
	}
	return count, nil
}

// FindDescriptorsBatched retrieves the descriptors of the given faces,
// paging the IN clause internally. Result order is not significant; every
// requested ID that exists appears exactly once.
func (r *FaceRepository) FindDescriptorsBatched(faceIDs []uint) ([]FaceDescriptor, error) {
	results := make([]FaceDescriptor, 0, len(faceIDs))

	for start := 0; start < len(faceIDs); start += descriptorBatchSize {
		end := start + descriptorBatchSize
		if end > len(faceIDs) {
			end = len(faceIDs)
		}

		var page []models.Face
		err := r.DB.Select("id", "descriptor").Where("id IN ?", faceIDs[start:end]).Find(&page).Error
		if err != nil {
			return nil, fmt.Errorf("failed to fetch descriptor batch: %w", err)
		}
		for i := range page {
			results = append(results, FaceDescriptor{
				FaceID:     page[i].ID,
				Descriptor: page[i].GetDescriptor(),
			})
		}
	}

	return results, nil
}

// GetOldestUnclustered returns the oldest face of a user+model that has no
// cluster membership, or nil when every face is clustered.
func (r *FaceRepository) GetOldestUnclustered(userID string, modelID uint) (*models.Face, error) {
	var face models.Face
	err := r.userModelFaces(userID, modelID).
		Where(
			"faces.id NOT IN (?)",
			r.DB.Model(&models.FaceCluster{}).
				Select("face_clusters.face_id").
				Joins("JOIN persons ON persons.id = face_clusters.person_id").
				Where("persons.user_id = ?", userID),
		).
		Order("faces.creation_time ASC, faces.id ASC").
		First(&face).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get oldest unclustered face for user %s model %d: %w", userID, modelID, err)
	}
	return &face, nil
}
