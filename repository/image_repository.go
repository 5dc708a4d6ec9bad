package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/facesysbackend/models"
	"gorm.io/gorm"
)

// NewFace is a face produced by one processing pass, optionally carrying a
// cluster assignment that must be persisted together with the face row.
type NewFace struct {
	Face     models.Face
	PersonID *uint
}

// ImageRepository handles database operations for Image entities
type ImageRepository struct {
	DB *gorm.DB
}

// NewImageRepository creates a new instance of ImageRepository
func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{DB: db}
}

// Insert stores an image record for the calling user. When an Image already
// exists for the (file, model) pair its row is reused and only the
// user-association edge is added, so a file shared by several users maps to
// one row. The resolved ID is written back into image.
func (r *ImageRepository) Insert(image *models.Image, userID string) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Where(models.Image{FileID: image.FileID, ModelID: image.ModelID}).FirstOrCreate(image)
		if result.Error != nil {
			return result.Error
		}

		assoc := models.ImageUser{ImageID: image.ID, UserID: userID}
		return tx.Where(models.ImageUser{ImageID: image.ID, UserID: userID}).FirstOrCreate(&assoc).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert image for file %s model %d: %w", image.FileID, image.ModelID, err)
	}
	return nil
}

// GetByID retrieves an image by its ID, or nil when no such image exists.
func (r *ImageRepository) GetByID(id uint) (*models.Image, error) {
	var image models.Image
	err := r.DB.First(&image, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get image by ID %d: %w", id, err)
	}
	return &image, nil
}

// GetByFileAndModel retrieves the image for a (file, model) pair, or nil.
func (r *ImageRepository) GetByFileAndModel(fileID string, modelID uint) (*models.Image, error) {
	var image models.Image
	err := r.DB.Where("file_id = ? AND model_id = ?", fileID, modelID).First(&image).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get image for file %s model %d: %w", fileID, modelID, err)
	}
	return &image, nil
}

// ImageProcessed records the outcome of one processing pass in a single
// transaction: the image row is marked processed (with duration and
// truncated error text), all previously stored faces are wiped, and the new
// face list is inserted. Everything rolls back on any failure.
func (r *ImageRepository) ImageProcessed(imageID uint, faces []NewFace, durationMillis int64, taskErr error) error {
	now := time.Now().Unix()
	var errStr *string
	if taskErr != nil {
		s := taskErr.Error()
		if len(s) > models.MaxImageErrorLength {
			s = s[:models.MaxImageErrorLength]
		}
		errStr = &s
		faces = nil // do not store faces from a failed pass
	}

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"is_processed":        true,
			"error":               errStr,
			"last_processed_time": now,
			"processing_duration": durationMillis,
		}
		result := tx.Model(&models.Image{}).Where("id = ?", imageID).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := deleteFacesOfImage(tx, imageID); err != nil {
			return err
		}

		for i := range faces {
			faces[i].Face.ImageID = imageID
			if faces[i].Face.CreationTime == 0 {
				faces[i].Face.CreationTime = now
			}
			if err := tx.Create(&faces[i].Face).Error; err != nil {
				return err
			}
			if faces[i].PersonID != nil {
				edge := models.FaceCluster{FaceID: faces[i].Face.ID, PersonID: *faces[i].PersonID}
				if err := tx.Create(&edge).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record processing result for image %d: %w", imageID, err)
	}
	return nil
}

// OtherUserStillHasConnection reports whether more than one user-association
// row references the image, used to decide whether removing one user's
// association should cascade-delete the image.
func (r *ImageRepository) OtherUserStillHasConnection(imageID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&models.ImageUser{}).Where("image_id = ?", imageID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count user associations for image %d: %w", imageID, err)
	}
	return count > 1, nil
}

// RemoveUserAssociation deletes the calling user's association edge. When no
// association remains, the image and its faces are removed as well.
func (r *ImageRepository) RemoveUserAssociation(imageID uint, userID string) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ? AND user_id = ?", imageID, userID).Delete(&models.ImageUser{}).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&models.ImageUser{}).Where("image_id = ?", imageID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		if err := deleteFacesOfImage(tx, imageID); err != nil {
			return err
		}
		return tx.Delete(&models.Image{}, imageID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to remove association of user %s from image %d: %w", userID, imageID, err)
	}
	return nil
}

// FindImagesWithoutFaces returns images not yet processed for a model,
// scoped to one user when userID is given, else across all users.
func (r *ImageRepository) FindImagesWithoutFaces(userID *string, modelID uint) ([]models.Image, error) {
	query := r.DB.Model(&models.Image{}).Where("images.model_id = ? AND images.is_processed = ?", modelID, false)
	if userID != nil {
		query = query.
			Joins("JOIN image_users ON image_users.image_id = images.id").
			Where("image_users.user_id = ?", *userID)
	}

	var images []models.Image
	if err := query.Order("images.id ASC").Find(&images).Error; err != nil {
		return nil, fmt.Errorf("failed to find unprocessed images for model %d: %w", modelID, err)
	}
	return images, nil
}

// CountImages counts all images known for a model.
func (r *ImageRepository) CountImages(modelID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&models.Image{}).Where("model_id = ?", modelID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count images for model %d: %w", modelID, err)
	}
	return count, nil
}

// CountProcessedImages counts the processed images of a model.
func (r *ImageRepository) CountProcessedImages(modelID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&models.Image{}).Where("model_id = ? AND is_processed = ?", modelID, true).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count processed images for model %d: %w", modelID, err)
	}
	return count, nil
}

// CountUserImages counts the images a user has an association to for a model.
func (r *ImageRepository) CountUserImages(userID string, modelID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&models.Image{}).
		Joins("JOIN image_users ON image_users.image_id = images.id").
		Where("image_users.user_id = ? AND images.model_id = ?", userID, modelID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count images of user %s for model %d: %w", userID, modelID, err)
	}
	return count, nil
}

// ListUsers returns the distinct users holding at least one image
// association for a model, ordered for a stable sweep sequence.
func (r *ImageRepository) ListUsers(modelID uint) ([]string, error) {
	var users []string
	err := r.DB.Model(&models.ImageUser{}).
		Joins("JOIN images ON images.id = image_users.image_id").
		Where("images.model_id = ?", modelID).
		Distinct().
		Order("image_users.user_id ASC").
		Pluck("image_users.user_id", &users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users for model %d: %w", modelID, err)
	}
	return users, nil
}

// ResetImage clears the processing state of a (file, model) pair so the next
// pass picks the image up again.
func (r *ImageRepository) ResetImage(fileID string, modelID uint) error {
	updates := map[string]interface{}{
		"is_processed":        false,
		"error":               gorm.Expr("NULL"),
		"last_processed_time": gorm.Expr("NULL"),
		"processing_duration": gorm.Expr("NULL"),
	}
	result := r.DB.Model(&models.Image{}).Where("file_id = ? AND model_id = ?", fileID, modelID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to reset image for file %s model %d: %w", fileID, modelID, result.Error)
	}
	return nil
}

// DeleteUserImages removes all of a user's image associations and
// garbage-collects any image left without associations.
func (r *ImageRepository) DeleteUserImages(userID string) error {
	return r.deleteUserAssociations(userID, nil)
}

// DeleteUserModel removes a user's image associations for one model and
// garbage-collects any image left without associations.
func (r *ImageRepository) DeleteUserModel(userID string, modelID uint) error {
	return r.deleteUserAssociations(userID, &modelID)
}

func (r *ImageRepository) deleteUserAssociations(userID string, modelID *uint) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.ImageUser{}).
			Joins("JOIN images ON images.id = image_users.image_id").
			Where("image_users.user_id = ?", userID)
		if modelID != nil {
			query = query.Where("images.model_id = ?", *modelID)
		}

		var imageIDs []uint
		if err := query.Pluck("image_users.image_id", &imageIDs).Error; err != nil {
			return err
		}
		if len(imageIDs) == 0 {
			return nil
		}

		if err := tx.Where("user_id = ? AND image_id IN ?", userID, imageIDs).Delete(&models.ImageUser{}).Error; err != nil {
			return err
		}

		for _, imageID := range imageIDs {
			var remaining int64
			if err := tx.Model(&models.ImageUser{}).Where("image_id = ?", imageID).Count(&remaining).Error; err != nil {
				return err
			}
			if remaining > 0 {
				continue
			}
			if err := deleteFacesOfImage(tx, imageID); err != nil {
				return err
			}
			if err := tx.Delete(&models.Image{}, imageID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete image associations of user %s: %w", userID, err)
	}
	return nil
}
