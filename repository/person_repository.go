package repository

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/camden-git/facesysbackend/models"
	"github.com/facette/natsort"
	"gorm.io/gorm"
)

// PersonRepository handles database operations for Person clusters and the
// face-cluster membership edges
type PersonRepository struct {
	DB *gorm.DB
}

// NewPersonRepository creates a new instance of PersonRepository
func NewPersonRepository(db *gorm.DB) *PersonRepository {
	return &PersonRepository{DB: db}
}

// Create creates a new person cluster record in the database
func (r *PersonRepository) Create(person *models.Person) error {
	if person.LastGenerationTime == 0 {
		person.LastGenerationTime = time.Now().Unix()
	}

	err := r.DB.Create(person).Error
	if err != nil {
		return fmt.Errorf("failed to create person for user %s: %w", person.UserID, err)
	}
	return nil
}

// GetByID retrieves a person by ID, or nil when no such person exists.
func (r *PersonRepository) GetByID(id uint) (*models.Person, error) {
	var person models.Person
	err := r.DB.First(&person, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get person by ID %d: %w", id, err)
	}
	return &person, nil
}

// Update persists the mutable person fields (name, validity, visibility,
// linked user).
func (r *PersonRepository) Update(person *models.Person) error {
	updates := map[string]interface{}{
		"name":           person.Name,
		"is_valid":       person.IsValid,
		"is_visible":     person.IsVisible,
		"linked_user_id": person.LinkedUserID,
	}
	result := r.DB.Model(&models.Person{}).Where("id = ?", person.ID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update person ID %d: %w", person.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a person and any membership edges still referencing it
func (r *PersonRepository) Delete(id uint) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("person_id = ?", id).Delete(&models.FaceCluster{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Person{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete person ID %d: %w", id, err)
	}
	return nil
}

// InvalidatePersons marks every cluster of a user that has at least one face
// belonging to the image as no longer valid. Called whenever an image is
// reprocessed, since its faces may have changed.
func (r *PersonRepository) InvalidatePersons(imageID uint, userID string) error {
	affected := r.DB.Model(&models.FaceCluster{}).
		Select("face_clusters.person_id").
		Joins("JOIN faces ON faces.id = face_clusters.face_id").
		Where("faces.image_id = ?", imageID)

	err := r.DB.Model(&models.Person{}).
		Where("user_id = ?", userID).
		Where("id IN (?)", affected).
		Update("is_valid", false).Error
	if err != nil {
		return fmt.Errorf("failed to invalidate persons for image %d user %s: %w", imageID, userID, err)
	}
	return nil
}

// userModelPersons scopes person queries to clusters of one user that own at
// least one face processed under the given model.
func (r *PersonRepository) userModelPersons(userID string, modelID uint) *gorm.DB {
	return r.DB.Model(&models.Person{}).
		Joins("JOIN face_clusters ON face_clusters.person_id = persons.id").
		Joins("JOIN faces ON faces.id = face_clusters.face_id").
		Joins("JOIN images ON images.id = faces.image_id").
		Where("persons.user_id = ? AND images.model_id = ?", userID, modelID)
}

// CountClusters counts the clusters of a user+model, optionally only the
// invalid ones.
func (r *PersonRepository) CountClusters(userID string, modelID uint, onlyInvalid bool) (int64, error) {
	query := r.userModelPersons(userID, modelID)
	if onlyInvalid {
		query = query.Where("persons.is_valid = ?", false)
	}

	var count int64
	if err := query.Distinct("persons.id").Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count clusters for user %s model %d: %w", userID, modelID, err)
	}
	return count, nil
}

// CountPersons counts the distinct non-null names among a user's clusters for
// a model. Several clusters can share one name, so this counts confirmed
// identities rather than raw clusters.
func (r *PersonRepository) CountPersons(userID string, modelID uint) (int64, error) {
	var count int64
	err := r.userModelPersons(userID, modelID).
		Where("persons.name IS NOT NULL").
		Distinct("persons.name").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count persons for user %s model %d: %w", userID, modelID, err)
	}
	return count, nil
}

// FindUnassigned returns a user's visible clusters that have no name yet.
func (r *PersonRepository) FindUnassigned(userID string) ([]models.Person, error) {
	var persons []models.Person
	err := r.DB.Where("user_id = ? AND name IS NULL AND is_visible = ?", userID, true).
		Order("id ASC").Find(&persons).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find unassigned clusters for user %s: %w", userID, err)
	}
	return persons, nil
}

// FindIgnored returns a user's hidden, unnamed clusters.
func (r *PersonRepository) FindIgnored(userID string) ([]models.Person, error) {
	var persons []models.Person
	err := r.DB.Where("user_id = ? AND name IS NULL AND is_visible = ?", userID, false).
		Order("id ASC").Find(&persons).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find ignored clusters for user %s: %w", userID, err)
	}
	return persons, nil
}

// ListNamed returns a user's named clusters in natural name order, so
// "Guest 2" sorts before "Guest 10".
func (r *PersonRepository) ListNamed(userID string) ([]models.Person, error) {
	var persons []models.Person
	err := r.DB.Where("user_id = ? AND name IS NOT NULL", userID).Find(&persons).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list named clusters for user %s: %w", userID, err)
	}

	sort.SliceStable(persons, func(i, j int) bool {
		return natsort.Compare(*persons[i].Name, *persons[j].Name)
	})
	return persons, nil
}

// SetVisibility updates a cluster's visibility. Hiding a cluster also clears
// its name, since hiding un-confirms it.
func (r *PersonRepository) SetVisibility(personID uint, visible bool) error {
	updates := map[string]interface{}{"is_visible": visible}
	if !visible {
		updates["name"] = gorm.Expr("NULL")
	}

	result := r.DB.Model(&models.Person{}).Where("id = ?", personID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to set visibility of person ID %d: %w", personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetLinkedUser maps a cluster to a platform identity, or clears the mapping.
func (r *PersonRepository) SetLinkedUser(personID uint, linkedUserID *string) error {
	result := r.DB.Model(&models.Person{}).Where("id = ?", personID).Update("linked_user_id", linkedUserID)
	if result.Error != nil {
		return fmt.Errorf("failed to set linked user of person ID %d: %w", personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DetachFace permanently excludes a face from automatic clustering and
// separates it from its cluster. When the cluster holds only this face the
// cluster is renamed in place; otherwise a new cluster with the given name is
// created and the face's membership moves there. The resulting cluster is
// returned.
func (r *PersonRepository) DetachFace(personID, faceID uint, newName *string) (*models.Person, error) {
	var resulting models.Person

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var person models.Person
		if err := tx.First(&person, personID).Error; err != nil {
			return err
		}

		notGroupable := false
		result := tx.Model(&models.Face{}).Where("id = ?", faceID).Update("is_groupable", &notGroupable)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var members int64
		if err := tx.Model(&models.FaceCluster{}).Where("person_id = ?", personID).Count(&members).Error; err != nil {
			return err
		}

		if members == 1 {
			// the face is alone in its cluster; rename in place
			if err := tx.Model(&models.Person{}).Where("id = ?", personID).Update("name", newName).Error; err != nil {
				return err
			}
			return tx.First(&resulting, personID).Error
		}

		resulting = models.Person{
			UserID:             person.UserID,
			Name:               newName,
			IsValid:            true,
			IsVisible:          true,
			LastGenerationTime: time.Now().Unix(),
		}
		if err := tx.Create(&resulting).Error; err != nil {
			return err
		}
		return tx.Model(&models.FaceCluster{}).
			Where("face_id = ? AND person_id = ?", faceID, personID).
			Update("person_id", resulting.ID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detach face %d from person %d: %w", faceID, personID, err)
	}
	return &resulting, nil
}

// RemoveIfEmpty deletes the cluster when it has no remaining membership
func (r *PersonRepository) RemoveIfEmpty(personID uint) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var members int64
		if err := tx.Model(&models.FaceCluster{}).Where("person_id = ?", personID).Count(&members).Error; err != nil {
			return err
		}
		if members > 0 {
			return nil
		}
		return tx.Delete(&models.Person{}, personID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to remove person ID %d if empty: %w", personID, err)
	}
	return nil
}

// DeleteOrphaned garbage-collects every cluster of a user that has no face
// membership left, returning the number of clusters removed.
func (r *PersonRepository) DeleteOrphaned(userID string) (int64, error) {
	result := r.DB.Where("user_id = ?", userID).
		Where("id NOT IN (?)", r.DB.Model(&models.FaceCluster{}).Select("face_clusters.person_id")).
		Delete(&models.Person{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete orphaned clusters for user %s: %w", userID, result.Error)
	}
	return result.RowsAffected, nil
}

// GetCurrentClusters loads the persisted clustering of a user+model as a
// cluster-to-faces map, the engine's "current" input.
func (r *PersonRepository) GetCurrentClusters(userID string, modelID uint) (map[uint][]uint, error) {
	type edge struct {
		PersonID uint
		FaceID   uint
	}

	var edges []edge
	err := r.DB.Model(&models.FaceCluster{}).
		Select("face_clusters.person_id, face_clusters.face_id").
		Joins("JOIN persons ON persons.id = face_clusters.person_id").
		Joins("JOIN faces ON faces.id = face_clusters.face_id").
		Joins("JOIN images ON images.id = faces.image_id").
		Where("persons.user_id = ? AND images.model_id = ?", userID, modelID).
		Order("face_clusters.person_id ASC, face_clusters.face_id ASC").
		Scan(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load current clusters for user %s model %d: %w", userID, modelID, err)
	}

	clusters := make(map[uint][]uint)
	for _, e := range edges {
		clusters[e.PersonID] = append(clusters[e.PersonID], e.FaceID)
	}
	return clusters, nil
}
