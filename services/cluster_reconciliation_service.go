package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/facesysbackend/models"
	"gorm.io/gorm"
)

// ClusterReconciliationService merges a freshly computed clustering proposal
// into the persisted cluster state of one user, preserving cluster identity
// (IDs, names, user-assigned labels) wherever the proposal agrees with the
// stored clustering.
type ClusterReconciliationService struct {
	DB *gorm.DB

	// midTransactionHook, when set, runs after existing clusters have been
	// removed or updated and before new clusters are created. Tests use it to
	// inject failures and verify rollback.
	midTransactionHook func(tx *gorm.DB) error
}

// NewClusterReconciliationService creates a new reconciliation service
func NewClusterReconciliationService(db *gorm.DB) *ClusterReconciliationService {
	return &ClusterReconciliationService{DB: db}
}

// Reconcile applies proposed on top of current for one user, as a single
// transaction. current maps persisted cluster IDs to their face members;
// proposed maps proposal tokens to face members, where a token equal to an
// existing cluster ID signals that the proposal considers it the same group.
//
// After a successful return the persisted membership matches proposed
// exactly: unchanged clusters keep their row untouched apart from being
// marked valid, clusters missing from the proposal are deleted, clusters
// with a changed member set are updated in place, and fresh tokens become
// new unnamed clusters. Faces that merely moved between clusters are never
// left unassigned. Any error rolls the whole operation back.
func (s *ClusterReconciliationService) Reconcile(userID string, current, proposed map[uint][]uint) error {
	// destination lookup for every face mentioned in the proposal, computed
	// before anything is mutated so the moved-not-removed checks below do not
	// depend on processing order
	claimedBy := make(map[uint]uint)
	for token, faceIDs := range proposed {
		for _, faceID := range faceIDs {
			if prev, ok := claimedBy[faceID]; ok && prev != token {
				return fmt.Errorf("invalid proposal for user %s: face %d is claimed by clusters %d and %d", userID, faceID, prev, token)
			}
			claimedBy[faceID] = token
		}
	}

	now := time.Now().Unix()

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// clusters absent from the proposal are dismantled; their faces stay
		// attached only if some proposed cluster claims them further down
		for clusterID, oldFaceIDs := range current {
			if _, stillProposed := proposed[clusterID]; stillProposed {
				continue
			}
			for _, faceID := range oldFaceIDs {
				if _, moved := claimedBy[faceID]; moved {
					continue
				}
				if err := detachFace(tx, faceID, clusterID); err != nil {
					return err
				}
			}
			if err := tx.Where("person_id = ?", clusterID).Delete(&models.FaceCluster{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Person{}, clusterID).Error; err != nil {
				return err
			}
		}

		// clusters present in both are updated in place, with a fast path
		// that leaves membership rows untouched when nothing changed
		for clusterID, newFaceIDs := range proposed {
			oldFaceIDs, exists := current[clusterID]
			if !exists {
				continue
			}

			if sameFaceSet(oldFaceIDs, newFaceIDs) {
				if err := markValid(tx, clusterID, now); err != nil {
					return err
				}
				continue
			}

			newSet := make(map[uint]bool, len(newFaceIDs))
			for _, faceID := range newFaceIDs {
				newSet[faceID] = true
			}
			for _, faceID := range oldFaceIDs {
				if newSet[faceID] {
					continue
				}
				if _, moved := claimedBy[faceID]; moved {
					continue
				}
				if err := detachFace(tx, faceID, clusterID); err != nil {
					return err
				}
			}
			for _, faceID := range newFaceIDs {
				if err := attachFace(tx, userID, faceID, clusterID); err != nil {
					return err
				}
			}
			if err := markValid(tx, clusterID, now); err != nil {
				return err
			}
		}

		if s.midTransactionHook != nil {
			if err := s.midTransactionHook(tx); err != nil {
				return err
			}
		}

		// fresh tokens become brand-new unnamed clusters
		for token, newFaceIDs := range proposed {
			if _, exists := current[token]; exists {
				continue
			}
			person := models.Person{
				UserID:             userID,
				IsValid:            true,
				IsVisible:          true,
				LastGenerationTime: now,
			}
			if err := tx.Create(&person).Error; err != nil {
				return err
			}
			for _, faceID := range newFaceIDs {
				if err := attachFace(tx, userID, faceID, person.ID); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reconcile clusters for user %s: %w", userID, err)
	}
	return nil
}

// detachFace removes the membership edge between a face and a cluster
func detachFace(tx *gorm.DB, faceID, personID uint) error {
	return tx.Where("face_id = ? AND person_id = ?", faceID, personID).Delete(&models.FaceCluster{}).Error
}

// attachFace makes the face a member of the cluster. A face holds at most
// one membership edge within one user's cluster set, so an existing edge is
// moved rather than duplicated; attaching an already attached face is a
// no-op.
func attachFace(tx *gorm.DB, userID string, faceID, personID uint) error {
	var edge models.FaceCluster
	err := tx.Model(&models.FaceCluster{}).
		Select("face_clusters.*").
		Joins("JOIN persons ON persons.id = face_clusters.person_id").
		Where("face_clusters.face_id = ? AND persons.user_id = ?", faceID, userID).
		First(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&models.FaceCluster{FaceID: faceID, PersonID: personID}).Error
	}
	if err != nil {
		return err
	}
	if edge.PersonID == personID {
		return nil
	}
	return tx.Model(&models.FaceCluster{}).Where("id = ?", edge.ID).Update("person_id", personID).Error
}

// markValid confirms a cluster for this generation without touching its
// name, visibility, or linked user
func markValid(tx *gorm.DB, personID uint, generationTime int64) error {
	return tx.Model(&models.Person{}).Where("id = ?", personID).Updates(map[string]interface{}{
		"is_valid":             true,
		"last_generation_time": generationTime,
	}).Error
}

// sameFaceSet reports plain unordered-set equality of two face ID lists
func sameFaceSet(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uint]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			return false
		}
	}
	return true
}
