package services

import (
	"fmt"
	"log"

	"github.com/camden-git/facesysbackend/repository"
)

// ProposalGenerator computes a clustering proposal from face descriptors.
// The grouping algorithm itself lives outside this service; implementations
// receive the current clustering so they can reuse an existing cluster ID as
// the token for a group they are confident is the same person, and must use
// fresh, unused tokens otherwise.
type ProposalGenerator interface {
	GenerateProposal(current map[uint][]uint, descriptors []repository.FaceDescriptor) (map[uint][]uint, error)
}

// FaceAnalysisService runs a full clustering pass for one user and model:
// collect groupable faces, generate a proposal, reconcile it into persisted
// state, and garbage-collect clusters left empty.
type FaceAnalysisService struct {
	faceRepo   repository.FaceRepositoryInterface
	personRepo repository.PersonRepositoryInterface
	reconciler *ClusterReconciliationService
	proposer   ProposalGenerator

	minFaceSize   int
	minConfidence float64
}

// NewFaceAnalysisService creates a new face analysis service
func NewFaceAnalysisService(
	faceRepo repository.FaceRepositoryInterface,
	personRepo repository.PersonRepositoryInterface,
	reconciler *ClusterReconciliationService,
	proposer ProposalGenerator,
	minFaceSize int,
	minConfidence float64,
) *FaceAnalysisService {
	return &FaceAnalysisService{
		faceRepo:      faceRepo,
		personRepo:    personRepo,
		reconciler:    reconciler,
		proposer:      proposer,
		minFaceSize:   minFaceSize,
		minConfidence: minConfidence,
	}
}

// NeedsClustering reports whether a user+model has work for a clustering
// pass: at least one cluster invalidated by reprocessing, or at least one
// groupable face with no cluster yet.
func (s *FaceAnalysisService) NeedsClustering(userID string, modelID uint) (bool, error) {
	invalid, err := s.personRepo.CountClusters(userID, modelID, true)
	if err != nil {
		return false, err
	}
	if invalid > 0 {
		return true, nil
	}

	oldest, err := s.faceRepo.GetOldestUnclustered(userID, modelID)
	if err != nil {
		return false, err
	}
	return oldest != nil, nil
}

// AnalyzeUser runs one clustering pass for a user+model. The reconciliation
// itself is a single transaction; on error the persisted clustering is left
// exactly as it was.
func (s *FaceAnalysisService) AnalyzeUser(userID string, modelID uint) error {
	faces, err := s.faceRepo.GetGroupableFaces(userID, modelID, s.minFaceSize, s.minConfidence)
	if err != nil {
		return fmt.Errorf("failed to collect groupable faces for user %s: %w", userID, err)
	}

	faceIDs := make([]uint, len(faces))
	for i := range faces {
		faceIDs[i] = faces[i].ID
	}

	descriptors, err := s.faceRepo.FindDescriptorsBatched(faceIDs)
	if err != nil {
		return fmt.Errorf("failed to load descriptors for user %s: %w", userID, err)
	}

	current, err := s.personRepo.GetCurrentClusters(userID, modelID)
	if err != nil {
		return fmt.Errorf("failed to load current clusters for user %s: %w", userID, err)
	}

	proposed, err := s.proposer.GenerateProposal(current, descriptors)
	if err != nil {
		return fmt.Errorf("failed to generate clustering proposal for user %s: %w", userID, err)
	}

	if err := s.reconciler.Reconcile(userID, current, proposed); err != nil {
		return err
	}

	removed, err := s.personRepo.DeleteOrphaned(userID)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("analysis: removed %d empty cluster(s) for user %s", removed, userID)
	}

	log.Printf("analysis: user %s model %d reconciled %d faces into %d proposed cluster(s)",
		userID, modelID, len(faceIDs), len(proposed))
	return nil
}
