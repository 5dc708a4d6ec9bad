package workers

import (
	"log"
	"sync"
	"time"

	"github.com/camden-git/facesysbackend/repository"
	"github.com/camden-git/facesysbackend/services"
)

// ClusterSweep periodically walks all known users, queues their unprocessed
// images for analysis, and runs a clustering pass for every user that needs
// one. Users are handled strictly one at a time; the sweep checkpoints
// between users and never interrupts a running reconciliation transaction.
type ClusterSweep struct {
	ImageRepo repository.ImageRepositoryInterface
	Analyzer  *ImageAnalyzer
	Analysis  *services.FaceAnalysisService

	ModelID  uint
	Interval time.Duration

	StopChan chan struct{}
	Wg       sync.WaitGroup
}

// NewClusterSweep creates the sweep; call Start to run it.
func NewClusterSweep(
	imageRepo repository.ImageRepositoryInterface,
	analyzer *ImageAnalyzer,
	analysis *services.FaceAnalysisService,
	modelID uint,
	interval time.Duration,
) *ClusterSweep {
	return &ClusterSweep{
		ImageRepo: imageRepo,
		Analyzer:  analyzer,
		Analysis:  analysis,
		ModelID:   modelID,
		Interval:  interval,
		StopChan:  make(chan struct{}),
	}
}

// Start launches the periodic sweep loop.
func (s *ClusterSweep) Start() {
	s.Wg.Add(1)
	go func() {
		defer s.Wg.Done()

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		log.Printf("Cluster sweep started (model %d, interval %s)", s.ModelID, s.Interval)
		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.StopChan:
				log.Println("Cluster sweep stopping")
				return
			}
		}
	}()
}

// runOnce performs a single sweep over all users.
func (s *ClusterSweep) runOnce() {
	users, err := s.ImageRepo.ListUsers(s.ModelID)
	if err != nil {
		log.Printf("Sweep: ERROR listing users: %v", err)
		return
	}

	for _, userID := range users {
		// checkpoint: a stop request takes effect between users, never in
		// the middle of one user's pass
		select {
		case <-s.StopChan:
			return
		default:
		}

		s.sweepUser(userID)
	}
}

func (s *ClusterSweep) sweepUser(userID string) {
	images, err := s.ImageRepo.FindImagesWithoutFaces(&userID, s.ModelID)
	if err != nil {
		log.Printf("Sweep: ERROR finding unprocessed images for user %s: %v", userID, err)
	} else {
		for _, img := range images {
			s.Analyzer.QueueJob(AnalysisJob{ImageID: img.ID, FileID: img.FileID, UserID: userID})
		}
	}

	needs, err := s.Analysis.NeedsClustering(userID, s.ModelID)
	if err != nil {
		log.Printf("Sweep: ERROR checking clustering state for user %s: %v", userID, err)
		return
	}
	if !needs {
		return
	}

	// a failed pass leaves the user's clustering untouched; log and move on
	// to the next user
	if err := s.Analysis.AnalyzeUser(userID, s.ModelID); err != nil {
		log.Printf("Sweep: ERROR clustering user %s: %v", userID, err)
	}
}

// Stop halts the sweep after the current user's pass completes.
func (s *ClusterSweep) Stop() {
	close(s.StopChan)
	s.Wg.Wait()
}
