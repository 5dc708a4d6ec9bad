package workers

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/camden-git/facesysbackend/media"
	"github.com/camden-git/facesysbackend/models"
	"github.com/camden-git/facesysbackend/repository"
)

// AnalysisJob asks for one image to be analyzed on behalf of one user.
type AnalysisJob struct {
	ImageID uint
	FileID  string
	UserID  string
}

// ImageAnalyzer runs face detection over queued images with a pool of
// workers. The pending map doubles as the per-image exclusive lock: an image
// already in flight cannot be queued again, and the entry is released on
// every exit path of the job.
type ImageAnalyzer struct {
	JobQueue   chan AnalysisJob
	ImageRepo  repository.ImageRepositoryInterface
	PersonRepo repository.PersonRepositoryInterface
	FileStore  media.FileStore
	Model      media.FaceModel

	MaxImageSize int

	Wg       sync.WaitGroup
	StopChan chan struct{}
	stopOnce sync.Once
	Pending  map[uint]bool
	Mutex    sync.Mutex
}

// NewImageAnalyzer starts the worker pool.
func NewImageAnalyzer(
	imageRepo repository.ImageRepositoryInterface,
	personRepo repository.PersonRepositoryInterface,
	fileStore media.FileStore,
	model media.FaceModel,
	maxImageSize, queueSize, numWorkers int,
) *ImageAnalyzer {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	a := &ImageAnalyzer{
		JobQueue:     make(chan AnalysisJob, queueSize),
		ImageRepo:    imageRepo,
		PersonRepo:   personRepo,
		FileStore:    fileStore,
		Model:        model,
		MaxImageSize: maxImageSize,
		StopChan:     make(chan struct{}),
		Pending:      make(map[uint]bool),
	}
	a.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go a.worker(i)
	}
	log.Printf("Started %d image analysis worker(s) with queue size %d", numWorkers, queueSize)
	return a
}

func (a *ImageAnalyzer) worker(id int) {
	defer a.Wg.Done()

	log.Printf("Image analysis worker %d started", id)
	for {
		select {
		case job, ok := <-a.JobQueue:
			if !ok {
				log.Printf("Image analysis worker %d stopping: job queue closed", id)
				return
			}

			err := a.processJob(job)

			a.Mutex.Lock()
			delete(a.Pending, job.ImageID)
			a.Mutex.Unlock()

			if errors.Is(err, media.ErrOutOfMemory) {
				// not retryable; stop the whole pool rather than burn through
				// the remaining queue
				log.Printf("Worker %d: FATAL model out of memory on image %d: %v", id, job.ImageID, err)
				a.signalStop()
				return
			}

		case <-a.StopChan:
			log.Printf("Image analysis worker %d stopping: stop signal received", id)
			return
		}
	}
}

// processJob analyzes a single image and records the outcome. Per-item
// failures are stored on the image row and do not abort the batch; only an
// out-of-memory condition from the model is returned to the worker loop.
func (a *ImageAnalyzer) processJob(job AnalysisJob) error {
	path, err := a.FileStore.ResolveFile(job.FileID)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrFileVanished):
			log.Printf("Worker: file %s vanished, flagging image %d stale", job.FileID, job.ImageID)
			if resetErr := a.ImageRepo.ResetImage(job.FileID, a.Model.ID()); resetErr != nil {
				log.Printf("Worker: ERROR flagging image %d stale: %v", job.ImageID, resetErr)
			}
		case errors.Is(err, media.ErrFileForbidden):
			// skipped silently by policy
		default:
			log.Printf("Worker: ERROR resolving file %s: %v", job.FileID, err)
			a.storeResult(job, nil, 0, err)
		}
		return nil
	}

	start := time.Now()

	prepared, err := media.PrepareForAnalysis(path, a.MaxImageSize)
	if err != nil {
		log.Printf("Worker: ERROR preparing image %d: %v", job.ImageID, err)
		a.storeResult(job, nil, time.Since(start).Milliseconds(), err)
		return nil
	}
	defer prepared.Cleanup()

	detected, err := a.Model.DetectFaces(prepared.TempPath)
	if err != nil {
		if errors.Is(err, media.ErrOutOfMemory) {
			return err
		}
		log.Printf("Worker: ERROR during detection for image %d: %v", job.ImageID, err)
		a.storeResult(job, nil, time.Since(start).Milliseconds(), err)
		return nil
	}

	faces := rescaleFaces(detected, prepared.Ratio)
	a.storeResult(job, faces, time.Since(start).Milliseconds(), nil)
	log.Printf("Worker: image %d analyzed, found %d face(s)", job.ImageID, len(faces))
	return nil
}

// storeResult persists the pass outcome and invalidates the clusters the
// image contributed to.
func (a *ImageAnalyzer) storeResult(job AnalysisJob, faces []repository.NewFace, durationMillis int64, taskErr error) {
	if err := a.ImageRepo.ImageProcessed(job.ImageID, faces, durationMillis, taskErr); err != nil {
		log.Printf("Worker: ERROR storing result for image %d: %v", job.ImageID, err)
		return
	}
	if err := a.PersonRepo.InvalidatePersons(job.ImageID, job.UserID); err != nil {
		log.Printf("Worker: ERROR invalidating clusters for image %d: %v", job.ImageID, err)
	}
}

// rescaleFaces maps detection geometry from the downscaled analysis copy
// back to original-image pixels.
func rescaleFaces(detected []media.DetectedFace, ratio float64) []repository.NewFace {
	faces := make([]repository.NewFace, 0, len(detected))
	for _, d := range detected {
		face := models.Face{
			X:          scale(d.Left, ratio),
			Y:          scale(d.Top, ratio),
			Width:      scale(d.Right-d.Left, ratio),
			Height:     scale(d.Bottom-d.Top, ratio),
			Confidence: d.Confidence,
		}

		landmarks := make([]models.Landmark, 0, len(d.Landmarks))
		for _, p := range d.Landmarks {
			landmarks = append(landmarks, models.Landmark{X: scale(p.X, ratio), Y: scale(p.Y, ratio)})
		}
		face.SetLandmarks(landmarks)
		face.SetDescriptor(d.Descriptor)

		faces = append(faces, repository.NewFace{Face: face})
	}
	return faces
}

func scale(v int, ratio float64) int {
	return int(float64(v) * ratio)
}

// QueueJob queues an image for analysis unless it is already in flight.
// Returns false when the image is locked by a running job or the queue is
// full; the caller skips it for this pass.
func (a *ImageAnalyzer) QueueJob(job AnalysisJob) bool {
	a.Mutex.Lock()
	if a.Pending[job.ImageID] {
		a.Mutex.Unlock()
		return false
	}
	a.Pending[job.ImageID] = true
	a.Mutex.Unlock()

	select {
	case a.JobQueue <- job:
		return true
	default:
		log.Printf("WARNING: image analysis queue full, skipping image %d", job.ImageID)
		a.Mutex.Lock()
		delete(a.Pending, job.ImageID)
		a.Mutex.Unlock()
		return false
	}
}

func (a *ImageAnalyzer) signalStop() {
	a.stopOnce.Do(func() { close(a.StopChan) })
}

// Stop shuts the pool down and waits for in-flight jobs to finish.
func (a *ImageAnalyzer) Stop() {
	log.Println("Stopping image analysis workers...")
	a.signalStop()
	a.Wg.Wait()
	log.Println("All image analysis workers stopped")
}
