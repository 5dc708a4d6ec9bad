package workers

import (
	"testing"

	"github.com/camden-git/facesysbackend/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIdleAnalyzer builds an analyzer without starting workers, so queued jobs
// stay queued and the pending map can be inspected
func newIdleAnalyzer(queueSize int) *ImageAnalyzer {
	return &ImageAnalyzer{
		JobQueue: make(chan AnalysisJob, queueSize),
		StopChan: make(chan struct{}),
		Pending:  make(map[uint]bool),
	}
}

func TestQueueJobSkipsPendingImage(t *testing.T) {
	a := newIdleAnalyzer(10)

	assert.True(t, a.QueueJob(AnalysisJob{ImageID: 1, FileID: "a.jpg", UserID: "u1"}))
	assert.False(t, a.QueueJob(AnalysisJob{ImageID: 1, FileID: "a.jpg", UserID: "u1"}), "an in-flight image cannot be queued twice")
	assert.True(t, a.QueueJob(AnalysisJob{ImageID: 2, FileID: "b.jpg", UserID: "u1"}))

	assert.Len(t, a.JobQueue, 2)
}

func TestQueueJobReleasesLockWhenQueueFull(t *testing.T) {
	a := newIdleAnalyzer(1)

	require.True(t, a.QueueJob(AnalysisJob{ImageID: 1, FileID: "a.jpg", UserID: "u1"}))
	assert.False(t, a.QueueJob(AnalysisJob{ImageID: 2, FileID: "b.jpg", UserID: "u1"}), "full queue rejects the job")

	a.Mutex.Lock()
	pending := a.Pending[2]
	a.Mutex.Unlock()
	assert.False(t, pending, "a rejected job must not stay locked")
}

func TestRescaleFaces(t *testing.T) {
	detected := []media.DetectedFace{
		{
			Left: 10, Top: 20, Right: 40, Bottom: 60,
			Confidence: 0.98,
			Landmarks:  []media.Point{{X: 15, Y: 25}},
			Descriptor: []float64{0.5, -0.5},
		},
	}

	faces := rescaleFaces(detected, 2.0)
	require.Len(t, faces, 1)

	face := faces[0].Face
	assert.Equal(t, 20, face.X)
	assert.Equal(t, 40, face.Y)
	assert.Equal(t, 60, face.Width)
	assert.Equal(t, 80, face.Height)
	assert.Equal(t, 0.98, face.Confidence)

	landmarks := face.GetLandmarks()
	require.Len(t, landmarks, 1)
	assert.Equal(t, 30, landmarks[0].X)
	assert.Equal(t, 50, landmarks[0].Y)

	assert.Equal(t, []float64{0.5, -0.5}, face.GetDescriptor(), "descriptors pass through unscaled")
}
