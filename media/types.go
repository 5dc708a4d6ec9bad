package media

import "errors"

var (
	// ErrOutOfMemory marks a model failure caused by memory exhaustion. It is
	// fatal to the processing pass, never retried per-image.
	ErrOutOfMemory = errors.New("face model ran out of memory")

	// ErrFileVanished indicates the underlying file no longer exists; the
	// image record must be flagged stale.
	ErrFileVanished = errors.New("file no longer exists")

	// ErrFileForbidden indicates policy disallows analyzing the file; the
	// image is skipped silently.
	ErrFileForbidden = errors.New("file is not allowed for analysis")
)

// Point is a single coordinate pair.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DetectedFace is one face reported by a recognition model, in the
// coordinate space of the (possibly downscaled) image handed to the model.
// The caller rescales geometry back to original-image pixels.
type DetectedFace struct {
	Left       int
	Right      int
	Top        int
	Bottom     int
	Confidence float64
	Landmarks  []Point
	Descriptor []float64
}

// FaceModel detects faces in an image file and computes their descriptors.
// Descriptors from different model IDs are not comparable.
type FaceModel interface {
	// ID identifies the recognition-model version.
	ID() uint
	// DetectFaces analyzes the image at the given local path. A memory
	// exhaustion inside the model must surface as ErrOutOfMemory.
	DetectFaces(imagePath string) ([]DetectedFace, error)
}

// FileStore resolves opaque platform file references to local filesystem
// paths for analysis. ResolveFile returns ErrFileVanished when the file no
// longer exists and ErrFileForbidden when policy disallows analyzing it.
type FileStore interface {
	ResolveFile(fileID string) (string, error)
}
