package media

import (
	"fmt"
	"image"
	"log"
	"strings"

	"gocv.io/x/gocv"
)

// DNNFaceModel implements FaceModel with a YuNet detection network and an
// SFace recognition network through the OpenCV DNN module.
type DNNFaceModel struct {
	modelID    uint
	detector   gocv.FaceDetectorYN
	recognizer gocv.FaceRecognizerSF
	enabled    bool

	scoreThreshold float32
	nmsThreshold   float32
}

// NewDNNFaceModel loads the detection and recognition networks. The returned
// model owns native resources and must be closed.
func NewDNNFaceModel(modelID uint, detectorPath, recognizerPath string) (*DNNFaceModel, error) {
	if detectorPath == "" || recognizerPath == "" {
		return nil, fmt.Errorf("face model %d: detector and recognizer paths are required", modelID)
	}

	log.Printf("media.model: loading detection network from %s", detectorPath)
	detector := gocv.NewFaceDetectorYN(detectorPath, "", image.Pt(320, 320))

	log.Printf("media.model: loading recognition network from %s", recognizerPath)
	recognizer := gocv.NewFaceRecognizerSF(recognizerPath, "")

	m := &DNNFaceModel{
		modelID:        modelID,
		detector:       detector,
		recognizer:     recognizer,
		enabled:        true,
		scoreThreshold: 0.6,
		nmsThreshold:   0.3,
	}
	m.detector.SetScoreThreshold(m.scoreThreshold)
	m.detector.SetNMSThreshold(m.nmsThreshold)
	return m, nil
}

// ID identifies the recognition-model version.
func (m *DNNFaceModel) ID() uint {
	return m.modelID
}

// Close releases the native networks.
func (m *DNNFaceModel) Close() {
	if !m.enabled {
		return
	}
	m.detector.Close()
	m.recognizer.Close()
	m.enabled = false
}

// DetectFaces analyzes the image at the given local path and returns every
// detected face with its box, five landmark points, and descriptor, in the
// coordinate space of that image.
func (m *DNNFaceModel) DetectFaces(imagePath string) (result []DetectedFace, err error) {
	if !m.enabled {
		return nil, fmt.Errorf("face model %d is closed", m.modelID)
	}

	// the DNN backend reports allocation failures through C++ exceptions
	// that surface here as panics
	defer func() {
		if r := recover(); r != nil {
			err = mapModelFailure(fmt.Errorf("face model %d: %v", m.modelID, r))
			result = nil
		}
	}()

	src := gocv.IMRead(imagePath, gocv.IMReadColor)
	if src.Empty() {
		return nil, fmt.Errorf("failed to read image %s", imagePath)
	}
	defer src.Close()

	m.detector.SetInputSize(image.Pt(src.Cols(), src.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	m.detector.Detect(src, &faces)

	// each detection row holds box x/y/w/h, five landmark points, and the
	// confidence score
	for row := 0; row < faces.Rows(); row++ {
		x := int(faces.GetFloatAt(row, 0))
		y := int(faces.GetFloatAt(row, 1))
		w := int(faces.GetFloatAt(row, 2))
		h := int(faces.GetFloatAt(row, 3))
		if w <= 0 || h <= 0 {
			continue
		}

		landmarks := make([]Point, 0, 5)
		for p := 0; p < 5; p++ {
			landmarks = append(landmarks, Point{
				X: int(faces.GetFloatAt(row, 4+p*2)),
				Y: int(faces.GetFloatAt(row, 5+p*2)),
			})
		}

		confidence := float64(faces.GetFloatAt(row, 14))

		descriptor, featErr := m.computeDescriptor(src, faces, row)
		if featErr != nil {
			return nil, featErr
		}

		result = append(result, DetectedFace{
			Left:       x,
			Top:        y,
			Right:      x + w,
			Bottom:     y + h,
			Confidence: confidence,
			Landmarks:  landmarks,
			Descriptor: descriptor,
		})
	}

	return result, nil
}

// computeDescriptor aligns one detected face and runs the recognition
// network over it.
func (m *DNNFaceModel) computeDescriptor(src gocv.Mat, faces gocv.Mat, row int) ([]float64, error) {
	faceBox := faces.RowRange(row, row+1)
	defer faceBox.Close()

	aligned := gocv.NewMat()
	defer aligned.Close()
	m.recognizer.AlignCrop(src, faceBox, &aligned)
	if aligned.Empty() {
		return nil, fmt.Errorf("face model %d: failed to align face %d", m.modelID, row)
	}

	feature := gocv.NewMat()
	defer feature.Close()
	m.recognizer.Feature(aligned, &feature)
	if feature.Empty() {
		return nil, fmt.Errorf("face model %d: recognition network produced no feature for face %d", m.modelID, row)
	}

	descriptor := make([]float64, feature.Cols())
	for i := 0; i < feature.Cols(); i++ {
		descriptor[i] = float64(feature.GetFloatAt(0, i))
	}
	return descriptor, nil
}

// mapModelFailure distinguishes memory exhaustion from other backend
// failures, since out-of-memory is fatal to the whole pass rather than
// retryable per-image.
func mapModelFailure(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "out of memory") || strings.Contains(msg, "insufficient memory") || strings.Contains(msg, "failed to allocate") {
		return fmt.Errorf("%w: %s", ErrOutOfMemory, err.Error())
	}
	return err
}
