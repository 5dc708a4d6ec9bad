package media

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"
)

// PreparedImage is a temporary, analysis-ready copy of an original file:
// EXIF orientation applied and dimensions bounded. Ratio maps coordinates on
// the temporary image back to original-image pixels.
type PreparedImage struct {
	TempPath string
	Ratio    float64
	Width    int // original width after orientation
	Height   int // original height after orientation
}

// PrepareForAnalysis decodes the image, applies its EXIF orientation, and
// downscales it so the longest side does not exceed maxSize. The result is
// written to a temporary JPEG the caller must remove.
func PrepareForAnalysis(originalPath string, maxSize int) (*PreparedImage, error) {
	img, err := imaging.Open(originalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", originalPath, err)
	}

	img = applyOrientation(img, readOrientation(originalPath))

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	ratio := 1.0
	if maxSize > 0 && (width > maxSize || height > maxSize) {
		scaled := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
		ratio = float64(width) / float64(scaled.Bounds().Dx())
		img = scaled
	}

	tempPath := filepath.Join(os.TempDir(), "facesys-"+uuid.NewString()+".jpg")
	if err := imaging.Save(img, tempPath, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("failed to write analysis copy of %s: %w", originalPath, err)
	}

	return &PreparedImage{
		TempPath: tempPath,
		Ratio:    ratio,
		Width:    width,
		Height:   height,
	}, nil
}

// Cleanup removes the temporary analysis copy.
func (p *PreparedImage) Cleanup() {
	if p.TempPath != "" {
		os.Remove(p.TempPath)
	}
}

// readOrientation extracts the EXIF orientation tag, defaulting to 1
// (upright) when the file carries no usable EXIF data.
func readOrientation(path string) int {
	file, err := os.Open(path)
	if err != nil {
		return 1
	}
	defer file.Close()

	meta, err := exif.Decode(file)
	if err != nil {
		return 1
	}
	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientation, err := tag.Int(0)
	if err != nil || orientation < 1 || orientation > 8 {
		return 1
	}
	return orientation
}

// applyOrientation normalizes an image according to its EXIF orientation
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
