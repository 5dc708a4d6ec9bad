package models

import (
	"encoding/json"
	"math"
)

// Landmark is a single facial landmark point in original-image pixel
// coordinates.
type Landmark struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Face represents a single detected face region in an image, using GORM.
// It corresponds to the 'faces' table.
type Face struct {
	ID           uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	ImageID      uint    `gorm:"not null;index" json:"image_id"`
	X            int     `gorm:"not null" json:"x"`
	Y            int     `gorm:"not null" json:"y"`
	Width        int     `gorm:"not null" json:"width"`
	Height       int     `gorm:"not null" json:"height"`
	Landmarks    []byte  `gorm:"column:landmarks" json:"-"`             // ordered landmark points as JSON
	Descriptor   []byte  `gorm:"not null;column:descriptor" json:"-"`   // embedding vector as BLOB
	Confidence   float64 `gorm:"not null" json:"confidence"`            // detection confidence, 0..1
	IsGroupable  *bool   `gorm:"column:is_groupable" json:"is_groupable,omitempty"` // NULL is treated as groupable
	CreationTime int64   `gorm:"not null" json:"creation_time"`         // Unix timestamp

	Image *Image `gorm:"foreignKey:ImageID" json:"image,omitempty"` // Belongs to Image
}

// TableName explicitly sets the table name for GORM.
func (Face) TableName() string {
	return "faces"
}

// Groupable reports whether the face is eligible for automatic clustering.
// An unset flag counts as groupable.
func (f *Face) Groupable() bool {
	return f.IsGroupable == nil || *f.IsGroupable
}

// GetLandmarks decodes the stored landmark points
func (f *Face) GetLandmarks() []Landmark {
	if len(f.Landmarks) == 0 {
		return nil
	}
	var points []Landmark
	if err := json.Unmarshal(f.Landmarks, &points); err != nil {
		return nil
	}
	return points
}

// SetLandmarks encodes landmark points for storage
func (f *Face) SetLandmarks(points []Landmark) {
	if len(points) == 0 {
		f.Landmarks = nil
		return
	}
	data, err := json.Marshal(points)
	if err != nil {
		f.Landmarks = nil
		return
	}
	f.Landmarks = data
}

// GetDescriptor converts the BLOB data to []float64
func (f *Face) GetDescriptor() []float64 {
	if len(f.Descriptor) == 0 {
		return nil
	}

	descriptor := make([]float64, len(f.Descriptor)/8) // 8 bytes per float64
	for i := 0; i < len(descriptor); i++ {
		offset := i * 8
		var bits uint64
		for b := 0; b < 8; b++ {
			bits |= uint64(f.Descriptor[offset+b]) << (8 * b)
		}
		descriptor[i] = math.Float64frombits(bits)
	}
	return descriptor
}

// SetDescriptor converts []float64 to BLOB data
func (f *Face) SetDescriptor(descriptor []float64) {
	if len(descriptor) == 0 {
		f.Descriptor = nil
		return
	}

	f.Descriptor = make([]byte, len(descriptor)*8) // 8 bytes per float64
	for i, val := range descriptor {
		offset := i * 8
		bits := math.Float64bits(val)
		for b := 0; b < 8; b++ {
			f.Descriptor[offset+b] = byte(bits >> (8 * b))
		}
	}
}
