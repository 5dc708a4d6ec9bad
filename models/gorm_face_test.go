package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaceDescriptorCodec(t *testing.T) {
	face := Face{}

	descriptor := []float64{0.0, 1.0, -3.25, 1e-9, 12345.6789}
	face.SetDescriptor(descriptor)
	require.Len(t, face.Descriptor, len(descriptor)*8)

	assert.Equal(t, descriptor, face.GetDescriptor())
}

func TestFaceDescriptorEmpty(t *testing.T) {
	face := Face{}

	face.SetDescriptor(nil)
	assert.Nil(t, face.Descriptor)
	assert.Nil(t, face.GetDescriptor())

	face.SetDescriptor([]float64{})
	assert.Nil(t, face.Descriptor)
}

func TestFaceLandmarksCodec(t *testing.T) {
	face := Face{}

	points := []Landmark{{X: 10, Y: 20}, {X: 30, Y: 40}}
	face.SetLandmarks(points)
	require.NotEmpty(t, face.Landmarks)

	assert.Equal(t, points, face.GetLandmarks())
}

func TestFaceLandmarksInvalid(t *testing.T) {
	face := Face{}

	face.SetLandmarks(nil)
	assert.Nil(t, face.Landmarks)
	assert.Nil(t, face.GetLandmarks())

	face.Landmarks = []byte("not json")
	assert.Nil(t, face.GetLandmarks(), "corrupt landmark data reads as none")
}

func TestFaceGroupable(t *testing.T) {
	face := Face{}
	assert.True(t, face.Groupable(), "an unset flag counts as groupable")

	yes := true
	face.IsGroupable = &yes
	assert.True(t, face.Groupable())

	no := false
	face.IsGroupable = &no
	assert.False(t, face.Groupable())
}
