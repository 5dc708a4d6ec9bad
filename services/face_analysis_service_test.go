package services

import (
	"errors"
	"testing"

	"github.com/camden-git/facesysbackend/models"
	"github.com/camden-git/facesysbackend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubProposer returns a canned proposal and records what it was given
type stubProposer struct {
	proposal map[uint][]uint
	err      error

	gotCurrent     map[uint][]uint
	gotDescriptors []repository.FaceDescriptor
}

func (s *stubProposer) GenerateProposal(current map[uint][]uint, descriptors []repository.FaceDescriptor) (map[uint][]uint, error) {
	s.gotCurrent = current
	s.gotDescriptors = descriptors
	return s.proposal, s.err
}

func newAnalysisService(db *gorm.DB, proposer ProposalGenerator) *FaceAnalysisService {
	return NewFaceAnalysisService(
		repository.NewFaceRepository(db),
		repository.NewPersonRepository(db),
		NewClusterReconciliationService(db),
		proposer,
		40,
		0.9,
	)
}

func TestNeedsClustering(t *testing.T) {
	db := setupReconcileTestDB(t)
	svc := newAnalysisService(db, &stubProposer{})

	t.Run("NoFaces", func(t *testing.T) {
		needs, err := svc.NeedsClustering("u1", 1)
		require.NoError(t, err)
		assert.False(t, needs)
	})

	imageID := seedImage(t, db, "a.jpg", "u1")
	f1 := seedFace(t, db, imageID)

	t.Run("UnclusteredFace", func(t *testing.T) {
		needs, err := svc.NeedsClustering("u1", 1)
		require.NoError(t, err)
		assert.True(t, needs)
	})

	pid := seedPerson(t, db, "u1", nil, f1)

	t.Run("EverythingClusteredAndValid", func(t *testing.T) {
		needs, err := svc.NeedsClustering("u1", 1)
		require.NoError(t, err)
		assert.False(t, needs)
	})

	require.NoError(t, db.Model(&models.Person{}).Where("id = ?", pid).Update("is_valid", false).Error)

	t.Run("InvalidatedCluster", func(t *testing.T) {
		needs, err := svc.NeedsClustering("u1", 1)
		require.NoError(t, err)
		assert.True(t, needs)
	})
}

func TestAnalyzeUser(t *testing.T) {
	db := setupReconcileTestDB(t)

	imageID := seedImage(t, db, "a.jpg", "u1")
	f1 := seedFace(t, db, imageID)
	f2 := seedFace(t, db, imageID)

	proposer := &stubProposer{proposal: map[uint][]uint{100: {f1, f2}}}
	svc := newAnalysisService(db, proposer)

	// an empty leftover cluster should be swept away by the pass
	orphan := seedPerson(t, db, "u1", nil)

	require.NoError(t, svc.AnalyzeUser("u1", 1))

	require.Len(t, proposer.gotDescriptors, 2, "proposer sees every groupable face's descriptor")
	assert.Empty(t, proposer.gotCurrent)

	var persons []models.Person
	require.NoError(t, db.Where("user_id = ?", "u1").Find(&persons).Error)
	require.Len(t, persons, 1)
	assert.NotEqual(t, orphan, persons[0].ID, "orphaned cluster is garbage-collected")
	assert.Equal(t, []uint{f1, f2}, clusterFaces(t, db, persons[0].ID))
}

func TestAnalyzeUserSkipsNonGroupableFaces(t *testing.T) {
	db := setupReconcileTestDB(t)

	imageID := seedImage(t, db, "a.jpg", "u1")
	f1 := seedFace(t, db, imageID)

	small := models.Face{ImageID: imageID, Width: 10, Height: 10, Confidence: 0.99, CreationTime: 1}
	small.SetDescriptor([]float64{0.5})
	require.NoError(t, db.Create(&small).Error)

	proposer := &stubProposer{proposal: map[uint][]uint{100: {f1}}}
	svc := newAnalysisService(db, proposer)

	require.NoError(t, svc.AnalyzeUser("u1", 1))

	require.Len(t, proposer.gotDescriptors, 1)
	assert.Equal(t, f1, proposer.gotDescriptors[0].FaceID)
}

func TestAnalyzeUserProposerFailure(t *testing.T) {
	db := setupReconcileTestDB(t)

	imageID := seedImage(t, db, "a.jpg", "u1")
	seedFace(t, db, imageID)

	svc := newAnalysisService(db, &stubProposer{err: errors.New("model unavailable")})

	err := svc.AnalyzeUser("u1", 1)
	require.Error(t, err)
	assert.ErrorContains(t, err, "model unavailable")

	var persons int64
	require.NoError(t, db.Model(&models.Person{}).Count(&persons).Error)
	assert.Zero(t, persons, "a failed pass leaves the clustering untouched")
}
