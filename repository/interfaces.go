package repository

import (
	"github.com/camden-git/facesysbackend/models"
)

// FaceRepositoryInterface defines the methods for face data operations
type FaceRepositoryInterface interface {
	Create(face *models.Face, personID *uint) error
	GetByID(id uint) (*models.Face, error)
	ListByImage(imageID uint) ([]models.Face, error)
	DeleteByImage(imageID uint) error
	GetGroupableFaces(userID string, modelID uint, minSize int, minConfidence float64) ([]models.Face, error)
	GetNonGroupableFaces(userID string, modelID uint, minSize int, minConfidence float64) ([]models.Face, error)
	CountFaces(userID string, modelID uint, onlyWithoutCluster bool) (int64, error)
	FindDescriptorsBatched(faceIDs []uint) ([]FaceDescriptor, error)
	GetOldestUnclustered(userID string, modelID uint) (*models.Face, error)
}

// ImageRepositoryInterface defines the methods for image data operations
type ImageRepositoryInterface interface {
	Insert(image *models.Image, userID string) error
	GetByID(id uint) (*models.Image, error)
	GetByFileAndModel(fileID string, modelID uint) (*models.Image, error)
	ImageProcessed(imageID uint, faces []NewFace, durationMillis int64, taskErr error) error
	OtherUserStillHasConnection(imageID uint) (bool, error)
	RemoveUserAssociation(imageID uint, userID string) error
	FindImagesWithoutFaces(userID *string, modelID uint) ([]models.Image, error)
	CountImages(modelID uint) (int64, error)
	CountProcessedImages(modelID uint) (int64, error)
	CountUserImages(userID string, modelID uint) (int64, error)
	ListUsers(modelID uint) ([]string, error)
	ResetImage(fileID string, modelID uint) error
	DeleteUserImages(userID string) error
	DeleteUserModel(userID string, modelID uint) error
}

// PersonRepositoryInterface defines the methods for person cluster data
// operations
type PersonRepositoryInterface interface {
	Create(person *models.Person) error
	GetByID(id uint) (*models.Person, error)
	Update(person *models.Person) error
	Delete(id uint) error
	InvalidatePersons(imageID uint, userID string) error
	CountClusters(userID string, modelID uint, onlyInvalid bool) (int64, error)
	CountPersons(userID string, modelID uint) (int64, error)
	FindUnassigned(userID string) ([]models.Person, error)
	FindIgnored(userID string) ([]models.Person, error)
	ListNamed(userID string) ([]models.Person, error)
	SetVisibility(personID uint, visible bool) error
	SetLinkedUser(personID uint, linkedUserID *string) error
	DetachFace(personID, faceID uint, newName *string) (*models.Person, error)
	RemoveIfEmpty(personID uint) error
	DeleteOrphaned(userID string) (int64, error)
	GetCurrentClusters(userID string, modelID uint) (map[uint][]uint, error)
}

// Compile-time interface checks
var (
	_ FaceRepositoryInterface   = (*FaceRepository)(nil)
	_ ImageRepositoryInterface  = (*ImageRepository)(nil)
	_ PersonRepositoryInterface = (*PersonRepository)(nil)
)
