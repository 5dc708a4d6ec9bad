package models

// Person represents a cluster of faces believed to depict the same
// individual, scoped to one user, using GORM. It corresponds to the
// 'persons' table. An unnamed person is "unassigned"; a person with
// IsVisible=false has been hidden (ignored) by the user.
type Person struct {
	ID                 uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID             string  `gorm:"not null;index" json:"user_id"`
	Name               *string `gorm:"" json:"name,omitempty"`           // Nullable, set once the user confirms the cluster
	IsValid            bool    `gorm:"not null;default:false" json:"is_valid"`
	IsVisible          bool    `gorm:"not null;default:true" json:"is_visible"`
	LinkedUserID       *string `gorm:"" json:"linked_user_id,omitempty"` // Nullable, explicit mapping to a platform identity
	LastGenerationTime int64   `gorm:"not null" json:"last_generation_time"` // Unix timestamp

	Faces []FaceCluster `gorm:"foreignKey:PersonID" json:"faces,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Person) TableName() string {
	return "persons"
}

// FaceCluster is the membership edge between a face and a person cluster.
// It corresponds to the 'face_clusters' table. The schema allows a face to
// appear in clusters of several users (shared files), but within one user's
// clustering a face holds at most one edge once reconciliation completes.
type FaceCluster struct {
	ID       uint `gorm:"primaryKey;autoIncrement" json:"id"`
	FaceID   uint `gorm:"not null;uniqueIndex:idx_face_clusters_pair;index" json:"face_id"`
	PersonID uint `gorm:"not null;uniqueIndex:idx_face_clusters_pair;index" json:"person_id"`
}

// TableName explicitly sets the table name for GORM.
func (FaceCluster) TableName() string {
	return "face_clusters"
}
