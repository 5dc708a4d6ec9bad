package models

// MaxImageErrorLength caps the stored per-image error text.
const MaxImageErrorLength = 1024

// Image represents one processing record for an underlying platform file
// under a given recognition model, using GORM. It corresponds to the
// 'images' table. A file shared by several users maps to a single Image row;
// the per-user visibility is kept in ImageUser association rows.
type Image struct {
	ID                 uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID             string  `gorm:"not null;uniqueIndex:idx_images_file_model" json:"file_id"` // opaque platform file reference
	ModelID            uint    `gorm:"not null;uniqueIndex:idx_images_file_model" json:"model_id"`
	IsProcessed        bool    `gorm:"not null;default:false" json:"is_processed"`
	Error              *string `gorm:"" json:"error,omitempty"`                          // Nullable, truncated to MaxImageErrorLength
	LastProcessedTime  *int64  `gorm:"" json:"last_processed_time,omitempty"`            // Nullable, Unix timestamp
	ProcessingDuration *int64  `gorm:"" json:"processing_duration,omitempty"`            // Nullable, milliseconds

	// Relationships
	Faces []Face      `gorm:"foreignKey:ImageID" json:"faces,omitempty"`
	Users []ImageUser `gorm:"foreignKey:ImageID" json:"users,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Image) TableName() string {
	return "images"
}

// ImageUser is the association edge between an Image row and a platform user
// that can see the underlying file. It corresponds to the 'image_users'
// table.
type ImageUser struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ImageID uint   `gorm:"not null;uniqueIndex:idx_image_users_pair" json:"image_id"`
	UserID  string `gorm:"not null;uniqueIndex:idx_image_users_pair;index" json:"user_id"`
}

// TableName explicitly sets the table name for GORM.
func (ImageUser) TableName() string {
	return "image_users"
}
