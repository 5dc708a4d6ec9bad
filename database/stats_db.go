package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Querier is the subset of *sql.DB / *sql.Tx used by the read projections
// below.
type Querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// AvgProcessingDuration returns the mean processing duration, in
// milliseconds, of images processed for the given model since the given Unix
// timestamp. It returns nil when no image matches.
func AvgProcessingDuration(db Querier, modelID uint, sinceUnix int64) (*float64, error) {
	queryBuilder := psql.Select("AVG(processing_duration)").
		From("images").
		Where(sq.Eq{"model_id": modelID, "is_processed": true}).
		Where(sq.GtOrEq{"last_processed_time": sinceUnix}).
		Where(sq.NotEq{"processing_duration": nil})

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for AvgProcessingDuration: %w", err)
	}

	var avg sql.NullFloat64
	err = db.QueryRow(sqlStr, args...).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("failed to query average processing duration: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// CountImagesFromPerson counts the distinct images of a user+model that
// contain at least one face belonging to a cluster with the given name.
func CountImagesFromPerson(db Querier, userID string, modelID uint, personName string) (int64, error) {
	queryBuilder := psql.Select("COUNT(DISTINCT images.id)").
		From("images").
		Join("faces ON faces.image_id = images.id").
		Join("face_clusters ON face_clusters.face_id = faces.id").
		Join("persons ON persons.id = face_clusters.person_id").
		Where(sq.Eq{"images.model_id": modelID, "persons.user_id": userID, "persons.name": personName})

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for CountImagesFromPerson: %w", err)
	}

	var count int64
	err = db.QueryRow(sqlStr, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count images for person %q: %w", personName, err)
	}
	return count, nil
}

// FindImageIDsFromPerson returns the distinct IDs of the images of a
// user+model that contain at least one face belonging to a cluster with the
// given name, ordered by image ID.
func FindImageIDsFromPerson(db Querier, userID string, modelID uint, personName string) ([]uint, error) {
	queryBuilder := psql.Select("DISTINCT images.id").
		From("images").
		Join("faces ON faces.image_id = images.id").
		Join("face_clusters ON face_clusters.face_id = faces.id").
		Join("persons ON persons.id = face_clusters.person_id").
		Where(sq.Eq{"images.model_id": modelID, "persons.user_id": userID, "persons.name": personName}).
		OrderBy("images.id ASC")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for FindImageIDsFromPerson: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images for person %q: %w", personName, err)
	}
	defer rows.Close()

	var ids []uint
	for rows.Next() {
		var id uint
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan image ID row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating image ID rows: %w", err)
	}
	return ids, nil
}
