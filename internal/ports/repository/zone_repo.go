package repository

import (
	"context"
	"database/sql"
	"fmt"

	"checkin.engine/internal/core/model"
)

type ZoneRepository struct {
	DB *sql.DB
}

func NewZoneRepository(db *sql.DB) *ZoneRepository {
	return &ZoneRepository{DB: db}
}

func (r *ZoneRepository) ListActiveZones(ctx context.Context) ([]model.GeofenceZone, error) {
	query := `SELECT id, name, center_latitude, center_longitude, COALESCE(radius_meters, 0)
	          FROM geofence_zones WHERE active ORDER BY id`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}
	defer rows.Close()

	var zones []model.GeofenceZone
	for rows.Next() {
		var z model.GeofenceZone
		if err := rows.Scan(&z.ID, &z.Name, &z.CenterLatitude, &z.CenterLongitude, &z.RadiusMeters); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zones: %w", err)
	}
	return zones, nil
}
