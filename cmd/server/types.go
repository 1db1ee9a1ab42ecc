package main

import (
	"fmt"
	"math"
	"time"

	"github.com/himanishpuri/AnchorSync/pkg/models"
)

// MaxExpiration caps the lifetime a client may request for a new anchor.
const MaxExpiration = 365 * 24 * time.Hour

// CreateAnchorRequest is the request body for POST /api/anchors
type CreateAnchorRequest struct {
	// ID is optional; one is generated when empty.
	ID       string             `json:"id,omitempty"`
	Position models.Vector3     `json:"position"`
	Rotation *models.Quaternion `json:"rotation,omitempty"`

	// ExpiresInSeconds overrides the server default lifetime. Zero means default.
	ExpiresInSeconds int64 `json:"expires_in_seconds,omitempty"`
}

// Validate checks if the request is valid
func (r *CreateAnchorRequest) Validate() error {
	for _, v := range []float64{r.Position.X, r.Position.Y, r.Position.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("position must be finite")
		}
	}
	if r.Rotation != nil {
		q := r.Rotation
		norm := q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W
		if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
			return fmt.Errorf("rotation must be a non-zero finite quaternion")
		}
	}
	if r.ExpiresInSeconds < 0 {
		return fmt.Errorf("expires_in_seconds cannot be negative")
	}
	if time.Duration(r.ExpiresInSeconds)*time.Second > MaxExpiration {
		return fmt.Errorf("expires_in_seconds exceeds maximum of %d", int64(MaxExpiration/time.Second))
	}
	return nil
}

// Record converts the request into a record expiring relative to now.
func (r *CreateAnchorRequest) Record(now time.Time, defaultExpiration time.Duration) models.CloudAnchorRecord {
	pose := models.Pose{Position: r.Position, Rotation: models.IdentityRotation()}
	if r.Rotation != nil {
		pose.Rotation = *r.Rotation
	}
	lifetime := defaultExpiration
	if r.ExpiresInSeconds > 0 {
		lifetime = time.Duration(r.ExpiresInSeconds) * time.Second
	}
	rec := models.CloudAnchorRecord{ID: r.ID, Pose: pose}
	if lifetime > 0 {
		exp := now.Add(lifetime)
		rec.Expiration = &exp
	}
	return rec
}

// AnchorDTO represents an anchor in API responses
type AnchorDTO struct {
	ID        string            `json:"id"`
	Position  models.Vector3    `json:"position"`
	Rotation  models.Quaternion `json:"rotation"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Expired   bool              `json:"expired"`
}

func newAnchorDTO(rec models.CloudAnchorRecord, now time.Time) AnchorDTO {
	return AnchorDTO{
		ID:        rec.ID,
		Position:  rec.Pose.Position,
		Rotation:  rec.Pose.Rotation,
		ExpiresAt: rec.Expiration,
		CreatedAt: rec.CreatedAt,
		Expired:   rec.Expired(now),
	}
}

// ListAnchorsResponse is the response for GET /api/anchors
type ListAnchorsResponse struct {
	Anchors []AnchorDTO `json:"anchors"`
	Count   int         `json:"count"`
}

// DeleteAnchorResponse is the response for DELETE /api/anchors/{id}
type DeleteAnchorResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// PurgeResponse is the response for POST /api/anchors/purge
type PurgeResponse struct {
	Message string `json:"message"`
	Removed int64  `json:"removed"`
}

// MetricsResponse provides server health and database metrics
type MetricsResponse struct {
	Status       string `json:"status"`
	DatabasePath string `json:"database_path"`
	AnchorCount  int64  `json:"anchor_count"`
	ExpiredCount int    `json:"expired_count"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
