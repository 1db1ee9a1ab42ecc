package models

import (
	"fmt"
	"math"
	"time"
)

// Vector3 is a world-space position in meters.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is a world-space rotation.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityRotation returns the zero rotation (angle 0 around the up axis).
func IdentityRotation() Quaternion {
	return Quaternion{W: 1}
}

// Pose is a position plus an orientation in world space.
type Pose struct {
	Position Vector3    `json:"position"`
	Rotation Quaternion `json:"rotation"`
}

// NewPose builds an upright pose at the given point.
func NewPose(x, y, z float64) Pose {
	return Pose{
		Position: Vector3{X: x, Y: y, Z: z},
		Rotation: IdentityRotation(),
	}
}

// Distance returns the positional drift between two poses.
func (p Pose) Distance(other Pose) float64 {
	dx := p.Position.X - other.Position.X
	dy := p.Position.Y - other.Position.Y
	dz := p.Position.Z - other.Position.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.Position.X, p.Position.Y, p.Position.Z)
}

// CloudAnchorRecord is an anchor persisted by the remote anchoring service.
// ID stays empty until the service accepts the create.
type CloudAnchorRecord struct {
	ID         string     `json:"id,omitempty"`
	Pose       Pose       `json:"pose"`
	Expiration *time.Time `json:"expiration,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
}

// HasID reports whether the service has assigned an identifier.
func (r *CloudAnchorRecord) HasID() bool {
	return r != nil && r.ID != ""
}

// Expired reports whether the record's expiration is at or before now.
func (r *CloudAnchorRecord) Expired(now time.Time) bool {
	if r == nil || r.Expiration == nil {
		return false
	}
	return !r.Expiration.After(now)
}

// Clone returns a deep copy so callers never share the expiration pointer.
func (r *CloudAnchorRecord) Clone() *CloudAnchorRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Expiration != nil {
		exp := *r.Expiration
		out.Expiration = &exp
	}
	return &out
}
