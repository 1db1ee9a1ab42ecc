package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoseDistance(t *testing.T) {
	a := NewPose(0, 0, 0)
	b := NewPose(3, 4, 0)
	assert.InDelta(t, 5.0, a.Distance(b), 1e-9)
	assert.Zero(t, a.Distance(a))
	assert.Equal(t, IdentityRotation(), a.Rotation)
}

func TestRecordExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	var nilRec *CloudAnchorRecord
	assert.False(t, nilRec.Expired(now))
	assert.False(t, nilRec.HasID())
	assert.False(t, (&CloudAnchorRecord{}).Expired(now), "no expiration never expires")
	assert.True(t, (&CloudAnchorRecord{Expiration: &past}).Expired(now))
	assert.True(t, (&CloudAnchorRecord{Expiration: &now}).Expired(now))
	assert.False(t, (&CloudAnchorRecord{Expiration: &future}).Expired(now))
}

func TestRecordCloneIsDeep(t *testing.T) {
	exp := time.Now()
	orig := &CloudAnchorRecord{ID: "a", Expiration: &exp}
	clone := orig.Clone()

	*clone.Expiration = exp.Add(time.Hour)
	clone.ID = "b"
	assert.Equal(t, exp, *orig.Expiration)
	assert.Equal(t, "a", orig.ID)

	var nilRec *CloudAnchorRecord
	assert.Nil(t, nilRec.Clone())
}

func TestLocateStatusString(t *testing.T) {
	assert.Equal(t, "Located", StatusLocated.String())
	assert.Equal(t, "NotLocatedAnchorDoesNotExist", StatusNotLocatedAnchorDoesNotExist.String())
}
