package anchorsync

import (
	"context"
	"fmt"

	"github.com/himanishpuri/AnchorSync/pkg/models"
)

type Placement struct {
	store    *ObjectStore
	renderer Renderer
	log      Logger
}

func NewPlacement(store *ObjectStore, renderer Renderer, log Logger) *Placement {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	return &Placement{store: store, renderer: renderer, log: log}
}

// PlaceOrMove spawns the current object at pose, or moves it there. When record
// is given the object is bound to it and takes the record's pose instead.
// Moving a bound object without a record releases its binding. ctx must be
// the one handed to the running dispatched action.
func (p *Placement) PlaceOrMove(ctx context.Context, pose models.Pose, record *models.CloudAnchorRecord) (*LocalAnchoredObject, error) {
	if err := p.store.guard(ctx, "place or move"); err != nil {
		return nil, err
	}

	obj := p.store.Current()
	if obj == nil {
		visual, err := p.renderer.Spawn(pose)
		if err != nil {
			p.log.Errorf("spawn failed: %s", describeError(err))
			return nil, fmt.Errorf("spawn anchored object: %w", err)
		}
		obj = p.store.spawn(pose, visual)
		if record != nil {
			obj.bind(record)
			p.log.Infof("spawned object %s bound to anchor %s at %s", obj.id, record.ID, obj.pose)
		} else {
			p.log.Infof("spawned object %s at %s", obj.id, obj.pose)
		}
		return obj, nil
	}

	if !obj.CanBind() {
		p.log.Warnf("object %s is missing the cloud anchor binding capability", obj.id)
		return nil, fmt.Errorf("object %s: %w", obj.id, ErrMissingBindingCapability)
	}

	if record != nil {
		obj.bind(record)
		p.log.Infof("rebound object %s to anchor %s at %s", obj.id, record.ID, obj.pose)
		return obj, nil
	}

	if obj.Bound() {
		p.log.Infof("object %s released anchor %s to move freely", obj.id, obj.binding.record.ID)
		obj.unbind()
	}
	obj.applyPose(pose)
	p.log.Debugf("moved object %s to %s", obj.id, obj.pose)
	return obj, nil
}

// Cleanup destroys the current object and its visual. The remote record is untouched.
func (p *Placement) Cleanup(ctx context.Context) error {
	if err := p.store.guard(ctx, "cleanup"); err != nil {
		return err
	}
	obj := p.store.Current()
	if obj == nil {
		return nil
	}
	p.store.remove(obj.id)
	if obj.visual != nil {
		obj.visual.Destroy()
	}
	p.log.Infof("destroyed object %s", obj.id)
	return nil
}

// NopRenderer spawns visuals that only remember their pose.
type NopRenderer struct{}

func (NopRenderer) Spawn(pose models.Pose) (Visual, error) {
	return &nopVisual{pose: pose}, nil
}

type nopVisual struct {
	pose      models.Pose
	destroyed bool
}

func (v *nopVisual) SetPose(pose models.Pose) { v.pose = pose }
func (v *nopVisual) Destroy()                 { v.destroyed = true }
