package anchorsync

import (
	"context"
	"fmt"
	"sort"

	"github.com/himanishpuri/AnchorSync/pkg/models"
	"github.com/himanishpuri/AnchorSync/pkg/utils"
)

// binding is the capability that lets an object hold a cloud anchor record.
// record is pending while it has no identifier.
type binding struct {
	record *models.CloudAnchorRecord
}

// LocalAnchoredObject is a spawned spatial object. While bound, its pose is
// always the bound record's pose.
type LocalAnchoredObject struct {
	id      string
	pose    models.Pose
	visual  Visual
	binding *binding
}

func (o *LocalAnchoredObject) ID() string        { return o.id }
func (o *LocalAnchoredObject) Pose() models.Pose { return o.pose }

// CanBind reports whether the object was built with the binding capability.
func (o *LocalAnchoredObject) CanBind() bool { return o.binding != nil }

// Record returns a copy of the attached record, pending or bound.
func (o *LocalAnchoredObject) Record() *models.CloudAnchorRecord {
	if o.binding == nil {
		return nil
	}
	return o.binding.record.Clone()
}

// Bound reports whether the object is tied to a persisted record.
func (o *LocalAnchoredObject) Bound() bool {
	return o.binding != nil && o.binding.record.HasID()
}

func (o *LocalAnchoredObject) applyPose(p models.Pose) {
	o.pose = p
	if o.visual != nil {
		o.visual.SetPose(p)
	}
}

func (o *LocalAnchoredObject) bind(rec *models.CloudAnchorRecord) {
	o.binding.record = rec.Clone()
	o.applyPose(rec.Pose)
}

func (o *LocalAnchoredObject) attachPending(rec *models.CloudAnchorRecord) {
	o.binding.record = rec.Clone()
}

func (o *LocalAnchoredObject) unbind() {
	if o.binding != nil {
		o.binding.record = nil
	}
}

// ObjectSnapshot is a read-only copy of an object's state.
type ObjectSnapshot struct {
	ID      string
	Pose    models.Pose
	Record  *models.CloudAnchorRecord
	Bound   bool
	CanBind bool
}

func (o *LocalAnchoredObject) snapshot() ObjectSnapshot {
	return ObjectSnapshot{
		ID:      o.id,
		Pose:    o.pose,
		Record:  o.Record(),
		Bound:   o.Bound(),
		CanBind: o.CanBind(),
	}
}

// ObjectStore maps object ids to local objects and tracks the current one.
// Every mutation must carry the ctx of a running dispatched action.
type ObjectStore struct {
	objects    map[string]*LocalAnchoredObject
	current    string
	dispatcher *Dispatcher
	log        Logger
}

func NewObjectStore(d *Dispatcher, log Logger) *ObjectStore {
	return &ObjectStore{
		objects:    make(map[string]*LocalAnchoredObject),
		dispatcher: d,
		log:        log,
	}
}

func (s *ObjectStore) guard(ctx context.Context, op string) error {
	if s.dispatcher != nil && !s.dispatcher.Owns(ctx) {
		s.log.Errorf("refusing %s: %v", op, ErrOffContextMutation)
		return fmt.Errorf("%s: %w", op, ErrOffContextMutation)
	}
	return nil
}

// Current returns the object placement acts on, or nil.
func (s *ObjectStore) Current() *LocalAnchoredObject {
	return s.objects[s.current]
}

func (s *ObjectStore) Get(id string) *LocalAnchoredObject {
	return s.objects[id]
}

func (s *ObjectStore) Len() int {
	return len(s.objects)
}

// IDs returns the stored object ids in sorted order.
func (s *ObjectStore) IDs() []string {
	ids := make([]string, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// spawn creates an object with the binding capability and makes it current.
func (s *ObjectStore) spawn(pose models.Pose, visual Visual) *LocalAnchoredObject {
	obj := &LocalAnchoredObject{
		id:      utils.GenerateUUID(),
		visual:  visual,
		binding: &binding{},
	}
	obj.applyPose(pose)
	s.objects[obj.id] = obj
	s.current = obj.id
	return obj
}

// Adopt registers an object created elsewhere. It has no binding capability.
func (s *ObjectStore) Adopt(ctx context.Context, pose models.Pose, visual Visual) (*LocalAnchoredObject, error) {
	if err := s.guard(ctx, "adopt"); err != nil {
		return nil, err
	}
	obj := &LocalAnchoredObject{
		id:     utils.GenerateUUID(),
		visual: visual,
	}
	obj.applyPose(pose)
	s.objects[obj.id] = obj
	s.current = obj.id
	return obj, nil
}

func (s *ObjectStore) remove(id string) *LocalAnchoredObject {
	obj, ok := s.objects[id]
	if !ok {
		return nil
	}
	delete(s.objects, id)
	if s.current == id {
		s.current = ""
	}
	return obj
}
