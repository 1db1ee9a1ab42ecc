package anchorsync

import (
	"context"

	"github.com/himanishpuri/AnchorSync/pkg/models"
)

// RemoteService is the remote anchoring service. Notifications registered with
// Subscribe may be delivered on any goroutine.
type RemoteService interface {
	CreateSession(ctx context.Context) error
	StartSession(ctx context.Context) error
	StopSession()
	ResetSession(ctx context.Context) error
	IsReadyForCreate() bool
	RecommendedProgress() float64
	CreateAnchor(ctx context.Context, record models.CloudAnchorRecord) (*models.CloudAnchorRecord, error)
	DeleteAnchor(ctx context.Context, record models.CloudAnchorRecord) error
	CreateWatcher(criteria LocateCriteria) (Watcher, error)
	Subscribe(listener Listener)
}

// Watcher is one in-flight locate operation.
type Watcher interface {
	ID() int
	Stop()
}

// Listener receives the remote service's asynchronous signals.
type Listener interface {
	OnSessionStarted()
	OnSessionUpdated(status models.SessionStatus)
	OnAnchorLocated(event models.AnchorLocatedEvent)
	OnLocateCompleted(event models.LocateCompletedEvent)
	OnDiagnostic(message string)
	OnError(message string)
}

// Renderer produces the visual representation of anchored objects.
type Renderer interface {
	Spawn(pose models.Pose) (Visual, error)
}

// Visual is a rendered object owned by a LocalAnchoredObject.
type Visual interface {
	SetPose(pose models.Pose)
	Destroy()
}

// Storage persists anchor records on behalf of an anchoring service.
type Storage interface {
	CreateAnchor(record models.CloudAnchorRecord) (models.CloudAnchorRecord, error)
	GetAnchor(id string) (*models.CloudAnchorRecord, error)
	GetAnchorsByIDs(ids []string) (map[string]models.CloudAnchorRecord, error)
	DeleteAnchor(id string) error
	ListAnchors() ([]models.CloudAnchorRecord, error)
	CountAnchors() (int64, error)
	PurgeExpired() (int64, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
