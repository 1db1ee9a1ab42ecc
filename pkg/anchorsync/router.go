package anchorsync

import (
	"context"

	"github.com/himanishpuri/AnchorSync/pkg/models"
)

// signalRouter fans remote signals into the event log and hands every one to
// the owning context before any coordinator or observer sees it.
type signalRouter struct {
	dispatcher *Dispatcher
	locate     *LocateCoordinator
	observer   Listener
	events     *EventLog
	log        Logger
}

func (r *signalRouter) dispatch(name string, fn func()) {
	if err := r.dispatcher.Schedule(func(context.Context) { fn() }); err != nil {
		r.log.Warnf("dropping %s signal: %v", name, err)
	}
}

func (r *signalRouter) OnSessionStarted() {
	r.events.Add(EventSignal, "event: SessionStarted")
	r.dispatch("session-started", func() {
		if r.observer != nil {
			r.observer.OnSessionStarted()
		}
	})
}

func (r *signalRouter) OnSessionUpdated(status models.SessionStatus) {
	r.events.Add(EventDiagnostic, "event: SessionUpdated (recommended %.0f%%)", status.RecommendedForCreateProgress*100)
	r.dispatch("session-updated", func() {
		if r.observer != nil {
			r.observer.OnSessionUpdated(status)
		}
	})
}

func (r *signalRouter) OnAnchorLocated(event models.AnchorLocatedEvent) {
	r.events.Add(EventSignal, "event: AnchorLocated %s %s", event.Identifier, event.Status)
	r.dispatch("anchor-located", func() {
		r.locate.OnLocated(event)
		if r.observer != nil {
			r.observer.OnAnchorLocated(event)
		}
	})
}

func (r *signalRouter) OnLocateCompleted(event models.LocateCompletedEvent) {
	r.events.Add(EventSignal, "event: LocateAnchorsCompleted (watcher %d)", event.WatcherID)
	r.dispatch("locate-completed", func() {
		r.locate.OnLocateCompleted(event)
		if r.observer != nil {
			r.observer.OnLocateCompleted(event)
		}
	})
}

func (r *signalRouter) OnDiagnostic(message string) {
	r.events.Add(EventDiagnostic, "event: LogDebug: %s", message)
	r.dispatch("diagnostic", func() {
		if r.observer != nil {
			r.observer.OnDiagnostic(message)
		}
	})
}

func (r *signalRouter) OnError(message string) {
	r.events.Add(EventError, "event: Error: %s", message)
	r.dispatch("error", func() {
		if r.observer != nil {
			r.observer.OnError(message)
		}
	})
}
