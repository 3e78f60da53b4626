// internal/events/fanout.go
package events

import (
	"fmt"

	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/sirupsen/logrus"
)

// Fanout forwards every event to each sink in order. A sink that panics is
// logged and skipped; the rest still receive the event.
type Fanout struct {
	sinks  []lobby.Notifier
	logger logrus.FieldLogger
}

// NewFanout builds a Fanout over the non-nil sinks.
func NewFanout(logger logrus.FieldLogger, sinks ...lobby.Notifier) *Fanout {
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Notify implements lobby.Notifier.
func (f *Fanout) Notify(evt lobby.Event) {
	for _, s := range f.sinks {
		f.notifyOne(s, evt)
	}
}

func (f *Fanout) notifyOne(s lobby.Notifier, evt lobby.Event) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.WithFields(logrus.Fields{
				"event":    evt.Type,
				"lobby_id": evt.LobbyID,
				"sink":     fmt.Sprintf("%T", s),
			}).Errorf("event sink panicked: %v", r)
		}
	}()
	s.Notify(evt)
}

// LogNotifier writes every event to the logger at debug level.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

// Notify implements lobby.Notifier.
func (n LogNotifier) Notify(evt lobby.Event) {
	n.Logger.WithFields(logrus.Fields{
		"event":          evt.Type,
		"lobby_id":       evt.LobbyID,
		"application_id": evt.ApplicationID,
		"user_id":        evt.UserID,
	}).Debug("lobby event")
}
