package notifier

import (
	"log/slog"
)

type SLogNotifier struct {
	Logger *slog.Logger
}

var _ Notifier = &SLogNotifier{}

func (s SLogNotifier) Notify(change Change) {
	s.Logger.Info(change.Location+": "+change.State, "reason", change.Reason)
}
