package events

import "gmaps-engine/internal/job"

// JobObserver republishes coordinator progress and log entries on the hub.
type JobObserver struct {
	Hub *Hub
}

func (o JobObserver) OnProgress(p job.Progress) error {
	o.Hub.Publish(MakeEvent(p.OperationID, TypeProgress, 1, p))
	return nil
}

func (o JobObserver) OnLog(e job.LogEntry) error {
	o.Hub.Publish(MakeEvent(e.OperationID, TypeLog, 1, e))
	return nil
}
