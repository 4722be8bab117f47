package notifications

import (
	"context"
	"errors"
)

// Event identifies a notification type.
type Event string

const (
	EventFolderStatus Event = "folder_status"
	EventJobStatus    Event = "job_status"
	EventTest         Event = "test"
)

// Payload carries event-specific fields.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// JobStatusMessage is the fixed message of job status events.
const JobStatusMessage = "Job status update"

// FolderStatusPayload builds the folder_status body. err is attached when the
// job body failed.
func FolderStatusPayload(hash, path string, status FolderStatus, err error) Payload {
	p := Payload{"hash": hash, "path": path, "status": status}
	if err != nil {
		p["error"] = err.Error()
	}
	return p
}

// JobStatusPayload builds the job_status body for one finished job. exc is
// the serialized error when the job's result was one.
func JobStatusPayload(meta any, exc any) Payload {
	p := Payload{
		"message":   JobStatusMessage,
		"num_jobs":  1,
		"job_metas": []any{meta},
	}
	if exc != nil {
		p["exc"] = exc
	}
	return p
}

// Fanout publishes to every service and joins their errors.
func Fanout(services ...Service) Service {
	var live []Service
	for _, s := range services {
		if s != nil {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return noopService{}
	case 1:
		return live[0]
	}
	return fanout(live)
}

type fanout []Service

func (f fanout) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop returns a Service that drops every event.
func Noop() Service { return noopService{} }

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
