package instruct

import (
	"context"
	"sync"

	"github.com/casualjim/instruct/events"
	"github.com/casualjim/instruct/response"
)

type person struct {
	Name string `json:"name" validate:"required"`
	Age  int    `json:"age" validate:"gte=0,lte=150"`
}

type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
	City string `json:"city"`
}

type ageOnly struct {
	Age int `json:"age"`
}

type adult struct {
	Age int `json:"age"`
}

func (a adult) Validate() error {
	if a.Age < 18 {
		return response.NewValidationError("age", a.Age, "must be at least 18")
	}
	return nil
}

type recordingHook struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Hook = (*recordingHook)(nil)

func (r *recordingHook) record(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingHook) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type() == typ {
			n++
		}
	}
	return n
}

func (r *recordingHook) ofType(typ string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []events.Event
	for _, e := range r.events {
		if e.Type() == typ {
			result = append(result, e)
		}
	}
	return result
}

func (r *recordingHook) OnFragmentReceived(_ context.Context, e events.FragmentReceived) {
	r.record(e)
}

func (r *recordingHook) OnJSONExtracted(_ context.Context, e events.JSONExtracted) { r.record(e) }

func (r *recordingHook) OnToolCallStarted(_ context.Context, e events.ToolCallStarted) {
	r.record(e)
}

func (r *recordingHook) OnToolCallUpdated(_ context.Context, e events.ToolCallUpdated) {
	r.record(e)
}

func (r *recordingHook) OnToolCallCompleted(_ context.Context, e events.ToolCallCompleted) {
	r.record(e)
}

func (r *recordingHook) OnPartialObject(_ context.Context, e events.PartialObject) { r.record(e) }

func (r *recordingHook) OnRecoveryAttempt(_ context.Context, e events.RecoveryAttempt) {
	r.record(e)
}

func (r *recordingHook) OnRecoveryLimitReached(_ context.Context, e events.RecoveryLimitReached) {
	r.record(e)
}

func (r *recordingHook) OnFinalObject(_ context.Context, e events.FinalObject) { r.record(e) }

func (r *recordingHook) OnError(_ context.Context, e events.Error) { r.record(e) }
