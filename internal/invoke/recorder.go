package invoke

import (
	"context"
	"sync"
)

// Recorder is an Invoker that stores every call it receives. Fail, when set,
// decides the returned error per call.
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	Fail func(Call) error
}

func (r *Recorder) Invoke(_ context.Context, call Call) error {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail(call)
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
