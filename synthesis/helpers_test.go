package synthesis

import (
	"context"
	"errors"
	"sync"
)

type reply struct {
	text string
	err  error
}

func says(text string) reply { return reply{text: text} }

func fails(err error) reply { return reply{err: err} }

// scriptedModel answers each task from its own queue. The last reply of a queue repeats.
type scriptedModel struct {
	mu      sync.Mutex
	replies map[Task][]reply
	calls   []Request
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{replies: make(map[Task][]reply)}
}

func (m *scriptedModel) on(task Task, replies ...reply) *scriptedModel {
	m.replies[task] = append(m.replies[task], replies...)
	return m
}

func (m *scriptedModel) Generate(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	q := m.replies[req.Task]
	if len(q) == 0 {
		return "", &BackendError{Task: req.Task, Op: "scripted", Err: errors.New("no reply scripted")}
	}
	r := q[0]
	if len(q) > 1 {
		m.replies[req.Task] = q[1:]
	}
	return r.text, r.err
}

func (m *scriptedModel) tasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Task
	}
	return out
}

func (m *scriptedModel) callsFor(task Task) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, c := range m.calls {
		if c.Task == task {
			out = append(out, c)
		}
	}
	return out
}

// scriptedRewriter records every request and answers through fn.
type scriptedRewriter struct {
	mu   sync.Mutex
	reqs []RewriteRequest
	fn   func(call int, req RewriteRequest) (string, error)
}

func (r *scriptedRewriter) Rewrite(_ context.Context, req RewriteRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.fn(len(r.reqs)-1, req)
}

type memRecorder struct {
	mu    sync.Mutex
	units []UnitRecord
	runs  []RunRecord
	err   error
}

func (r *memRecorder) RecordUnit(_ context.Context, u UnitRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = append(r.units, u)
	return r.err
}

func (r *memRecorder) RecordRun(_ context.Context, rec RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, rec)
	return r.err
}
