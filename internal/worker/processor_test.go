package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/pricedrop/internal/model"
	"github.com/dharsanguruparan/pricedrop/internal/queue"
)

type fakeSessions struct {
	session *model.Session
	writes  int
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*model.Session, error) {
	return f.session, nil
}

func (f *fakeSessions) SetStatus(ctx context.Context, id string, status model.SessionStatus) error {
	f.writes++
	return nil
}

func (f *fakeSessions) SaveReport(ctx context.Context, id string, report *model.StructureReport) error {
	f.writes++
	return nil
}

func (f *fakeSessions) MarkFailed(ctx context.Context, id, msg string) error {
	f.writes++
	return nil
}

func (f *fakeSessions) UpdateProgress(ctx context.Context, id string, p model.Progress) error {
	f.writes++
	return nil
}

func (f *fakeSessions) Complete(ctx context.Context, id string, p model.Progress, result model.Result) error {
	f.writes++
	return nil
}

func (f *fakeSessions) Fail(ctx context.Context, id string, p model.Progress, result *model.Result, reason string) error {
	f.writes++
	return nil
}

type countingSink struct {
	calls int
}

func (s *countingSink) SaveBatch(ctx context.Context, sessionID string, batch []model.NormalizedProduct) error {
	s.calls++
	return nil
}

// A redelivered process task against a finished session must return nil
// without running the pipeline or writing to the session, so the recorded
// result stays identical across retries.
func TestProcessSkipsTerminalSession(t *testing.T) {
	for _, status := range []model.SessionStatus{model.SessionCompleted, model.SessionFailed} {
		sessions := &fakeSessions{session: &model.Session{ID: "s1", Status: status}}
		sink := &countingSink{}
		p := NewProcessor(sessions, sink, nil, nil, nil, model.PricingConfig{})

		payload, err := json.Marshal(queue.PricelistPayload{SessionID: "s1", ObjectKey: "pricelists/s1/a.csv", FileName: "a.csv"})
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		task := asynq.NewTask(queue.ProcessPricelistTask, payload)

		if err := p.handleProcess(context.Background(), task); err != nil {
			t.Fatalf("%s session: handleProcess returned %v, want nil", status, err)
		}
		if sessions.writes != 0 {
			t.Errorf("%s session: %d session writes, want none", status, sessions.writes)
		}
		if sink.calls != 0 {
			t.Errorf("%s session: pipeline saved %d batches, want none", status, sink.calls)
		}
	}
}
