package amqp

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/judge"
)

type fakeDispatcher struct {
	err  error
	refs []domain.TicketRef
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, ref domain.TicketRef) (*judge.Task, error) {
	f.refs = append(f.refs, ref)
	if f.err != nil {
		return nil, f.err
	}
	return &judge.Task{TicketID: ref.ID}, nil
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		dispatchErr error
		want        verdict
		dispatched  bool
	}{
		{name: "accepted", body: `{"ticket_id":42,"language":"Rust"}`, want: verdictAck, dispatched: true},
		{name: "no capacity", body: `{"ticket_id":42,"language":"Cpp"}`, dispatchErr: domain.ErrNoCapacity, want: verdictReject, dispatched: true},
		{name: "shutting down", body: `{"ticket_id":42,"language":"C"}`, dispatchErr: domain.ErrShuttingDown, want: verdictRequeue, dispatched: true},
		{name: "malformed json", body: `{"ticket_id":`, want: verdictReject},
		{name: "unknown language", body: `{"ticket_id":42,"language":"Go"}`, want: verdictReject},
		{name: "missing id", body: `{"language":"C"}`, want: verdictReject},
		{name: "missing language", body: `{"ticket_id":42}`, want: verdictReject},
		{name: "empty language", body: `{"ticket_id":42,"language":""}`, want: verdictReject},
		{name: "language not a string", body: `{"ticket_id":42,"language":2}`, want: verdictReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disp := &fakeDispatcher{err: tt.dispatchErr}
			c := &Consumer{dispatcher: disp, logger: zap.NewNop()}

			if got := c.handle(context.Background(), []byte(tt.body)); got != tt.want {
				t.Errorf("expected verdict %d, got %d", tt.want, got)
			}
			if dispatched := len(disp.refs) == 1; dispatched != tt.dispatched {
				t.Errorf("dispatched = %v, want %v", dispatched, tt.dispatched)
			}
		})
	}
}

func TestHandle_PassesRef(t *testing.T) {
	disp := &fakeDispatcher{}
	c := &Consumer{dispatcher: disp, logger: zap.NewNop()}

	c.handle(context.Background(), []byte(`{"ticket_id":9001,"language":"Cpp"}`))
	if len(disp.refs) != 1 || disp.refs[0].ID != 9001 || disp.refs[0].Language != domain.LangCpp {
		t.Errorf("unexpected dispatched refs %v", disp.refs)
	}
}

func TestClose_Idempotent(t *testing.T) {
	c := &Consumer{closeCh: make(chan struct{}), logger: zap.NewNop()}
	if err := c.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
