package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"gigflow/engagement"
)

type fakeReader struct {
	record engagement.Record
	err    error
}

func (f *fakeReader) GetTx(_ context.Context, _ pgx.Tx, _ string) (engagement.Record, error) {
	return f.record, f.err
}

type fakeGateway struct {
	orderRef string
	err      error
	calls    int
}

func (f *fakeGateway) CreateOrder(_ context.Context, _ string, _ int64) (string, error) {
	f.calls++
	return f.orderRef, f.err
}

func TestCreateIntent_Validation(t *testing.T) {
	svc := NewService(nil, nil, &fakeGateway{}, NewSigner("s"), nil, &fakeReader{})

	if _, err := svc.CreateIntent(context.Background(), CreateIntentParams{Amount: 100}); err == nil {
		t.Fatalf("expected error for missing engagement id")
	}
	if _, err := svc.CreateIntent(context.Background(), CreateIntentParams{EngagementID: "e1"}); err == nil {
		t.Fatalf("expected error for non-positive amount")
	}
}

func TestCreateIntent_ForeignCompanyForbidden(t *testing.T) {
	pool := &fakePool{}
	reader := &fakeReader{record: engagement.Record{
		ID: "e1", CompanyID: "comp-1", Status: engagement.StatusPending,
	}}
	svc := NewService(pool, nil, &fakeGateway{}, NewSigner("s"), nil, reader)

	_, err := svc.CreateIntent(context.Background(), CreateIntentParams{
		EngagementID: "e1", CompanyID: "comp-2", Amount: 100,
	})
	if !errors.Is(err, engagement.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateIntent_RequiresPendingEngagement(t *testing.T) {
	pool := &fakePool{}
	reader := &fakeReader{record: engagement.Record{
		ID: "e1", CompanyID: "comp-1", Status: engagement.StatusActive,
	}}
	gateway := &fakeGateway{orderRef: "order_1"}
	svc := NewService(pool, nil, gateway, NewSigner("s"), nil, reader)

	_, err := svc.CreateIntent(context.Background(), CreateIntentParams{
		EngagementID: "e1", CompanyID: "comp-1", Amount: 100,
	})
	if !errors.Is(err, engagement.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if gateway.calls != 0 {
		t.Fatalf("gateway must not be called when the engagement cannot fund")
	}
}

func TestCreateIntent_GatewayFailurePersistsNothing(t *testing.T) {
	pool := &fakePool{}
	reader := &fakeReader{record: engagement.Record{
		ID: "e1", CompanyID: "comp-1", Status: engagement.StatusPending,
	}}
	gateway := &fakeGateway{err: ErrGatewayUnavailable}
	svc := NewService(pool, nil, gateway, NewSigner("s"), nil, reader)

	_, err := svc.CreateIntent(context.Background(), CreateIntentParams{
		EngagementID: "e1", CompanyID: "comp-1", Amount: 100,
	})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	for _, tx := range pool.txs {
		if tx.committed {
			t.Fatalf("no transaction may commit when the gateway refuses the order")
		}
	}
}

type fakePool struct {
	txs []*fakeTx
}

func (f *fakePool) Begin(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
