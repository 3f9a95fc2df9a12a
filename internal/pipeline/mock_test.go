package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/pkg/engine"
)

// --- Engine Mock ---

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Evaluate(ctx context.Context, rec *model.LedgerRecord) (*model.Artifact, error) {
	args := m.Called(ctx, rec)
	if fn, ok := args.Get(0).(func(context.Context, *model.LedgerRecord) *model.Artifact); ok {
		return fn(ctx, rec), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Artifact), args.Error(1)
}

func (m *mockEngine) JudgePacket(ctx context.Context, req engine.PacketRequest) ([]byte, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

var _ engine.Client = (*mockEngine)(nil)

func ledger(tenant string) *model.LedgerRecord {
	balance := 120.75
	notice := true
	return &model.LedgerRecord{TenantID: tenant, DueDate: "2024-05-01", Balance: &balance, NoNoticeSent: &notice}
}

func artifact(id, tenant, status, ts string) *model.Artifact {
	return &model.Artifact{ArtifactID: id, TenantID: tenant, Status: status, Timestamp: ts}
}
