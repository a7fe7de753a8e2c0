package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/lead-resolver/internal/alert"
	"github.com/sells-group/lead-resolver/internal/lead"
	"github.com/sells-group/lead-resolver/internal/model"
)

// --- Resolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, id model.Identity, meta model.LeadMeta) model.MergedLead {
	args := m.Called(ctx, id, meta)
	return args.Get(0).(model.MergedLead)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Upsert(ctx context.Context, l model.MergedLead) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

func (m *mockStore) ListWithoutPhone(ctx context.Context, limit int) ([]lead.Row, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]lead.Row), args.Error(1)
}

func (m *mockStore) Get(ctx context.Context, sourceID string) (*lead.Row, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lead.Row), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Notifier Mock ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, l model.MergedLead) alert.Outcome {
	args := m.Called(ctx, l)
	return args.Get(0).(alert.Outcome)
}
