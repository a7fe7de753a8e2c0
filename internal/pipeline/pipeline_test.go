package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/alert"
	"github.com/sells-group/lead-resolver/internal/lead"
	"github.com/sells-group/lead-resolver/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testInput() (model.Identity, model.LeadMeta) {
	id := model.NewIdentity("Jane Doe", "Austin", "TX", "")
	meta := model.LeadMeta{SourceID: "lead-1", DisplayName: "Jane Doe", LeadType: "pool"}
	return id, meta
}

func TestRun_PhoneStoresThenAlerts(t *testing.T) {
	id, meta := testInput()
	merged := model.MergedLead{SourceID: "lead-1", Name: "Jane Doe", LeadType: "pool", Phone: "5125550100"}

	var order []string
	res := &mockResolver{}
	res.On("Resolve", mock.Anything, id, meta).Return(merged)
	st := &mockStore{}
	st.On("Upsert", mock.Anything, merged).Run(func(mock.Arguments) { order = append(order, "upsert") }).Return(nil)
	n := &mockNotifier{}
	n.On("Notify", mock.Anything, merged).Run(func(mock.Arguments) { order = append(order, "notify") }).
		Return(alert.Outcome{OK: true})

	out, err := New(res, st, n).Run(context.Background(), id, meta)
	require.NoError(t, err)
	assert.True(t, out.Alerted)
	require.NotNil(t, out.Alert)
	assert.Equal(t, []string{"upsert", "notify"}, order)
	res.AssertExpectations(t)
	st.AssertExpectations(t)
	n.AssertExpectations(t)
}

func TestRun_NoPhoneNoAlert(t *testing.T) {
	id, meta := testInput()
	merged := model.MergedLead{SourceID: "lead-1", Name: "Jane Doe", LeadType: "pool"}

	res := &mockResolver{}
	res.On("Resolve", mock.Anything, id, meta).Return(merged)
	st := &mockStore{}
	st.On("Upsert", mock.Anything, merged).Return(nil)
	n := &mockNotifier{}

	out, err := New(res, st, n).Run(context.Background(), id, meta)
	require.NoError(t, err)
	assert.False(t, out.Alerted)
	assert.Nil(t, out.Alert)
	n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestRun_StoreErrorPropagatesWithoutAlert(t *testing.T) {
	id, meta := testInput()
	merged := model.MergedLead{SourceID: "lead-1", Name: "Jane Doe", LeadType: "pool", Phone: "5125550100"}

	res := &mockResolver{}
	res.On("Resolve", mock.Anything, id, meta).Return(merged)
	st := &mockStore{}
	st.On("Upsert", mock.Anything, merged).Return(eris.New("connection refused"))
	n := &mockNotifier{}

	out, err := New(res, st, n).Run(context.Background(), id, meta)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "pipeline: store lead lead-1")
	n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestRun_AlertFailureIsNotAnError(t *testing.T) {
	id, meta := testInput()
	merged := model.MergedLead{SourceID: "lead-1", Name: "Jane Doe", LeadType: "pool", Phone: "5125550100"}

	res := &mockResolver{}
	res.On("Resolve", mock.Anything, id, meta).Return(merged)
	st := &mockStore{}
	st.On("Upsert", mock.Anything, merged).Return(nil)
	n := &mockNotifier{}
	n.On("Notify", mock.Anything, merged).Return(alert.Outcome{Err: eris.New("timeout")})

	out, err := New(res, st, n).Run(context.Background(), id, meta)
	require.NoError(t, err)
	assert.False(t, out.Alerted)
	require.NotNil(t, out.Alert)
	assert.Error(t, out.Alert.Err)
}

func TestRun_NilNotifier(t *testing.T) {
	id, meta := testInput()
	merged := model.MergedLead{SourceID: "lead-1", Phone: "5125550100"}

	res := &mockResolver{}
	res.On("Resolve", mock.Anything, id, meta).Return(merged)
	st := &mockStore{}
	st.On("Upsert", mock.Anything, merged).Return(nil)

	out, err := New(res, st, nil).Run(context.Background(), id, meta)
	require.NoError(t, err)
	assert.False(t, out.Alerted)
}

func TestRun_RequiresSourceID(t *testing.T) {
	id, meta := testInput()
	meta.SourceID = " "
	res := &mockResolver{}
	st := &mockStore{}

	_, err := New(res, st, nil).Run(context.Background(), id, meta)
	require.Error(t, err)
	res.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunBatch(t *testing.T) {
	rows := []lead.Row{
		{SourceID: "a", Name: "Ann Lee", City: "Austin", State: "TX", LeadType: "pool"},
		{SourceID: "b", Name: "Bo Chan", City: "Waco", State: "TX", LeadType: "handyman"},
		{SourceID: "c", Name: "Cy Moss", City: "Tyler", State: "TX", LeadType: "lawncare"},
	}
	st := &mockStore{}
	st.On("ListWithoutPhone", mock.Anything, 25).Return(rows, nil)

	res := &mockResolver{}
	found := model.MergedLead{SourceID: "a", Name: "Ann Lee", LeadType: "pool", Phone: "5125550100"}
	missing := model.MergedLead{SourceID: "b", Name: "Bo Chan", LeadType: "handyman"}
	broken := model.MergedLead{SourceID: "c", Name: "Cy Moss", LeadType: "lawncare"}
	res.On("Resolve", mock.Anything, rows[0].Identity(), rows[0].Meta()).Return(found)
	res.On("Resolve", mock.Anything, rows[1].Identity(), rows[1].Meta()).Return(missing)
	res.On("Resolve", mock.Anything, rows[2].Identity(), rows[2].Meta()).Return(broken)

	st.On("Upsert", mock.Anything, found).Return(nil)
	st.On("Upsert", mock.Anything, missing).Return(nil)
	st.On("Upsert", mock.Anything, broken).Return(eris.New("disk full"))

	n := &mockNotifier{}
	n.On("Notify", mock.Anything, found).Return(alert.Outcome{OK: true})

	summary, err := New(res, st, n).RunBatch(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, BatchSummary{Total: 3, Resolved: 1, Alerted: 1, Failed: 1}, summary)
	n.AssertNumberOfCalls(t, "Notify", 1)
}

func TestRunBatch_ListError(t *testing.T) {
	st := &mockStore{}
	st.On("ListWithoutPhone", mock.Anything, 10).Return(nil, eris.New("boom"))

	_, err := New(&mockResolver{}, st, nil).RunBatch(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: list leads without phone")
}

func TestRunBatch_Cancelled(t *testing.T) {
	st := &mockStore{}
	st.On("ListWithoutPhone", mock.Anything, 10).Return([]lead.Row{{SourceID: "a", Name: "Ann Lee"}}, nil)
	res := &mockResolver{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := New(res, st, nil).RunBatch(ctx, 10)
	require.Error(t, err)
	assert.Zero(t, summary.Total)
	res.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunBatch_ResendsStoredDescription(t *testing.T) {
	row := lead.Row{SourceID: "d", Name: "Dee Park", City: "Austin", State: "TX", Description: "Need my pool cleaned weekly | FTN Address: 1 Main St"}
	st := &mockStore{}
	st.On("ListWithoutPhone", mock.Anything, 5).Return([]lead.Row{row}, nil)

	res := &mockResolver{}
	resolved := model.MergedLead{SourceID: "d", Name: "Dee Park", DescriptionParts: []string{row.Description, "Melissa Email: dee@example.com"}}
	res.On("Resolve", mock.Anything, row.Identity(), mock.MatchedBy(func(m model.LeadMeta) bool {
		return m.Description == row.Description
	})).Return(resolved)
	st.On("Upsert", mock.Anything, resolved).Return(nil)

	summary, err := New(res, st, nil).RunBatch(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, BatchSummary{Total: 1}, summary)
	res.AssertExpectations(t)
	st.AssertExpectations(t)
}
