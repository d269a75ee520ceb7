package lifecycle_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/lifecycle"
	"github.com/AntonStoeckl/circulation-engine-go/testutil/helper"
)

func Test_CreateLoan_LogsAndMeasuresSuccess(t *testing.T) {
	// arrange
	ctx := context.Background()
	logSpy := helper.NewLogHandlerSpy(false)
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	tracingSpy := helper.NewTracingCollectorSpy()
	f := givenFixture(t,
		lifecycle.WithLogger(slog.New(logSpy)),
		lifecycle.WithMetrics(metricsSpy),
		lifecycle.WithTracing(tracingSpy),
	)
	item := f.givenItem(t, ctx, 1)
	borrower := f.givenBorrower(t, true)

	// act
	loan, err := f.controller.CreateLoan(ctx, lifecycle.BorrowRequest{ItemID: item.ID, BorrowerID: borrower})

	// assert
	require.NoError(t, err)

	assert.True(t, logSpy.HasInfoLogWithMessage(lifecycle.LogMsgOperationStarted).
		WithAttr(lifecycle.LogAttrOperation, lifecycle.OperationCreateLoan).
		WithAttr(lifecycle.LogAttrItemID, item.ID).
		Assert())
	assert.True(t, logSpy.HasInfoLogWithMessage(lifecycle.LogMsgOperationCompleted).
		WithAttr(lifecycle.LogAttrLoanID, loan.ID).
		WithAttr(lifecycle.LogAttrStatus, lifecycle.StatusSuccess).
		WithDurationMS().
		Assert())

	assert.True(t, metricsSpy.HasDurationRecordForMetric(lifecycle.OperationDurationMetric).
		WithOperation(lifecycle.OperationCreateLoan).
		WithStatus(lifecycle.StatusSuccess).
		Assert())
	assert.True(t, metricsSpy.HasCounterRecordForMetric(lifecycle.OperationCallsMetric).
		WithOperation(lifecycle.OperationCreateLoan).
		WithStatus(lifecycle.StatusSuccess).
		Assert())

	spans := tracingSpy.GetSpanRecords()
	require.Len(t, spans, 1)
	assert.Equal(t, lifecycle.SpanNameOperation, spans[0].Name)
	assert.Equal(t, lifecycle.OperationCreateLoan, spans[0].StartAttributes[lifecycle.LogAttrOperation])
	assert.Equal(t, item.ID.String(), spans[0].StartAttributes[lifecycle.LogAttrItemID])
	assert.True(t, spans[0].Finished)
	assert.Equal(t, lifecycle.StatusSuccess, spans[0].Status)
}

func Test_CreateLoan_LogsAndCountsRejection(t *testing.T) {
	ctx := context.Background()
	logSpy := helper.NewLogHandlerSpy(false)
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	f := givenFixture(t,
		lifecycle.WithContextualLogger(slog.New(logSpy)),
		lifecycle.WithMetrics(metricsSpy),
	)
	item := f.givenItem(t, ctx, 1)

	_, err := f.controller.CreateLoan(ctx, lifecycle.BorrowRequest{ItemID: item.ID, BorrowerID: f.givenBorrower(t, false)})
	require.Error(t, err)

	assert.True(t, logSpy.HasInfoLogWithMessage(lifecycle.LogMsgOperationRejected).
		WithAttr(lifecycle.LogAttrStatus, lifecycle.StatusRejected).
		WithAttr(lifecycle.LogAttrReason, circulation.ReasonBorrowerIneligible.String()).
		Assert())
	assert.True(t, metricsSpy.HasCounterRecordForMetric(lifecycle.RejectionsMetric).
		WithOperation(lifecycle.OperationCreateLoan).
		WithLabel(lifecycle.LogAttrReason, circulation.ReasonBorrowerIneligible.String()).
		Assert())
}

func Test_ReturnLoan_LabelsNotFoundRejections(t *testing.T) {
	ctx := context.Background()
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	f := givenFixture(t, lifecycle.WithMetrics(metricsSpy))

	_, err := f.controller.ReturnLoan(ctx, uuid.New(), "")
	require.Error(t, err)

	assert.True(t, metricsSpy.HasCounterRecordForMetric(lifecycle.RejectionsMetric).
		WithOperation(lifecycle.OperationReturnLoan).
		WithLabel(lifecycle.LogAttrReason, circulation.EntityLoan+"_not_found").
		Assert())
}

func Test_SweepOverdue_RecordsTransitionCount(t *testing.T) {
	ctx := context.Background()
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	f := givenFixture(t, lifecycle.WithMetrics(metricsSpy))

	_, err := f.controller.SweepOverdue(ctx, helper.FixedNow)
	require.NoError(t, err)

	records := metricsSpy.GetValueRecords()
	require.Len(t, records, 1)
	assert.Equal(t, lifecycle.SweepTransitionsMetric, records[0].Metric)
	assert.Zero(t, records[0].Value)
}

func Test_StatusOf(t *testing.T) {
	testCases := []struct {
		err      error
		expected string
	}{
		{nil, lifecycle.StatusSuccess},
		{context.Canceled, lifecycle.StatusCanceled},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), lifecycle.StatusTimeout},
		{&circulation.RuleViolationError{Reason: circulation.ReasonOutOfStock}, lifecycle.StatusRejected},
		{circulation.NewNotFoundError(circulation.EntityItem, uuid.Nil), lifecycle.StatusNotFound},
		{&circulation.InvariantViolationError{Detail: "drift"}, lifecycle.StatusInvariantViolation},
		{errors.Join(circulation.ErrQueryingFailed, errors.New("boom")), lifecycle.StatusError},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, lifecycle.StatusOf(tc.err))
		})
	}
}
