package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPenaltyCalculator(t *testing.T) {
	calc := NewPenaltyCalculator(DefaultPenaltyPerMinute)
	expected := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		actual time.Time
		want   int64
	}{
		{"early", expected.Add(-5 * time.Minute), 0},
		{"exactly on time", expected, 0},
		{"one second late", expected.Add(time.Second), 200},
		{"exactly one minute late", expected.Add(time.Minute), 200},
		{"just over one minute", expected.Add(time.Minute + time.Millisecond), 400},
		{"twenty minutes late", expected.Add(20 * time.Minute), 4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.Compute(tt.actual, expected))
			applied, amount := calc.Assess(tt.actual, expected)
			assert.Equal(t, tt.want > 0, applied)
			assert.Equal(t, tt.want, amount)
		})
	}
}

func TestPenaltyCalculator_Monotonic(t *testing.T) {
	calc := NewPenaltyCalculator(0)
	assert.Equal(t, DefaultPenaltyPerMinute, calc.Rate())

	expected := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	prev := int64(0)
	for late := time.Duration(0); late <= 3*time.Hour; late += 37 * time.Second {
		got := calc.Compute(expected.Add(late), expected)
		assert.GreaterOrEqual(t, got, prev)
		assert.Equal(t, got, calc.Compute(expected.Add(late), expected))
		prev = got
	}
}

func TestSettlePenalty(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, balance int64) (*fixture, models.Principal) {
		f := newFixture(t)
		rider := student()
		_, err := f.store.Users().Ensure(ctx, rider)
		require.NoError(t, err)
		_, err = f.store.Users().AddPenalty(ctx, rider.UserID, balance)
		require.NoError(t, err)
		return f, rider
	}

	t.Run("Partial Payment", func(t *testing.T) {
		f, rider := setup(t, 4000)
		res, err := f.settlement.SettlePenalty(ctx, rider, rider.UserID, models.SettlePenaltyRequest{AmountPaid: 1500, PaymentReference: "pi_1"})
		require.NoError(t, err)
		assert.Equal(t, int64(2500), res.User.PenaltyAmount)
		assert.True(t, res.User.HasPenalty)
		assert.Equal(t, "inr", res.Transaction.Currency)
		assert.Equal(t, models.TransactionStatusSucceeded, res.Transaction.Status)
		assert.Equal(t, int64(1500), res.Transaction.Amount)
	})

	t.Run("Overpayment Floors At Zero", func(t *testing.T) {
		f, rider := setup(t, 400)
		res, err := f.settlement.SettlePenalty(ctx, rider, rider.UserID, models.SettlePenaltyRequest{AmountPaid: 1000, PaymentReference: "pi_2"})
		require.NoError(t, err)
		assert.Zero(t, res.User.PenaltyAmount)
		assert.False(t, res.User.HasPenalty)
	})

	t.Run("Duplicate Reference", func(t *testing.T) {
		f, rider := setup(t, 4000)
		_, err := f.settlement.SettlePenalty(ctx, rider, rider.UserID, models.SettlePenaltyRequest{AmountPaid: 1000, PaymentReference: "pi_3"})
		require.NoError(t, err)

		_, err = f.settlement.SettlePenalty(ctx, rider, rider.UserID, models.SettlePenaltyRequest{AmountPaid: 1000, PaymentReference: "pi_3"})
		requireKind(t, err, KindConflict, CodeDuplicatePayment)
		assert.Equal(t, int64(3000), f.user(t, rider.UserID).PenaltyAmount)
	})

	t.Run("Someone Else", func(t *testing.T) {
		f, rider := setup(t, 4000)
		_, err := f.settlement.SettlePenalty(ctx, student(), rider.UserID, models.SettlePenaltyRequest{AmountPaid: 1000, PaymentReference: "pi_4"})
		requireKind(t, err, KindForbidden, CodeForbidden)

		_, err = f.settlement.SettlePenalty(ctx, admin(), rider.UserID, models.SettlePenaltyRequest{AmountPaid: 1000, PaymentReference: "pi_4"})
		assert.NoError(t, err)
	})

	t.Run("Validation", func(t *testing.T) {
		f, rider := setup(t, 4000)
		_, err := f.settlement.SettlePenalty(ctx, rider, rider.UserID, models.SettlePenaltyRequest{AmountPaid: 0, PaymentReference: "pi_5"})
		requireKind(t, err, KindValidation, CodeValidation)

		_, err = f.settlement.SettlePenalty(ctx, rider, rider.UserID, models.SettlePenaltyRequest{AmountPaid: 10, PaymentReference: "  "})
		requireKind(t, err, KindValidation, CodeValidation)

		bad := "not-a-uuid"
		_, err = f.settlement.SettlePenalty(ctx, rider, rider.UserID, models.SettlePenaltyRequest{AmountPaid: 10, PaymentReference: "pi_6", BookingID: &bad})
		requireKind(t, err, KindValidation, CodeValidation)
	})

	t.Run("Unknown User", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.settlement.SettlePenalty(ctx, admin(), uuid.New(), models.SettlePenaltyRequest{AmountPaid: 10, PaymentReference: "pi_7"})
		requireKind(t, err, KindNotFound, CodeUserNotFound)
	})
}

func TestSettlePenalty_Atomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rider := student()
	_, err := f.store.Users().Ensure(ctx, rider)
	require.NoError(t, err)
	_, err = f.store.Users().AddPenalty(ctx, rider.UserID, 4000)
	require.NoError(t, err)

	f.store.FailNext("users.settle_penalty", errors.New("write failed"))
	_, err = f.settlement.SettlePenalty(ctx, rider, rider.UserID, models.SettlePenaltyRequest{AmountPaid: 4000, PaymentReference: "pi_fail"})
	requireKind(t, err, KindInternal, CodeInternal)

	assert.Equal(t, int64(4000), f.user(t, rider.UserID).PenaltyAmount)
	txns, err := f.store.Transactions().List(ctx, models.TransactionFilter{UserID: &rider.UserID})
	require.NoError(t, err)
	assert.Empty(t, txns, "payment row must not outlive the failed settlement")
	assert.Empty(t, f.events.Keys())

	// the same reference is still usable
	res, err := f.settlement.SettlePenalty(ctx, rider, rider.UserID, models.SettlePenaltyRequest{AmountPaid: 4000, PaymentReference: "pi_fail"})
	require.NoError(t, err)
	assert.Zero(t, res.User.PenaltyAmount)
	assert.Equal(t, "pi_fail", res.Transaction.PaymentReference)
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := student(), student()
	for _, p := range []models.Principal{alice, bob} {
		_, err := f.store.Users().Ensure(ctx, p)
		require.NoError(t, err)
		_, err = f.store.Users().AddPenalty(ctx, p.UserID, 1000)
		require.NoError(t, err)
	}

	res, err := f.settlement.SettlePenalty(ctx, alice, alice.UserID, models.SettlePenaltyRequest{AmountPaid: 1000, PaymentReference: "pi_a"})
	require.NoError(t, err)
	_, err = f.settlement.SettlePenalty(ctx, bob, bob.UserID, models.SettlePenaltyRequest{AmountPaid: 1000, PaymentReference: "pi_b"})
	require.NoError(t, err)

	own, err := f.settlement.ListTransactions(ctx, alice, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "pi_a", own[0].PaymentReference)

	all, err := f.settlement.ListTransactions(ctx, admin(), models.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.settlement.ListTransactions(ctx, alice, models.TransactionFilter{UserID: &bob.UserID})
	requireKind(t, err, KindForbidden, CodeForbidden)

	got, err := f.settlement.GetTransaction(ctx, alice, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Transaction.ID, got.ID)

	_, err = f.settlement.GetTransaction(ctx, bob, res.Transaction.ID)
	requireKind(t, err, KindNotFound, CodeTransactionNotFound)

	user, err := f.settlement.GetPenalty(ctx, alice, alice.UserID)
	require.NoError(t, err)
	assert.Zero(t, user.PenaltyAmount)
}
