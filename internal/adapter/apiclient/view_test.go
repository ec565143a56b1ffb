package apiclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedgerView_ProvisionalUntilReconciled(t *testing.T) {
	api := newFakeAPI("PAPARA")
	api.setStored(april2, "PAPARA", "100")
	srv := api.start(t)
	c := api.client(t, srv)
	view := NewLedgerView(c, time.Minute)
	ctx := context.Background()

	_, err := view.Load(ctx, 2024, 4)
	require.NoError(t, err)

	got, provisional := view.Value(april2, "PAPARA", domain.KindAllocation)
	assert.True(t, got.Equal(dec("100")))
	assert.False(t, provisional)

	_, err = view.Saver(c).SaveOverride(ctx, allocation("PAPARA", "250"))
	require.NoError(t, err)

	got, provisional = view.Value(april2, "papara", domain.KindAllocation)
	assert.True(t, got.Equal(dec("250")))
	assert.True(t, provisional)

	// a failed refetch keeps what is on screen
	api.setFailLedger(true)
	err = view.Reconcile(ctx, april2)
	require.Error(t, err)
	got, provisional = view.Value(april2, "PAPARA", domain.KindAllocation)
	assert.True(t, got.Equal(dec("250")))
	assert.True(t, provisional)
	month, ok := view.Month(2024, 4)
	require.True(t, ok)
	assert.True(t, month.PSPs[0].Days[1].Allocation.Amount.Equal(dec("100")))

	api.setFailLedger(false)
	require.NoError(t, view.Reconcile(ctx, april2))
	got, provisional = view.Value(april2, "PAPARA", domain.KindAllocation)
	assert.True(t, got.Equal(dec("250")))
	assert.False(t, provisional)
	assert.Equal(t, 0, view.Pending())
}

func TestLedgerView_ReconcilePicksUpConcurrentEdits(t *testing.T) {
	api := newFakeAPI("PAPARA")
	srv := api.start(t)
	c := api.client(t, srv)
	view := NewLedgerView(c, time.Minute)
	ctx := context.Background()

	_, err := view.Saver(c).SaveOverride(ctx, allocation("PAPARA", "250"))
	require.NoError(t, err)

	// another session wins the cell before the refetch
	api.setStored(april2, "PAPARA", "300")
	require.NoError(t, view.Reconcile(ctx, april2))

	got, provisional := view.Value(april2, "PAPARA", domain.KindAllocation)
	assert.True(t, got.Equal(dec("300")))
	assert.False(t, provisional)
}

func TestLedgerView_FailedSaveKeepsValue(t *testing.T) {
	api := newFakeAPI("PAPARA")
	api.setStored(april2, "PAPARA", "100")
	api.reject["PAPARA"] = true
	srv := api.start(t)
	c := api.client(t, srv)
	view := NewLedgerView(c, time.Minute)
	ctx := context.Background()

	_, err := view.Load(ctx, 2024, 4)
	require.NoError(t, err)

	_, err = view.Saver(c).SaveOverride(ctx, allocation("PAPARA", "999"))
	require.ErrorIs(t, err, domain.ErrValidation)

	got, provisional := view.Value(april2, "PAPARA", domain.KindAllocation)
	assert.True(t, got.Equal(dec("100")))
	assert.False(t, provisional)
	assert.Equal(t, 0, view.Pending())
}

func TestBulkAllocationOverClient(t *testing.T) {
	api := newFakeAPI("ININAL", "PAPARA", "PAYCELL", "PEP", "TETHER")
	api.reject["PEP"] = true
	srv := api.start(t)
	c := api.client(t, srv)
	view := NewLedgerView(c, time.Minute)

	uc := usecase.NewBulkAllocationUseCase(view.Saver(c), c, view, 2, zerolog.Nop(), nil)
	result, err := uc.Allocate(context.Background(), usecase.BulkAllocationInput{
		Date: april2,
		Amounts: map[string]decimal.Decimal{
			"ININAL":  dec("10"),
			"PAPARA":  dec("20"),
			"PAYCELL": dec("30"),
			"PEP":     dec("40"),
			"TETHER":  dec("50"),
		},
		Actor: "alice",
	})

	var partial *usecase.PartialBulkFailure
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{"PEP"}, partial.Failed)
	require.NotNil(t, result)
	assert.Len(t, result.Succeeded(), 4)
	assert.NoError(t, result.ReconcileErr)

	_, _, ledgerReads, _ := api.stats()
	assert.Equal(t, 1, ledgerReads)

	got, provisional := view.Value(april2, "PAPARA", domain.KindAllocation)
	assert.True(t, got.Equal(dec("20")))
	assert.False(t, provisional)
	got, _ = view.Value(april2, "PEP", domain.KindAllocation)
	assert.True(t, got.IsZero())
}
