package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/backend/internal/config"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/memory"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", ManagerPIN: "739154"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "1234"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "123456"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "987654"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "777777"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "123123"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "73915a"},
	}
	for _, cfg := range cases {
		assert.Error(t, validateSecurityConfig(cfg), "pin %q", cfg.ManagerPIN)
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	require.NoError(t, err)
}

func TestSeedDemoHistoryImportsOnceIntoMemory(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	repo := memory.NewWithDevUsers()
	cfg := config.Config{DemoSeedDays: 3, DemoSeed: 7, Location: loc}
	require.NoError(t, seedDemoHistory(ctx, repo, cfg))

	sales, err := repo.ListSales(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.NotEmpty(t, sales)
	today := time.Now().In(loc).Format(time.DateOnly)
	for _, sale := range sales {
		assert.Less(t, sale.CreatedAt.In(loc).Format(time.DateOnly), today)
	}

	assert.ErrorIs(t, seedDemoHistory(ctx, repo, cfg), store.ErrConflict)
}

func TestSeedDemoHistoryLedgerChainsPerMedicine(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	repo := memory.NewWithDevUsers()
	require.NoError(t, seedDemoHistory(ctx, repo, config.Config{DemoSeedDays: 5, DemoSeed: 3, Location: loc}))

	medicines, err := repo.ListMedicines(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, medicines)
	ids := make([]string, 0, len(medicines))
	for _, med := range medicines {
		ids = append(ids, med.ID)
	}
	stock, err := repo.GetStockMap(ctx, ids)
	require.NoError(t, err)

	for _, med := range medicines {
		movements, err := repo.ListStockMovements(ctx, med.ID, 0)
		require.NoError(t, err)
		require.NotEmpty(t, movements, med.ID)

		assert.Equal(t, stock[med.ID], movements[0].NewStock, med.ID)
		oldest := movements[len(movements)-1]
		assert.Zero(t, oldest.PreviousStock, med.ID)
		assert.Equal(t, domain.MovementAddition, oldest.MovementType, med.ID)
		for i := 0; i < len(movements)-1; i++ {
			newer, older := movements[i], movements[i+1]
			assert.False(t, newer.CreatedAt.Before(older.CreatedAt), "%s: %s listed before %s", med.ID, newer.ID, older.ID)
			assert.Equal(t, older.NewStock, newer.PreviousStock, "%s: %s does not follow %s", med.ID, newer.ID, older.ID)
		}
	}

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
