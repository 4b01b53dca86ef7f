package api

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"freightquote/core/catalog"
	"freightquote/core/fx"
	"freightquote/core/pricing"
	"freightquote/core/types"
)

type mockQuoter struct {
	mock.Mock
}

func (m *mockQuoter) Calculate(ctx context.Context, req *pricing.Request) (*types.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*types.Result)
	return res, args.Error(1)
}

func (m *mockQuoter) Corridors(ctx context.Context, tenant types.TenantID, mode types.Mode) ([]catalog.Match, error) {
	args := m.Called(ctx, tenant, mode)
	matches, _ := args.Get(0).([]catalog.Match)
	return matches, args.Error(1)
}

type mockConverter struct {
	mock.Mock
}

func (m *mockConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to types.Currency) (*fx.Conversion, error) {
	args := m.Called(ctx, amount, from, to)
	conv, _ := args.Get(0).(*fx.Conversion)
	return conv, args.Error(1)
}

func (m *mockConverter) Refresh(ctx context.Context) (*types.RateTable, error) {
	args := m.Called(ctx)
	table, _ := args.Get(0).(*types.RateTable)
	return table, args.Error(1)
}
