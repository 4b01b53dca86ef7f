package fxsource

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"freightquote/core/types"
	"freightquote/internal/errors"
)

// AsOfField is the hash field holding the table timestamp
const AsOfField = "as_of"

// hashClient is the subset of redis.Cmdable the source needs
type hashClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Redis reads a rate table another process publishes as a hash at
// "<prefix>:<REFERENCE>", one field per currency plus as_of (RFC3339)
type Redis struct {
	client    hashClient
	prefix    string
	reference types.Currency
}

// NewRedisClient creates a client from connection settings
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedis creates a Redis rate source
func NewRedis(client hashClient, prefix string, reference types.Currency) *Redis {
	return &Redis{client: client, prefix: prefix, reference: reference}
}

// Key returns the hash key for the configured reference currency
func (r *Redis) Key() string {
	return fmt.Sprintf("%s:%s", r.prefix, r.reference)
}

// FetchRates implements fx.Source
func (r *Redis) FetchRates(ctx context.Context) (*types.RateTable, error) {
	fields, err := r.client.HGetAll(ctx, r.Key()).Result()
	if err != nil {
		return nil, errors.Network("reading rates from redis", err)
	}
	if len(fields) == 0 {
		return nil, errors.NotFound("rate table", r.Key())
	}
	return parseHash(r.reference, fields)
}

// Publish writes a table in the layout FetchRates reads
func (r *Redis) Publish(ctx context.Context, t *types.RateTable) error {
	if t.Reference != r.reference {
		return errors.Input(fmt.Sprintf("table reference %s does not match %s", t.Reference, r.reference))
	}
	values := make([]interface{}, 0, 2*len(t.Rates)+2)
	values = append(values, AsOfField, t.AsOf.UTC().Format(time.RFC3339))
	for c, rate := range t.Rates {
		values = append(values, string(c), rate.String())
	}
	if err := r.client.HSet(ctx, r.Key(), values...).Err(); err != nil {
		return errors.Network("publishing rates to redis", err)
	}
	return nil
}

func parseHash(ref types.Currency, fields map[string]string) (*types.RateTable, error) {
	table := &types.RateTable{Reference: ref, Rates: make(map[types.Currency]decimal.Decimal, len(fields))}
	for k, v := range fields {
		if k == AsOfField {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, errors.Wrap(errors.TypeNetwork, "redis rate table as_of", err)
			}
			table.AsOf = ts.UTC()
			continue
		}
		c, err := types.ParseCurrency(k)
		if err != nil {
			return nil, errors.Wrap(errors.TypeNetwork, "redis rate table field", err)
		}
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return nil, errors.Wrap(errors.TypeNetwork, fmt.Sprintf("redis rate for %s", c), err)
		}
		if c != ref {
			table.Rates[c] = rate
		}
	}
	return table, nil
}
