package callcache

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestNewStoreReturnsErrorStoreOnFailure(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  StoreConfig
	}{
		{name: "unknown driver", cfg: StoreConfig{Driver: "bogus"}},
		{name: "sql without dsn", cfg: StoreConfig{Driver: DriverSQL}},
		{name: "nats without handle", cfg: StoreConfig{Driver: DriverNATS}},
		{name: "dynamo describe failure", cfg: StoreConfig{Driver: DriverDynamo, DynamoClient: &dynStub{
			items:       map[string]map[string]types.AttributeValue{},
			describeErr: errors.New("denied"),
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewStore(ctx, tc.cfg)
			if _, ok := store.(*errorStore); !ok {
				t.Fatalf("expected error store, got %T", store)
			}
			if err := store.Ready(ctx); err == nil {
				t.Fatalf("expected ready to report the construction error")
			}
		})
	}
}

func TestErrorStoreReturnsErrorEverywhere(t *testing.T) {
	boom := errors.New("boom")
	store := &errorStore{driver: DriverSQL, err: boom}
	ctx := context.Background()

	if store.Driver() != DriverSQL {
		t.Fatalf("expected driver to be preserved")
	}
	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("get: %v", err)
	}
	if err := store.Set(ctx, "k", nil); !errors.Is(err, boom) {
		t.Fatalf("set: %v", err)
	}
	if _, err := store.Increment(ctx, "k", 1); !errors.Is(err, boom) {
		t.Fatalf("increment: %v", err)
	}
	if _, err := store.Append(ctx, "k", nil); !errors.Is(err, boom) {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.List(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("list: %v", err)
	}
	if _, err := store.Expire(ctx, "k", 0); !errors.Is(err, boom) {
		t.Fatalf("expire: %v", err)
	}
	if err := store.Delete(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("flush: %v", err)
	}
}

func TestCacheSurfacesConstructionError(t *testing.T) {
	c := NewCache(NewStore(context.Background(), StoreConfig{Driver: "bogus"}))
	if _, err := c.Store("x"); err == nil {
		t.Fatalf("expected store error from failed backend")
	}
}
