package callcache

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewStoreSelectsDriver(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  StoreConfig
		want Driver
	}{
		{name: "default", cfg: StoreConfig{}, want: DriverMemory},
		{name: "memory", cfg: StoreConfig{Driver: DriverMemory}, want: DriverMemory},
		{name: "file", cfg: StoreConfig{Driver: DriverFile, FileDir: t.TempDir()}, want: DriverFile},
		{name: "redis", cfg: StoreConfig{Driver: DriverRedis, RedisClient: newStubRedisClient()}, want: DriverRedis},
		{name: "nats", cfg: StoreConfig{Driver: DriverNATS, NATSKeyValue: newStubNATSKeyValue("b")}, want: DriverNATS},
		{name: "dynamo", cfg: StoreConfig{Driver: DriverDynamo, DynamoClient: newDynStub()}, want: DriverDynamo},
		{name: "sql", cfg: StoreConfig{Driver: DriverSQL, SQLDriverName: "sqlite", SQLDSN: "file:" + filepath.Join(t.TempDir(), "f.db")}, want: DriverSQL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewStore(ctx, tc.cfg)
			if store.Driver() != tc.want {
				t.Fatalf("expected driver %s, got %s", tc.want, store.Driver())
			}
			if _, ok := store.(*errorStore); ok {
				t.Fatalf("expected working store, got error store: %v", store.Ready(ctx))
			}
			if err := store.Ready(ctx); err != nil {
				t.Fatalf("ready failed: %v", err)
			}
		})
	}
}

func TestNewStoreRedisDialsWhenClientMissing(t *testing.T) {
	store := NewStore(context.Background(), StoreConfig{Driver: DriverRedis, RedisAddr: "127.0.0.1:1"})
	rs, ok := store.(*redisStore)
	if !ok {
		t.Fatalf("expected redis store, got %T", store)
	}
	if rs.client == nil {
		t.Fatalf("expected a dialed client")
	}
	if rs.prefix != defaultPrefix {
		t.Fatalf("expected default prefix, got %q", rs.prefix)
	}
}

func TestNewStoreWithOptions(t *testing.T) {
	ctx := context.Background()
	client := newStubRedisClient()
	store := NewStoreWith(ctx, DriverRedis, WithRedisClient(client), WithPrefix("app"))
	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok := client.strings["app:k"]; !ok {
		t.Fatalf("expected prefix option applied")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	ctx := context.Background()
	stores := map[Driver]Store{
		DriverMemory: NewMemoryStore(ctx),
		DriverRedis:  NewRedisStore(ctx, newStubRedisClient()),
		DriverFile:   NewFileStore(ctx, t.TempDir()),
		DriverSQL:    NewSQLStore(ctx, "sqlite", "file:"+filepath.Join(t.TempDir(), "c.db"), ""),
		DriverNATS:   NewNATSStore(ctx, newStubNATSKeyValue("b")),
		DriverDynamo: NewDynamoStore(ctx, newDynStub()),
	}
	for driver, store := range stores {
		if store.Driver() != driver {
			t.Fatalf("expected %s, got %s", driver, store.Driver())
		}
		if err := store.Ready(ctx); err != nil {
			t.Fatalf("%s ready failed: %v", driver, err)
		}
	}
}
