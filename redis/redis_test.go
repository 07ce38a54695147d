package redis

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/config"
	"github.com/KOMKZ/go-yogan-eureka/eureka"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orders(host string, status eureka.Status) eureka.Instance {
	return eureka.Instance{
		HostName:       host,
		App:            "ORDERS",
		IPAddr:         "10.0.0.1",
		Status:         status,
		Port:           eureka.NewPort(8080),
		SecurePort:     eureka.Port{Value: 8443},
		DataCenterInfo: eureka.MyOwnDataCenter(),
		Metadata:       eureka.Metadata{"zone": "us-east-1a"},
	}
}

func newStore(t *testing.T, ttl time.Duration) (*BackupStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewBackupStore(client, cfg.Key, ttl), mr
}

func TestBackupStore_RoundTrip(t *testing.T) {
	store, mr := newStore(t, time.Hour)
	ctx := context.Background()

	_, _, err := store.Load(ctx)
	assert.ErrorIs(t, err, eureka.ErrNoBackup)

	require.NoError(t, store.Save(ctx, []eureka.Instance{orders("orders-1", eureka.StatusUp), orders("orders-2", eureka.StatusDown)}))
	assert.Equal(t, time.Hour, mr.TTL("eureka:registry:backup"))

	loaded, savedAt, err := store.Load(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), savedAt, time.Minute)
	require.Len(t, loaded, 2)
	assert.Equal(t, "orders-2", loaded[1].HostName)
	assert.Equal(t, eureka.StatusDown, loaded[1].Status)
	port, enabled := loaded[0].Port.Get()
	assert.Equal(t, 8080, port)
	assert.True(t, enabled)
	assert.Equal(t, "us-east-1a", loaded[0].Metadata["zone"])
}

func TestBackupStore_Expiry(t *testing.T) {
	store, mr := newStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, []eureka.Instance{orders("orders-1", eureka.StatusUp)}))

	mr.FastForward(2 * time.Minute)
	_, _, err := store.Load(ctx)
	assert.ErrorIs(t, err, eureka.ErrNoBackup)
}

func TestBackupStore_CorruptValue(t *testing.T) {
	store, mr := newStore(t, 0)
	require.NoError(t, mr.Set("eureka:registry:backup", "{not json"))

	_, _, err := store.Load(context.Background())
	assert.ErrorIs(t, err, eureka.ErrParse)
}

func TestBackupStore_ServerError(t *testing.T) {
	store, mr := newStore(t, 0)
	mr.SetError("LOADING")

	assert.Error(t, store.Save(context.Background(), nil))
	_, _, err := store.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, eureka.ErrNoBackup)
}

func TestNewClient_Errors(t *testing.T) {
	_, err := NewClient(context.Background(), DefaultConfig())
	require.Error(t, err, "no address")

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.MaxRetries = -1
	_, err = NewClient(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping")
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "localhost:6379"
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Mode = "sentinel"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.DB = 16
	assert.Error(t, bad.Validate())

	cluster := cfg
	cluster.Mode = ModeCluster
	cluster.DB = 16
	assert.NoError(t, cluster.Validate(), "db is ignored in cluster mode")
}

func writeLoader(t *testing.T, yaml string) *config.Loader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	loader, err := config.NewLoaderBuilder().WithConfigFile(path).Build()
	require.NoError(t, err)
	return loader
}

func TestComponent_Lifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewComponent()
	checker := c.GetHealthChecker()
	assert.Equal(t, "redis", checker.Name())
	assert.Error(t, checker.Check(context.Background()), "not initialized yet")

	ctx := context.Background()
	require.NoError(t, c.Init(ctx, writeLoader(t, "redis:\n  addr: "+mr.Addr()+"\n  key: test:backup\n")))
	require.NoError(t, c.Start(ctx))
	require.NoError(t, checker.Check(ctx))

	require.NoError(t, c.Save(ctx, []eureka.Instance{orders("orders-1", eureka.StatusUp)}))
	raw, err := mr.Get("test:backup")
	require.NoError(t, err)
	assert.Contains(t, raw, "orders-1")

	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
	assert.NoError(t, c.Save(ctx, nil), "save after stop is a no-op")
}

func TestComponent_NotConfigured(t *testing.T) {
	c := NewComponent()
	require.NoError(t, c.Init(context.Background(), writeLoader(t, "eureka:\n  host: localhost\n")))
	assert.NoError(t, c.Save(context.Background(), []eureka.Instance{orders("orders-1", eureka.StatusUp)}))
}

func TestComponent_SnapshotIsNotServedOnColdStart(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := NewComponent()
	ctx := context.Background()
	require.NoError(t, rc.Init(ctx, writeLoader(t, "redis:\n  addr: "+mr.Addr()+"\n")))
	require.NoError(t, rc.Save(ctx, []eureka.Instance{orders("orders-1", eureka.StatusUp)}))

	cfg := eureka.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1 // nothing listens
	cfg.RegisterWithEureka = false
	cfg.MaxRetries = 1
	cfg.RequestTimeout = 200 * time.Millisecond
	cfg.RegistryFetchInterval = time.Hour
	client, err := eureka.NewClient(cfg, nil, eureka.WithClientBackup(rc))
	require.NoError(t, err)
	require.NoError(t, client.Start(ctx))
	defer client.Stop(ctx)

	_, err = client.Resolve("orders")
	assert.ErrorIs(t, err, eureka.ErrUnknownApp, "an old snapshot must not be handed out")
	assert.True(t, mr.Exists(DefaultConfig().Key), "snapshot left untouched")
}
