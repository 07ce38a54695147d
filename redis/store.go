package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/eureka"
	"github.com/redis/go-redis/v9"
)

var _ eureka.BackupStore = (*BackupStore)(nil)

// backupDoc 存储格式；实例沿用注册中心的 JSON 形状
type backupDoc struct {
	SavedAt   time.Time         `json:"saved_at"`
	Instances []eureka.Instance `json:"instances"`
}

// BackupStore 把注册表以一个 JSON 值保存在 key 下
type BackupStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewBackupStore creates a store over client. ttl 0 keeps the key forever.
func NewBackupStore(client redis.UniversalClient, key string, ttl time.Duration) *BackupStore {
	return &BackupStore{client: client, key: key, ttl: ttl}
}

// Save implements eureka.BackupStore.
func (s *BackupStore) Save(ctx context.Context, instances []eureka.Instance) error {
	data, err := json.Marshal(backupDoc{SavedAt: time.Now().UTC(), Instances: instances})
	if err != nil {
		return fmt.Errorf("encode registry backup: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Load reads the last snapshot back for inspection; a missing key is eureka.ErrNoBackup.
func (s *BackupStore) Load(ctx context.Context) ([]eureka.Instance, time.Time, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, eureka.ErrNoBackup.WithMsgf("no registry backup under %s", s.key)
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var doc backupDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, time.Time{}, eureka.ErrParse.WithMsgf("decode registry backup %s", s.key).Wrap(err)
	}
	return doc.Instances, doc.SavedAt, nil
}
