package records

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix = "analysis:"
	indexKey        = "analyses:index"

	// CAS更新の競合時に再試行する上限回数です。
	maxTxRetries = 10
)

// Store はジョブレコードの永続化層です。
// Create は一度だけ、MarkTerminal は pending からの遷移のみを許します。
type Store interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	MarkTerminal(ctx context.Context, id string, status Status, result string) error
	List(ctx context.Context) ([]*Record, error)
}

// RedisStore はジョブレコードを Redis に保存します。
// レコード本体はJSON、新着順の一覧用に sorted set を併用します。
// レコードの削除・TTLは設けません（保持期限は外部の関心事）。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Create は新規レコードを保存します。IDが既に存在する場合は ErrDuplicateID を返します。
func (s *RedisStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.ID == "" {
		return fmt.Errorf("record.ID is required")
	}
	if record.Status == "" {
		record.Status = StatusPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	ok, err := s.rdb.SetNX(ctx, recordKey(record.ID), payload, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, record.ID)
	}

	return s.rdb.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(record.CreatedAt.UnixNano()),
		Member: record.ID,
	}).Err()
}

// Get はレコードを取得します。存在しない場合は ErrNotFound を返します。
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	data, err := s.rdb.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkTerminal はレコードを終端状態へ遷移させます。
// 現在の状態が pending の場合のみ書き込み、既に終端状態であれば
// 何もせず成功を返します。再配送されたジョブが確定済みの結果を
// 上書きしないための条件付き更新です。
func (s *RedisStore) MarkTerminal(ctx context.Context, id string, status Status, result string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}

	key := recordKey(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if record.Status != StatusPending {
			return nil
		}
		record.Status = status
		record.Result = &result

		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to update record %s: too many conflicts", id)
}

// List は全レコードを作成日時の新しい順で返します。
func (s *RedisStore) List(ctx context.Context) ([]*Record, error) {
	ids, err := s.rdb.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	ret := make([]*Record, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, err
		}
		ret = append(ret, &record)
	}
	return ret, nil
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}
