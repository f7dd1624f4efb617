package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/coursebook/internal/model"
)

const redisSessionKeyPrefix = "session:"

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// セッションはハッシュ session:<id> に有効期限と同じTTLで保存する。
type RedisSessionRepo struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client redis.UniversalClient) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, now: time.Now}
}

func redisSessionKey(id string) string {
	return redisSessionKeyPrefix + id
}

// Create はセッションを作成する。有効期限はキーのTTLとしても設定する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("failed to create session: already expired")
	}

	key := redisSessionKey(session.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", session.UserID,
			"expires_at", session.ExpiresAt.Unix(),
			"created_at", session.CreatedAt.Unix(),
		)
		pipe.ExpireAt(ctx, key, session.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れ・未登録の場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	values, err := r.client.HGetAll(ctx, redisSessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	session, err := parseRedisSession(id, values)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if !session.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return session, nil
}

func parseRedisSession(id string, values map[string]string) (*model.Session, error) {
	userID, err := strconv.ParseInt(values["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("user_id: %w", err)
	}
	expiresAt, err := strconv.ParseInt(values["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	createdAt, err := strconv.ParseInt(values["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	return &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: time.Unix(expiresAt, 0),
		CreatedAt: time.Unix(createdAt, 0),
	}, nil
}

// DeleteByID は指定IDのセッションを削除する。存在しなくてもエラーにしない。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisSessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired はTTLを持たないまま期限を過ぎたセッションを削除し、その件数を返す。
// 通常はRedisのTTLで失効するため0件になる。
func (r *RedisSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	now := r.now()
	var removed int64
	iter := r.client.Scan(ctx, 0, redisSessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.HGet(ctx, key, "expires_at").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("failed to read session: %w", err)
		}
		expiresAt, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && time.Unix(expiresAt, 0).After(now) {
			continue
		}
		n, err := r.client.Del(ctx, key).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to delete expired session: %w", err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return removed, nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
