package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

// AppSessionStore 员工登录会话，cookie 里只放会话 ID
type AppSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAppSessionStore(rdb *redis.Client, ttl time.Duration) *AppSessionStore {
	return &AppSessionStore{rdb: rdb, ttl: ttl}
}

type AppSession struct {
	EmployeeID string `json:"eid"`
	Method     string `json:"m"` // password | passkey
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
}

func key(id string) string             { return fmt.Sprintf("lib:sess:%s", id) }
func employeeSetKey(eid string) string { return fmt.Sprintf("lib:employee_sessions:%s", eid) }

func (s *AppSessionStore) TTL() time.Duration { return s.ttl }

func (s *AppSessionStore) Create(ctx context.Context, id, employeeID, method string) error {
	now := time.Now()
	b, err := json.Marshal(AppSession{
		EmployeeID: employeeID,
		Method:     method,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(id), b, s.ttl)
	pipe.SAdd(ctx, employeeSetKey(employeeID), id)
	pipe.Expire(ctx, employeeSetKey(employeeID), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *AppSessionStore) Get(ctx context.Context, id string) (*AppSession, error) {
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var as AppSession
	if err := json.Unmarshal(b, &as); err != nil {
		return nil, err
	}
	return &as, nil
}

func (s *AppSessionStore) Delete(ctx context.Context, id string) error {
	as, _ := s.Get(ctx, id) // 忽略失败
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key(id))
	if as != nil {
		pipe.SRem(ctx, employeeSetKey(as.EmployeeID), id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RevokeAllForEmployee 员工被删除或改密码时撤销其全部会话
func (s *AppSessionStore) RevokeAllForEmployee(ctx context.Context, employeeID string) error {
	ids, err := s.rdb.SMembers(ctx, employeeSetKey(employeeID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, sid := range ids {
		pipe.Del(ctx, key(sid))
	}
	pipe.Del(ctx, employeeSetKey(employeeID))
	_, err = pipe.Exec(ctx)
	return err
}
