package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

var ErrCeremonyExpired = errors.New("webauthn ceremony expired or unknown")

// Store 保存 WebAuthn 注册/登录过程中的 SessionData，短 TTL
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store { return &Store{rdb: rdb, ttl: ttl} }

func regTokenKey(token string) string { return fmt.Sprintf("lib:webauthn:reg:inv:%s", token) }
func addKey(employeeID string) string { return fmt.Sprintf("lib:webauthn:add:%s", employeeID) }
func authKey(sid string) string       { return fmt.Sprintf("lib:webauthn:auth:%s", sid) }

func (s *Store) save(ctx context.Context, k string, sd *webauthn.SessionData) error {
	b, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, k, b, s.ttl).Err()
}

func (s *Store) load(ctx context.Context, k string) (*webauthn.SessionData, error) {
	b, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCeremonyExpired
	}
	if err != nil {
		return nil, err
	}
	var sd webauthn.SessionData
	if err := json.Unmarshal(b, &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}

func (s *Store) del(ctx context.Context, k string) { _ = s.rdb.Del(ctx, k).Err() }

// 邀请注册：按邀请 token 关联
func (s *Store) SaveRegByToken(ctx context.Context, token string, sd *webauthn.SessionData) error {
	return s.save(ctx, regTokenKey(token), sd)
}

func (s *Store) LoadRegByToken(ctx context.Context, token string) (*webauthn.SessionData, error) {
	return s.load(ctx, regTokenKey(token))
}

func (s *Store) DelRegByToken(ctx context.Context, token string) { s.del(ctx, regTokenKey(token)) }

// 已登录员工添加新凭据
func (s *Store) SaveAdd(ctx context.Context, employeeID string, sd *webauthn.SessionData) error {
	return s.save(ctx, addKey(employeeID), sd)
}

func (s *Store) LoadAdd(ctx context.Context, employeeID string) (*webauthn.SessionData, error) {
	return s.load(ctx, addKey(employeeID))
}

func (s *Store) DelAdd(ctx context.Context, employeeID string) { s.del(ctx, addKey(employeeID)) }

// 登录：按一次性 sessionId 关联
func (s *Store) SaveAuth(ctx context.Context, sid string, sd *webauthn.SessionData) error {
	return s.save(ctx, authKey(sid), sd)
}

func (s *Store) LoadAuth(ctx context.Context, sid string) (*webauthn.SessionData, error) {
	return s.load(ctx, authKey(sid))
}

func (s *Store) DelAuth(ctx context.Context, sid string) { s.del(ctx, authKey(sid)) }
