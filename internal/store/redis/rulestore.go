package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const activeRulesKey = "tib:active_rules"

// RuleStore persists the active alert rule configuration so a restart
// comes back with the same rule set that was last applied.
type RuleStore struct {
	client *goredis.Client
}

// New connects to redis and verifies the connection with a ping.
func New(addr, password string, db int) (*RuleStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RuleStore{client: client}, nil
}

// Load returns the last saved rule configuration payload. The second
// return is false when no configuration has been saved yet.
func (s *RuleStore) Load(ctx context.Context) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, activeRulesKey).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load rules: %w", err)
	}
	return raw, true, nil
}

// Save stores a rule configuration payload, replacing any previous one.
// Payloads are validated by the caller before they reach here.
func (s *RuleStore) Save(ctx context.Context, payload []byte) error {
	if err := s.client.Set(ctx, activeRulesKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}

// Client exposes the underlying connection for components that share it.
func (s *RuleStore) Client() *goredis.Client {
	return s.client
}

func (s *RuleStore) Close() error {
	return s.client.Close()
}
