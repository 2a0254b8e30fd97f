package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/models"
	valkey "github.com/valkey-io/valkey-go"
)

// ErrLoginSessionNotFound indicates the login session does not exist.
var ErrLoginSessionNotFound = errors.New("login session not found")

// LoginSessionStore stores end-user login sessions in Valkey.
type LoginSessionStore struct {
	client valkey.Client
	prefix string
}

var _ oauth2.LoginSessionStore = (*LoginSessionStore)(nil)

// NewLoginSessionStoreWithClient creates a store with an existing Valkey client.
func NewLoginSessionStoreWithClient(client valkey.Client, prefix string) *LoginSessionStore {
	if prefix == "" {
		prefix = "iam:"
	}
	return &LoginSessionStore{client: client, prefix: prefix}
}

func (s *LoginSessionStore) key(id string) string {
	return fmt.Sprintf("%slogin_session:%s", s.prefix, id)
}

// Put stores sess until its ExpiresAt.
func (s *LoginSessionStore) Put(ctx context.Context, sess *models.LoginSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal login session: %w", err)
	}
	set := s.client.B().Set().Key(s.key(sess.ID)).Value(string(data))
	if sess.ExpiresAt.IsZero() {
		return s.client.Do(ctx, set.Build()).Error()
	}
	return s.client.Do(ctx, set.Ex(ceilSeconds(time.Until(sess.ExpiresAt))).Build()).Error()
}

// Get loads a login session.
func (s *LoginSessionStore) Get(ctx context.Context, id string) (*models.LoginSession, error) {
	res := s.client.Do(ctx, s.client.B().Get().Key(s.key(id)).Build())
	if err := res.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrLoginSessionNotFound
		}
		return nil, err
	}
	val, err := res.ToString()
	if err != nil {
		return nil, ErrLoginSessionNotFound
	}
	var sess models.LoginSession
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal login session: %w", err)
	}
	return &sess, nil
}

// touchScript rewrites only last_used_at so a concurrent deactivation is
// never overwritten with a stale copy. The remaining TTL is kept.
var touchScript = valkey.NewLuaScript(`
local val = redis.call("GET", KEYS[1])
if not val then
	return 0
end
local sess = cjson.decode(val)
sess["last_used_at"] = ARGV[1]
redis.call("SET", KEYS[1], cjson.encode(sess), "KEEPTTL")
return 1
`)

// Touch records at as the session's last use, keeping its remaining TTL.
func (s *LoginSessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	n, err := touchScript.Exec(ctx, s.client, []string{s.key(id)}, []string{at.Format(time.RFC3339Nano)}).AsInt64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLoginSessionNotFound
	}
	return nil
}
