package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	valkey "github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

const (
	defaultLeaderLockTTL     = 30 * time.Second
	defaultLeaderRenewPeriod = 10 * time.Second
)

// Lua scripts comparing the lock owner before touching the key.
const (
	renewLockScript   = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`
	releaseLockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
)

// LeaderElectionConfig holds configuration for leader election.
type LeaderElectionConfig struct {
	// LockName distinguishes independent elections sharing one Valkey.
	LockName string
	// LockTTL is how long the leader lock is valid without renewal.
	LockTTL time.Duration
	// RenewPeriod is how often the lock is renewed or contested. Must be below LockTTL.
	RenewPeriod time.Duration
	// Identity is unique per process; defaults to hostname plus a random suffix.
	Identity string
	Logger   *zap.Logger
}

// LeaderElection holds a Valkey lock so that only one replica runs a
// background task at a time.
type LeaderElection struct {
	client valkey.Client
	key    string
	cfg    LeaderElectionConfig
	log    *zap.Logger

	mu       sync.RWMutex
	isLeader bool
}

// NewLeaderElection creates a new leader election instance.
func NewLeaderElection(client valkey.Client, prefix string, cfg LeaderElectionConfig) *LeaderElection {
	if cfg.LockName == "" {
		cfg.LockName = "default"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLeaderLockTTL
	}
	if cfg.RenewPeriod <= 0 || cfg.RenewPeriod >= cfg.LockTTL {
		cfg.RenewPeriod = cfg.LockTTL / 3
	}
	if cfg.Identity == "" {
		hostname, _ := os.Hostname()
		cfg.Identity = fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &LeaderElection{
		client: client,
		key:    prefix + "leader:" + cfg.LockName,
		cfg:    cfg,
		log:    cfg.Logger.With(zap.String("lock", cfg.LockName), zap.String("identity", cfg.Identity)),
	}
}

// IsLeader returns whether this instance currently holds the lock.
func (le *LeaderElection) IsLeader() bool {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.isLeader
}

// Run contests the lock until ctx is cancelled. While leading, task runs with
// a context cancelled as soon as leadership is lost.
func (le *LeaderElection) Run(ctx context.Context, task func(ctx context.Context)) {
	ticker := time.NewTicker(le.cfg.RenewPeriod)
	defer ticker.Stop()

	var (
		cancelTask context.CancelFunc
		done       chan struct{}
	)
	stopTask := func() {
		if cancelTask != nil {
			cancelTask()
			<-done
			cancelTask = nil
		}
	}
	defer func() {
		stopTask()
		le.setLeader(false)
		// ctx is already done here; release with a short detached deadline.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = le.client.Do(rctx, le.client.B().Eval().Script(releaseLockScript).Numkeys(1).Key(le.key).Arg(le.cfg.Identity).Build()).Error()
	}()

	for {
		leading := le.tick(ctx)
		switch {
		case leading && cancelTask == nil:
			le.log.Info("acquired leadership")
			var tctx context.Context
			tctx, cancelTask = context.WithCancel(ctx)
			done = make(chan struct{})
			go func() {
				defer close(done)
				task(tctx)
			}()
		case !leading && cancelTask != nil:
			le.log.Warn("lost leadership")
			stopTask()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (le *LeaderElection) tick(ctx context.Context) bool {
	var (
		ok  bool
		err error
	)
	if le.IsLeader() {
		ok, err = le.renew(ctx)
	} else {
		ok, err = le.acquire(ctx)
	}
	if err != nil {
		le.log.Warn("leader election round failed", zap.Error(err))
		ok = false
	}
	le.setLeader(ok)
	return ok
}

func (le *LeaderElection) setLeader(v bool) {
	le.mu.Lock()
	le.isLeader = v
	le.mu.Unlock()
}

func (le *LeaderElection) acquire(ctx context.Context) (bool, error) {
	err := le.client.Do(ctx, le.client.B().Set().Key(le.key).Value(le.cfg.Identity).Nx().Ex(ceilSeconds(le.cfg.LockTTL)).Build()).Error()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (le *LeaderElection) renew(ctx context.Context) (bool, error) {
	ms := fmt.Sprintf("%d", le.cfg.LockTTL.Milliseconds())
	n, err := le.client.Do(ctx, le.client.B().Eval().Script(renewLockScript).Numkeys(1).Key(le.key).Arg(le.cfg.Identity, ms).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
