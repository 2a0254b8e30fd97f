package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLeaderElection(t *testing.T) {
	cli := valkeyClient(t)
	Convey("Test valkey leader election", t, func() {
		ctx := context.Background()
		prefix := "test-" + uuid.NewString() + ":"
		cfg := LeaderElectionConfig{LockName: "sweeper", LockTTL: 2 * time.Second, RenewPeriod: 50 * time.Millisecond}

		cfg.Identity = "replica-a"
		a := NewLeaderElection(cli, prefix, cfg)
		cfg.Identity = "replica-b"
		b := NewLeaderElection(cli, prefix, cfg)

		Convey("only one replica acquires the lock", func() {
			So(a.tick(ctx), ShouldBeTrue)
			So(a.IsLeader(), ShouldBeTrue)
			So(b.tick(ctx), ShouldBeFalse)
			So(b.IsLeader(), ShouldBeFalse)

			owner, err := cli.Do(ctx, cli.B().Get().Key(a.key).Build()).ToString()
			So(err, ShouldBeNil)
			So(owner, ShouldEqual, "replica-a")
		})

		Convey("the leader renews and a stranger cannot", func() {
			So(a.tick(ctx), ShouldBeTrue)

			ok, err := b.renew(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			So(a.tick(ctx), ShouldBeTrue)
			pttl, err := cli.Do(ctx, cli.B().Pttl().Key(a.key).Build()).AsInt64()
			So(err, ShouldBeNil)
			So(pttl, ShouldBeGreaterThan, int64(time.Second/time.Millisecond))
		})

		Convey("Run releases the lock when cancelled", func() {
			runCtx, cancel := context.WithCancel(ctx)
			started := make(chan struct{})
			stopped := make(chan struct{})
			finished := make(chan struct{})
			go func() {
				defer close(finished)
				a.Run(runCtx, func(taskCtx context.Context) {
					close(started)
					<-taskCtx.Done()
					close(stopped)
				})
			}()

			select {
			case <-started:
			case <-time.After(2 * time.Second):
				t.Fatal("task never started on the leader")
			}
			So(b.tick(ctx), ShouldBeFalse)

			cancel()
			<-finished
			<-stopped
			So(a.IsLeader(), ShouldBeFalse)

			n, err := cli.Do(ctx, cli.B().Exists().Key(a.key).Build()).AsInt64()
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
			So(b.tick(ctx), ShouldBeTrue)
		})
	})
}
