package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/legit-games/grant-engine/models"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryRequestStore(t *testing.T) {
	Convey("Test memory authorization request store", t, func() {
		ctx := context.Background()
		rs, err := NewMemoryRequestStore()
		So(err, ShouldBeNil)
		defer rs.Close()

		now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		rs.SetClock(func() time.Time { return now })

		req := &models.AuthorizationRequest{ClientID: "client", UserID: "user", RedirectURI: "https://app/cb", Scopes: []string{"openid"}}
		code, err := rs.Create(ctx, req)
		So(err, ShouldBeNil)
		So(len(code), ShouldEqual, 43)
		So(req.ExpiresAt.Equal(now.Add(DefaultAuthRequestTTL)), ShouldBeTrue)

		Convey("consume returns the request exactly once", func() {
			got, err := rs.Consume(ctx, code)
			So(err, ShouldBeNil)
			So(got.ClientID, ShouldEqual, "client")
			So(got.Scopes, ShouldResemble, []string{"openid"})

			_, err = rs.Consume(ctx, code)
			So(err, ShouldEqual, ErrAuthorizationRequestNotFound)
		})

		Convey("expired requests are not returned", func() {
			now = now.Add(DefaultAuthRequestTTL)
			_, err := rs.Consume(ctx, code)
			So(err, ShouldEqual, ErrAuthorizationRequestNotFound)
		})

		Convey("unknown and empty codes are not found", func() {
			_, err := rs.Consume(ctx, "nope")
			So(err, ShouldEqual, ErrAuthorizationRequestNotFound)
			_, err = rs.Consume(ctx, "")
			So(err, ShouldEqual, ErrAuthorizationRequestNotFound)
		})

		Convey("codes are distinct", func() {
			other, err := rs.Create(ctx, &models.AuthorizationRequest{ClientID: "client"})
			So(err, ShouldBeNil)
			So(other, ShouldNotEqual, code)
		})
	})
}

func TestMemoryRequestStoreConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	rs, err := NewMemoryRequestStore()
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()

	code, err := rs.Create(ctx, &models.AuthorizationRequest{ClientID: "c"})
	if err != nil {
		t.Fatal(err)
	}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rs.Consume(ctx, code); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one consumer, got %d", wins)
	}
}

func TestMemorySessionStore(t *testing.T) {
	Convey("Test memory oauth2 session store", t, func() {
		ctx := context.Background()
		ss, err := NewMemorySessionStore()
		So(err, ShouldBeNil)
		defer ss.Close()

		now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		ss.SetClock(func() time.Time { return now })

		sess, err := ss.Create(ctx, "user-1", "client-1", []string{"openid", "offline"})
		So(err, ShouldBeNil)
		So(sess.TokenID, ShouldNotBeEmpty)
		So(sess.Scopes(), ShouldResemble, []string{"openid", "offline"})

		Convey("lookup by id and token id", func() {
			got, err := ss.Get(ctx, sess.ID)
			So(err, ShouldBeNil)
			So(got.UserID, ShouldEqual, "user-1")

			got, err = ss.GetByTokenID(ctx, sess.TokenID)
			So(err, ShouldBeNil)
			So(got.ID, ShouldEqual, sess.ID)
		})

		Convey("rotate replaces the token id once", func() {
			now = now.Add(time.Minute)
			So(ss.Rotate(ctx, sess.ID, sess.TokenID, "next"), ShouldBeNil)

			_, err := ss.GetByTokenID(ctx, sess.TokenID)
			So(err, ShouldEqual, ErrSessionNotFound)

			got, err := ss.GetByTokenID(ctx, "next")
			So(err, ShouldBeNil)
			So(got.LastRefreshAt.Equal(now), ShouldBeTrue)

			So(ss.Rotate(ctx, sess.ID, sess.TokenID, "other"), ShouldEqual, ErrSessionConflict)
		})

		Convey("revoke removes the session", func() {
			So(ss.Revoke(ctx, sess.ID), ShouldBeNil)
			_, err := ss.Get(ctx, sess.ID)
			So(err, ShouldEqual, ErrSessionNotFound)
			_, err = ss.GetByTokenID(ctx, sess.TokenID)
			So(err, ShouldEqual, ErrSessionNotFound)
			So(ss.Revoke(ctx, sess.ID), ShouldBeNil)
		})

		Convey("revoke all only touches the user's sessions", func() {
			second, err := ss.Create(ctx, "user-1", "client-2", nil)
			So(err, ShouldBeNil)
			other, err := ss.Create(ctx, "user-10", "client-1", nil)
			So(err, ShouldBeNil)

			So(ss.RevokeAllForUser(ctx, "user-1"), ShouldBeNil)
			_, err = ss.Get(ctx, sess.ID)
			So(err, ShouldEqual, ErrSessionNotFound)
			_, err = ss.Get(ctx, second.ID)
			So(err, ShouldEqual, ErrSessionNotFound)
			_, err = ss.Get(ctx, other.ID)
			So(err, ShouldBeNil)
		})

		Convey("delete idle removes stale sessions", func() {
			now = now.Add(2 * time.Hour)
			fresh, err := ss.Create(ctx, "user-2", "client-1", nil)
			So(err, ShouldBeNil)

			sweeper := &SessionSweeper{Store: ss, MaxIdle: time.Hour, Now: func() time.Time { return now }}
			n, err := sweeper.SweepOnce(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			_, err = ss.Get(ctx, fresh.ID)
			So(err, ShouldBeNil)
		})
	})
}

func TestMemorySessionStoreConcurrentRotate(t *testing.T) {
	ctx := context.Background()
	ss, err := NewMemorySessionStore()
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()
	sess, err := ss.Create(ctx, "u", "c", nil)
	if err != nil {
		t.Fatal(err)
	}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ss.Rotate(ctx, sess.ID, sess.TokenID, models.NewSessionID()); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one rotation, got %d", wins)
	}
}

func TestMemoryLoginSessionStore(t *testing.T) {
	Convey("Test memory login session store", t, func() {
		ctx := context.Background()
		ls, err := NewMemoryLoginSessionStore()
		So(err, ShouldBeNil)
		defer ls.Close()

		created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		So(ls.Put(ctx, &models.LoginSession{ID: "ls-1", UserID: "u", Active: true, CreatedAt: created}), ShouldBeNil)

		touched := created.Add(time.Minute)
		So(ls.Touch(ctx, "ls-1", touched), ShouldBeNil)

		got, err := ls.Get(ctx, "ls-1")
		So(err, ShouldBeNil)
		So(got.LastUsedAt.Equal(touched), ShouldBeTrue)

		_, err = ls.Get(ctx, "missing")
		So(err, ShouldEqual, ErrLoginSessionNotFound)
		So(ls.Touch(ctx, "missing", touched), ShouldEqual, ErrLoginSessionNotFound)
	})
}

func TestClientAndUserStore(t *testing.T) {
	Convey("Test in-memory client and user stores", t, func() {
		ctx := context.Background()
		cs := NewClientStore()
		So(cs.Set("c1", &models.Client{ID: "c1", RedirectURIs: []string{"https://app/cb"}}), ShouldBeNil)

		c, err := cs.GetByID(ctx, "c1")
		So(err, ShouldBeNil)
		So(c.HasRedirectURI("https://app/cb"), ShouldBeTrue)
		_, err = cs.GetByID(ctx, "c2")
		So(err, ShouldEqual, ErrClientNotFound)

		us := NewUserStore()
		us.Set(&models.User{ID: "u1", Active: true})
		u, err := us.GetByID(ctx, "u1")
		So(err, ShouldBeNil)
		So(u.Active, ShouldBeTrue)
		_, err = us.GetByID(ctx, "u2")
		So(err, ShouldEqual, ErrUserNotFound)
	})
}
