// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package sqlite_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/pachiledger/authcore/internal/auth"
	"github.com/pachiledger/authcore/internal/auth/sqlite"
)

func newUser(name string) *auth.User {
	return &auth.User{
		ID:                ulid.Make(),
		Username:          name,
		Email:             name + "@example.com",
		PasswordHash:      "hash",
		Salt:              "salt",
		CreatedAt:         noon,
		IsActive:          true,
		PasswordChangedAt: noon,
	}
}

var _ = Describe("Repositories", func() {
	var (
		ctx    context.Context
		stores auth.Stores
	)

	BeforeEach(func() {
		ctx = context.Background()
		stores = sqlite.NewStores(openTestDB())
	})

	Describe("UserRepository", func() {
		It("round-trips every column", func() {
			user := newUser("alice")
			until := noon.Add(30 * time.Minute)
			user.LockedUntil = &until
			user.FailedAttempts = 2
			Expect(stores.Users.Create(ctx, user)).To(Succeed())

			got, err := stores.Users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(user))
		})

		It("rejects a duplicate username or email", func() {
			Expect(stores.Users.Create(ctx, newUser("alice"))).To(Succeed())

			err := stores.Users.Create(ctx, newUser("alice"))
			Expect(err).To(MatchError(auth.ErrDuplicate))

			other := newUser("alicia")
			other.Email = "alice@example.com"
			Expect(stores.Users.Create(ctx, other)).To(MatchError(auth.ErrDuplicate))
		})

		It("finds active users by username or email", func() {
			user := newUser("bob")
			Expect(stores.Users.Create(ctx, user)).To(Succeed())

			byName, err := stores.Users.FindByIdentifier(ctx, "bob")
			Expect(err).NotTo(HaveOccurred())
			byEmail, err := stores.Users.FindByIdentifier(ctx, "bob@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(byName.ID).To(Equal(byEmail.ID))

			Expect(stores.Users.SetActive(ctx, user.ID, false)).To(Succeed())
			_, err = stores.Users.FindByIdentifier(ctx, "bob")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("tracks failed attempts and locks", func() {
			user := newUser("carol")
			Expect(stores.Users.Create(ctx, user)).To(Succeed())

			for want := 1; want <= 3; want++ {
				n, err := stores.Users.IncrementFailedAttempts(ctx, user.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(want))
			}

			until := noon.Add(time.Hour)
			inForce, applied, err := stores.Users.ApplyLock(ctx, user.ID, until, noon, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeTrue())
			Expect(inForce).To(Equal(until))

			inForce, applied, err = stores.Users.ApplyLock(ctx, user.ID, noon.Add(2*time.Hour), noon.Add(time.Minute), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeFalse())
			Expect(inForce).To(Equal(until))

			locked, err := stores.Users.CountLocked(ctx, noon)
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(Equal(1))

			got, err := stores.Users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.FailedAttempts).To(Equal(4))

			Expect(stores.Users.RecordLogin(ctx, user.ID, noon)).To(Succeed())
			got, err = stores.Users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.FailedAttempts).To(BeZero())
			Expect(got.LockedUntil).To(BeNil())
			Expect(got.LastLogin).To(HaveValue(Equal(noon)))
		})

		It("reports unknown users", func() {
			missing := ulid.Make()
			_, err := stores.Users.GetByID(ctx, missing)
			Expect(err).To(MatchError(auth.ErrNotFound))
			_, err = stores.Users.IncrementFailedAttempts(ctx, missing)
			Expect(err).To(MatchError(auth.ErrNotFound))
			Expect(stores.Users.ClearLock(ctx, missing)).To(MatchError(auth.ErrNotFound))
			_, _, err = stores.Users.ApplyLock(ctx, missing, noon.Add(time.Hour), noon, 1)
			Expect(err).To(MatchError(auth.ErrNotFound))
			Expect(stores.Users.UpdatePassword(ctx, missing, "h", "s", noon)).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("SessionRepository", func() {
		var user *auth.User

		BeforeEach(func() {
			user = newUser("dave")
			Expect(stores.Users.Create(ctx, user)).To(Succeed())
		})

		newSession := func(hash string, expires time.Time) *auth.Session {
			s, err := auth.NewSession(user.ID, hash, "203.0.113.7", "", expires.Add(-2*time.Hour), expires)
			Expect(err).NotTo(HaveOccurred())
			Expect(stores.Sessions.Create(ctx, s)).To(Succeed())
			return s
		}

		It("looks up active sessions by token hash", func() {
			s := newSession("hash-1", noon.Add(time.Hour))

			got, err := stores.Sessions.GetActiveByTokenHash(ctx, "hash-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(s))

			Expect(stores.Sessions.Deactivate(ctx, s.ID)).To(Succeed())
			_, err = stores.Sessions.GetActiveByTokenHash(ctx, "hash-1")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("rejects duplicate token hashes", func() {
			newSession("hash-dup", noon.Add(time.Hour))
			s, err := auth.NewSession(user.ID, "hash-dup", "", "", noon, noon.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(stores.Sessions.Create(ctx, s)).To(MatchError(auth.ErrDuplicate))
		})

		It("revokes by token hash once", func() {
			newSession("hash-2", noon.Add(time.Hour))

			owner, changed, err := stores.Sessions.DeactivateByTokenHash(ctx, "hash-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())
			Expect(owner).To(Equal(user.ID))

			_, changed, err = stores.Sessions.DeactivateByTokenHash(ctx, "hash-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeFalse())
		})

		It("revokes every session of a user and counts live ones", func() {
			newSession("a", noon.Add(time.Hour))
			newSession("b", noon.Add(time.Hour))
			newSession("c", noon.Add(-time.Minute))

			active, err := stores.Sessions.CountActive(ctx, noon)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(Equal(2))

			n, err := stores.Sessions.DeactivateByUser(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(3)))
		})

		It("refuses sessions for unknown users", func() {
			s, err := auth.NewSession(ulid.Make(), "orphan", "", "", noon, noon.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(stores.Sessions.Create(ctx, s)).NotTo(Succeed())
		})
	})

	Describe("EventRepository", func() {
		var alice, bob ulid.ULID

		appendEvent := func(user *ulid.ULID, kind auth.EventKind, ip string, at time.Time) {
			e := &auth.SecurityEvent{ID: ulid.Make(), UserID: user, Kind: kind, Description: string(kind), Timestamp: at}
			if ip != "" {
				e.IPAddress = &ip
			}
			Expect(stores.Events.Append(ctx, e)).To(Succeed())
		}

		BeforeEach(func() {
			alice, bob = ulid.Make(), ulid.Make()
			appendEvent(&alice, auth.EventLoginFailed, "10.0.0.1", noon.Add(-10*time.Minute))
			appendEvent(&alice, auth.EventLoginFailed, "10.0.0.2", noon.Add(-20*time.Minute))
			appendEvent(&alice, auth.EventLoginSuccess, "10.0.0.2", noon.Add(-3*time.Hour))
			appendEvent(&bob, auth.EventLoginFailed, "10.0.0.1", noon.Add(-5*time.Minute))
			appendEvent(nil, auth.EventLoginFailed, "", noon.Add(-time.Minute))
		})

		DescribeTable("CountInWindow",
			func(filter func() auth.EventFilter, want int) {
				n, err := stores.Events.CountInWindow(ctx, filter())
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(want))
			},
			Entry("everything in the last hour", func() auth.EventFilter {
				return auth.EventFilter{Since: noon.Add(-time.Hour)}
			}, 4),
			Entry("one user and kind", func() auth.EventFilter {
				return auth.EventFilter{Since: noon.Add(-4 * time.Hour), UserID: &alice, Kinds: []auth.EventKind{auth.EventLoginFailed}}
			}, 2),
			Entry("several kinds", func() auth.EventFilter {
				return auth.EventFilter{
					Since:  noon.Add(-4 * time.Hour),
					UserID: &alice,
					Kinds:  []auth.EventKind{auth.EventLoginFailed, auth.EventLoginSuccess},
				}
			}, 3),
			Entry("one ip across users", func() auth.EventFilter {
				ip := "10.0.0.1"
				return auth.EventFilter{Since: noon.Add(-time.Hour), IPAddress: &ip, Kinds: []auth.EventKind{auth.EventLoginFailed}}
			}, 2),
		)

		It("counts distinct non-null values", func() {
			n, err := stores.Events.CountDistinct(ctx, &alice, auth.ColumnIPAddress, noon.Add(-4*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			n, err = stores.Events.CountDistinct(ctx, nil, auth.ColumnUserAgent, noon.Add(-4*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			_, err = stores.Events.CountDistinct(ctx, nil, auth.EventColumn("description"), noon)
			Expect(err).To(HaveOccurred())
		})

		It("lists events oldest first", func() {
			events, err := stores.Events.ListSince(ctx, noon.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(4))
			Expect(events[0].UserID).To(HaveValue(Equal(alice)))
			Expect(events[0].Timestamp).To(Equal(noon.Add(-20 * time.Minute)))
			Expect(events[3].UserID).To(BeNil())
			Expect(events[3].IPAddress).To(BeNil())
		})

		It("counts events whose user does not exist", func() {
			sessions, events, err := stores.Integrity.CountOrphans(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(BeZero())
			Expect(events).To(Equal(4))
		})
	})
})
