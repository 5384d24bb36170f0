// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package sqlite_test

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/pachiledger/authcore/internal/auth"
	"github.com/pachiledger/authcore/internal/auth/sqlite"
	"github.com/pachiledger/authcore/internal/cipher"
)

const (
	password = "Str0ng!Pass"
	ip       = "203.0.113.7"
	agent    = "authcore-test"
)

var _ = Describe("Login flow", func() {
	var (
		ctx    context.Context
		now    time.Time
		svc    *auth.Service
		userID ulid.ULID
	)

	advance := func(d time.Duration) { now = now.Add(d) }

	BeforeEach(func() {
		ctx = context.Background()
		now = noon

		key, err := cipher.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		c, err := cipher.New(key)
		Expect(err).NotTo(HaveOccurred())

		cfg := auth.DefaultConfig()
		cfg.Detector.Location = time.UTC
		svc, err = auth.NewService(sqlite.NewStores(openTestDB()), c, cfg,
			auth.WithClock(func() time.Time { return now }))
		Expect(err).NotTo(HaveOccurred())

		userID, err = svc.Register(ctx, "alice", "alice@example.com", password)
		Expect(err).NotTo(HaveOccurred())
	})

	Context("with the right password", func() {
		It("issues a session that validates until logout", func() {
			result, err := svc.Login(ctx, "alice", password, ip, agent)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.UserID).To(Equal(userID))
			Expect(result.Suspicious).To(BeFalse())
			Expect(result.ExpiresAt).To(Equal(noon.Add(auth.DefaultSessionTimeout)))

			owner, err := svc.ValidateSession(ctx, result.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(owner).NotTo(BeNil())
			Expect(owner.Username).To(Equal("alice"))

			Expect(svc.Logout(ctx, result.Token)).To(BeTrue())
			Expect(svc.Logout(ctx, result.Token)).To(BeFalse())
			Expect(svc.ValidateSession(ctx, result.Token)).To(BeNil())
		})

		It("expires sessions after the timeout", func() {
			result, err := svc.Login(ctx, "alice@example.com", password, ip, agent)
			Expect(err).NotTo(HaveOccurred())

			advance(auth.DefaultSessionTimeout)
			Expect(svc.ValidateSession(ctx, result.Token)).To(BeNil())
		})
	})

	Context("with repeated wrong passwords", func() {
		It("locks along the ladder when failures are spread out", func() {
			for range 4 {
				_, err := svc.Login(ctx, "alice", "Wr0ng!Pass", ip, agent)
				Expect(auth.KindOf(err)).To(Equal(auth.KindInvalidCredentials))
				advance(20 * time.Minute)
			}

			_, err := svc.Login(ctx, "alice", "Wr0ng!Pass", ip, agent)
			Expect(auth.KindOf(err)).To(Equal(auth.KindAccountLocked))
			Expect(auth.PublicMessage(err)).To(Equal("account is locked, try again in 30 minutes"))

			_, err = svc.Login(ctx, "alice", password, ip, agent)
			Expect(auth.KindOf(err)).To(Equal(auth.KindAccountLocked))

			advance(31 * time.Minute)
			_, err = svc.Login(ctx, "alice", password, ip, agent)
			Expect(err).NotTo(HaveOccurred())

			summary, err := svc.SecuritySummary(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.LockedAccounts).To(BeZero())
			Expect(summary.AccountLocks7d).To(Equal(1))
			Expect(summary.ActiveSessions).To(Equal(1))
		})

		It("locks for an hour on a burst of failures", func() {
			for range 4 {
				_, err := svc.Login(ctx, "alice", "Wr0ng!Pass", ip, agent)
				Expect(auth.KindOf(err)).To(Equal(auth.KindInvalidCredentials))
			}
			_, err := svc.Login(ctx, "alice", "Wr0ng!Pass", ip, agent)
			Expect(auth.PublicMessage(err)).To(Equal("account is locked, try again in 60 minutes"))

			unlocked, err := svc.UnlockAccount(ctx, userID, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(unlocked).To(BeTrue())

			_, err = svc.Login(ctx, "alice", password, ip, agent)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Context("with concurrent wrong passwords at the threshold", func() {
		It("records a single lock", func() {
			for range 4 {
				_, err := svc.Login(ctx, "alice", "Wr0ng!Pass", ip, agent)
				Expect(auth.KindOf(err)).To(Equal(auth.KindInvalidCredentials))
				advance(20 * time.Minute)
			}

			errs := make([]error, 3)
			var wg sync.WaitGroup
			for i := range errs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = svc.Login(ctx, "alice", "Wr0ng!Pass", ip, agent)
				}()
			}
			wg.Wait()

			for _, err := range errs {
				Expect(auth.KindOf(err)).To(Equal(auth.KindAccountLocked))
			}

			summary, err := svc.SecuritySummary(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.AccountLocks7d).To(Equal(1))
			Expect(summary.LockedAccounts).To(Equal(1))
		})
	})

	It("reports analytics and a clean integrity check", func() {
		_, err := svc.Login(ctx, "alice", password, ip, agent)
		Expect(err).NotTo(HaveOccurred())
		_, err = svc.Login(ctx, "mallory", password, ip, agent)
		Expect(auth.KindOf(err)).To(Equal(auth.KindInvalidCredentials))

		analytics, err := svc.SecurityAnalytics(ctx, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(analytics.PeriodDays).To(Equal(7))
		Expect(analytics.Daily).NotTo(BeEmpty())
		Expect(analytics.IPStatistics).To(BeEmpty())
		Expect(analytics.UserActivity).To(HaveLen(1))
		Expect(analytics.UserActivity[0].Username).To(Equal("alice"))
		Expect(analytics.UserActivity[0].SuccessfulLogins).To(Equal(1))

		report := svc.ValidateDataIntegrity(ctx)
		Expect(report.Issues).To(BeEmpty())
		Expect(report.OverallStatus).To(BeTrue())
	})
})
