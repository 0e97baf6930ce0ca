package testutils

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatline/pkg/storage"
)

// DescribeDriver registers the behaviour every storage.Driver must have.
// newDriver is called before each test; the driver is closed after it.
func DescribeDriver(newDriver func() storage.Driver) {
	Describe("storage.Driver behaviour", func() {
		var (
			driver storage.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = nil
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		It("stores and retrieves an exchange", func() {
			ex := NewTestExchange("s1", 1)
			ex.Errors = []string{"rate limited", "retrying"}

			inserted, err := driver.Put(ctx, ex)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			got, err := driver.Get(ctx, ex.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(ex))
		})

		It("keeps zero completion times and empty errors", func() {
			ex := NewTestExchange("s1", 1)
			ex.CompletedAt = time.Time{}
			ex.Completed = false

			_, err := driver.Put(ctx, ex)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Get(ctx, ex.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.CompletedAt.IsZero()).To(BeTrue())
			Expect(got.Errors).To(BeNil())
			Expect(got.Duration()).To(BeZero())
		})

		It("treats a repeated ID as a no-op", func() {
			ex := NewTestExchange("s1", 1)
			_, err := driver.Put(ctx, ex)
			Expect(err).NotTo(HaveOccurred())

			changed := *ex
			changed.Answer = "different"
			inserted, err := driver.Put(ctx, &changed)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())

			got, err := driver.Get(ctx, ex.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Answer).To(Equal(ex.Answer))
		})

		It("rejects exchanges without an ID", func() {
			_, err := driver.Put(ctx, &storage.Exchange{})
			Expect(err).To(HaveOccurred())

			_, err = driver.Put(ctx, nil)
			Expect(err).To(HaveOccurred())
		})

		It("returns NotFoundError for an unknown ID", func() {
			_, err := driver.Get(ctx, "missing")

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.ID).To(Equal("missing"))
		})

		It("lists newest first", func() {
			for _, n := range []int{2, 1, 3} {
				_, err := driver.Put(ctx, NewTestExchange("s1", n))
				Expect(err).NotTo(HaveOccurred())
			}

			list, err := driver.List(ctx, storage.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(list)).To(Equal([]string{"ex-003", "ex-002", "ex-001"}))
		})

		It("filters by session and applies the limit", func() {
			for n := range 5 {
				session := "a"
				if n%2 == 1 {
					session = "b"
				}
				_, err := driver.Put(ctx, NewTestExchange(session, n))
				Expect(err).NotTo(HaveOccurred())
			}

			list, err := driver.List(ctx, storage.ListOptions{SessionID: "a"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(list)).To(Equal([]string{"ex-004", "ex-002", "ex-000"}))

			list, err = driver.List(ctx, storage.ListOptions{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(list)).To(Equal([]string{"ex-004", "ex-003"}))
		})

		It("returns an empty list for an empty store", func() {
			list, err := driver.List(ctx, storage.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())
		})
	})
}

func ids(list []*storage.Exchange) []string {
	out := make([]string, 0, len(list))
	for _, ex := range list {
		out = append(out, ex.ID)
	}
	return out
}
