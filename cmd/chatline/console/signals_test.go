package consolecmder

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeConsole struct {
	answering atomic.Bool
	stopped   atomic.Int32
}

func (f *fakeConsole) Interrupt() bool {
	if !f.answering.CompareAndSwap(true, false) {
		return false
	}
	f.stopped.Add(1)
	return true
}

var _ = Describe("watchSignals", func() {
	var (
		signals chan os.Signal
		con     *fakeConsole
		quits   atomic.Int32
		done    chan struct{}
		cancel  context.CancelFunc
	)

	BeforeEach(func() {
		signals = make(chan os.Signal, 1)
		con = &fakeConsole{}
		quits.Store(0)
		done = make(chan struct{})

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		go func() {
			defer close(done)
			watchSignals(ctx, signals, con, func() { quits.Add(1) })
		}()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(BeClosed())
	})

	It("stops the answer in flight and keeps the console running", func() {
		con.answering.Store(true)
		signals <- os.Interrupt

		Eventually(con.stopped.Load).Should(Equal(int32(1)))
		Consistently(done).ShouldNot(BeClosed())
		Expect(quits.Load()).To(Equal(int32(0)))

		// A second interrupt, now at the prompt, quits.
		signals <- os.Interrupt
		Eventually(done).Should(BeClosed())
		Expect(quits.Load()).To(Equal(int32(1)))
	})

	It("quits on an interrupt at the prompt", func() {
		signals <- os.Interrupt
		Eventually(done).Should(BeClosed())
		Expect(quits.Load()).To(Equal(int32(1)))
		Expect(con.stopped.Load()).To(Equal(int32(0)))
	})

	It("quits on SIGTERM even while answering", func() {
		con.answering.Store(true)
		signals <- syscall.SIGTERM
		Eventually(done).Should(BeClosed())
		Expect(quits.Load()).To(Equal(int32(1)))
		Expect(con.stopped.Load()).To(Equal(int32(0)))
	})
})
