package coop_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ygrebnov/coop"
)

func newScenarioScheduler() *coop.Scheduler {
	s, err := coop.NewScheduler(nil)
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("counting parent and child cancel", func() {
	It("cancels the child after exactly 3 cycles while the parent completes all 6", func() {
		s := newScenarioScheduler()

		var counter int
		var childID int64
		var parentIterations int

		child := func(y *coop.Yield) (any, error) {
			for {
				counter++
				if _, err := y.Send(coop.SleepFor{Delay: 0}); err != nil {
					return counter, err
				}
			}
		}

		s.CreateTask(func(y *coop.Yield) (any, error) {
			childID = s.CreateTask(child)
			for i := 1; i <= 6; i++ {
				if _, err := y.Send(coop.SleepFor{Delay: 0}); err != nil {
					return nil, err
				}
				parentIterations = i
				if i == 3 {
					Expect(s.CancelTask(childID, nil)).To(Succeed())
				}
			}
			return nil, nil
		})

		Expect(s.Run(context.Background())).To(Succeed())

		Expect(counter).To(Equal(3))
		Expect(parentIterations).To(Equal(6))

		child2, ok := s.Task(childID)
		Expect(ok).To(BeTrue())
		Expect(child2.State()).To(Equal(coop.StateCancelled))
	})
})

var _ = Describe("gather with race=2 of three factorial tasks", func() {
	It("resolves as soon as the first two finish, leaving the third running", func() {
		s := newScenarioScheduler()

		// factorialSteps multiplies one factor per yielded sleep, so relative
		// delays (not factor size) control finish order.
		factorialSteps := func(factors []int, stepDelay time.Duration) coop.CoroutineFunc {
			return func(y *coop.Yield) (any, error) {
				result := 1
				for _, f := range factors {
					if _, err := y.Send(coop.SleepFor{Delay: stepDelay}); err != nil {
						return nil, err
					}
					result *= f
				}
				return result, nil
			}
		}

		var out map[int64]any
		var cID int64

		s.CreateTask(func(y *coop.Yield) (any, error) {
			a := s.CreateTask(factorialSteps([]int{2, 3}, 2*time.Millisecond))        // 3! = 6
			b := s.CreateTask(factorialSteps([]int{2, 3, 4}, 2*time.Millisecond))     // 4! = 24
			cID = s.CreateTask(factorialSteps([]int{1, 2}, time.Hour))                // never finishes in time

			m, err := coop.Gather(y, []int64{a, b, cID}, coop.WithGatherRace(2))
			if err != nil {
				return nil, err
			}
			out = m
			return nil, nil
		})

		// C is left running (clear=false), so the run never reaches allDone;
		// bound it instead of waiting for natural completion.
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		Expect(errors.Is(s.Run(ctx), context.DeadlineExceeded)).To(BeTrue())

		Expect(out).To(HaveLen(2))
		values := map[any]bool{}
		for _, v := range out {
			values[v] = true
		}
		Expect(values).To(HaveKey(6))
		Expect(values).To(HaveKey(24))

		c, ok := s.Task(cID)
		Expect(ok).To(BeTrue())
		Expect(c.IsDone()).To(BeFalse())
	})
})

var _ = Describe("timeout on sleep", func() {
	It("raises TimeoutError within the configured bound and cancels the inner sleep", func() {
		s := newScenarioScheduler()

		innerCancelled := make(chan struct{}, 1)
		sleepLong := func(y *coop.Yield) (any, error) {
			_, err := y.Send(coop.SleepFor{Delay: time.Hour})
			if err != nil {
				innerCancelled <- struct{}{}
			}
			return "done", err
		}

		var gotErr error
		var elapsed time.Duration

		s.CreateTask(func(y *coop.Yield) (any, error) {
			start := time.Now()
			_, err := y.Send(coop.WaitFor{Fn: sleepLong, Timeout: 20 * time.Millisecond})
			elapsed = time.Since(start)
			gotErr = err
			return nil, nil
		})

		Expect(s.Run(context.Background())).To(Succeed())

		var timeoutErr *coop.TimeoutError
		Expect(errors.As(gotErr, &timeoutErr)).To(BeTrue())
		Expect(errors.Is(gotErr, coop.ErrTimeout)).To(BeTrue())
		Expect(elapsed).To(BeNumerically("<", 60*time.Millisecond))

		Eventually(innerCancelled).Should(Receive())
	})
})

var _ = Describe("gather propagates first exception", func() {
	It("aggregates member results and errors when exceptions are allowed", func() {
		s := newScenarioScheduler()

		boom := errors.New("closure error!")

		t1 := func(y *coop.Yield) (any, error) {
			if _, err := y.Send(coop.SleepFor{Delay: 0}); err != nil {
				return nil, err
			}
			if _, err := y.Send(coop.SleepFor{Delay: 0}); err != nil {
				return nil, err
			}
			return "1", nil
		}
		t2 := func(y *coop.Yield) (any, error) {
			if _, err := y.Send(coop.SleepFor{Delay: 0}); err != nil {
				return nil, err
			}
			if _, err := y.Send(coop.SleepFor{Delay: 0}); err != nil {
				return nil, err
			}
			return nil, boom
		}

		var values map[int64]any
		var gatherErr error
		var id1, id2 int64

		s.CreateTask(func(y *coop.Yield) (any, error) {
			id1 = s.CreateTask(t1)
			id2 = s.CreateTask(t2)
			values, gatherErr = coop.Gather(y, []int64{id1, id2}, coop.WithGatherAllowErrors())
			return nil, nil
		})

		Expect(s.Run(context.Background())).To(Succeed())

		Expect(values).To(HaveLen(1))
		Expect(values[id1]).To(Equal("1"))
		Expect(gatherErr).To(HaveOccurred())
		Expect(gatherErr.Error()).To(ContainSubstring("closure error!"))
	})
})

var _ = Describe("channel rendezvous", func() {
	It("delivers the sent value and schedules the receiver before the sender's continuation", func() {
		s := newScenarioScheduler()

		var order []string
		var received any

		// The channel handle is opaque outside the package, so it is minted
		// and handed to A/B from one setup task's closure rather than via a
		// raw Go channel (which would block the single-threaded dispatch).
		s.CreateTask(func(y *coop.Yield) (any, error) {
			raw, err := y.Send(coop.ChanMake{})
			if err != nil {
				return nil, err
			}
			c := raw.(*coop.Channel)

			s.CreateTask(func(y *coop.Yield) (any, error) {
				order = append(order, "A:receive")
				v, err := y.Send(coop.ChanReceive{Ch: c})
				order = append(order, "A:resumed")
				received = v
				return v, err
			})
			s.CreateTask(func(y *coop.Yield) (any, error) {
				order = append(order, "B:send")
				_, err := y.Send(coop.ChanSend{Ch: c, Msg: 42})
				order = append(order, "B:resumed")
				return nil, err
			})
			return nil, nil
		})

		Expect(s.Run(context.Background())).To(Succeed())

		Expect(received).To(Equal(42))
		Expect(order).To(Equal([]string{"A:receive", "B:send", "A:resumed", "B:resumed"}))
	})
})

var _ = Describe("future with signal", func() {
	It("signals the owner task and the registered handler without firing then", func() {
		if _, err := exec.LookPath("sleep"); err != nil {
			Skip("no sleep binary on PATH")
		}

		s := newScenarioScheduler()

		f := coop.NewSubprocessFuture(s, "subprocess", "sleep", []string{"2"})

		var thenCalled bool
		f.Then(func(any) { thenCalled = true })

		gotSig := make(chan os.Signal, 1)
		f.Signal(os.Kill, func(sig os.Signal) { gotSig <- sig })

		ownerID := s.CreateTask(func(y *coop.Yield) (any, error) {
			_, err := y.Send(coop.AddFuture{Future: f})
			return nil, err
		})

		s.CreateTask(func(y *coop.Yield) (any, error) {
			if _, err := y.Send(coop.SleepFor{Delay: 5 * time.Millisecond}); err != nil {
				return nil, err
			}
			_, err := y.Send(coop.SpawnKill{Future: f, Signal: os.Kill})
			return nil, err
		})

		Expect(s.Run(context.Background())).To(Succeed())

		owner, ok := s.Task(ownerID)
		Expect(ok).To(BeTrue())
		Expect(owner.State()).To(Equal(coop.StateSignaled))

		Expect(f.IsKilled()).To(BeTrue())
		Expect(thenCalled).To(BeFalse())

		Eventually(gotSig).Should(Receive(Equal(os.Signal(os.Kill))))
	})
})
