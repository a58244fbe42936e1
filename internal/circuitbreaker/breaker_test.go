package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ai-router/internal/circuitbreaker"
)

var _ = Describe("MemoryBreaker", func() {
	var cb *circuitbreaker.MemoryBreaker

	Describe("NewMemoryBreaker", func() {
		It("should create a circuit breaker in closed state", func() {
			cb = circuitbreaker.NewMemoryBreaker(5, 30*time.Second)
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("State transitions", func() {
		BeforeEach(func() {
			cb = circuitbreaker.NewMemoryBreaker(3, 100*time.Millisecond)
		})

		Context("when in CLOSED state", func() {
			It("should be eligible", func() {
				Expect(cb.Eligible()).To(BeTrue())
			})

			It("should acquire without claiming a trial slot", func() {
				Expect(cb.Acquire()).To(BeTrue())
				Expect(cb.Acquire()).To(BeTrue())
			})

			It("should remain closed after failures below threshold", func() {
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				Expect(cb.Eligible()).To(BeTrue())
			})

			It("should transition to OPEN after exactly the failure threshold", func() {
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should reset the failure count on success", func() {
				cb.RecordFailure()
				cb.RecordFailure()
				cb.RecordSuccess()
				Expect(cb.Failures()).To(Equal(0))
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			})
		})

		Context("when in OPEN state", func() {
			BeforeEach(func() {
				// Trip the circuit
				cb.RecordFailure()
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should not be eligible", func() {
				Expect(cb.Eligible()).To(BeFalse())
			})

			It("should not allow acquiring", func() {
				Expect(cb.Acquire()).To(BeFalse())
			})

			It("should stay OPEN regardless of further failure reports", func() {
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
				Expect(cb.Eligible()).To(BeFalse())
			})

			It("should transition to HALF-OPEN after the recovery timeout", func() {
				time.Sleep(150 * time.Millisecond)
				Expect(cb.Eligible()).To(BeTrue())
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			})

			It("should remain OPEN before the recovery timeout expires", func() {
				time.Sleep(50 * time.Millisecond)
				Expect(cb.Eligible()).To(BeFalse())
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})
		})

		Context("when in HALF-OPEN state", func() {
			BeforeEach(func() {
				// Trip the circuit, then age it past the recovery timeout
				cb.RecordFailure()
				cb.RecordFailure()
				cb.RecordFailure()
				time.Sleep(150 * time.Millisecond)
				Expect(cb.Eligible()).To(BeTrue())
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			})

			It("should admit exactly one trial", func() {
				Expect(cb.Acquire()).To(BeTrue())
				Expect(cb.Acquire()).To(BeFalse())
			})

			It("should not be eligible while a trial is in flight", func() {
				Expect(cb.Acquire()).To(BeTrue())
				Expect(cb.Eligible()).To(BeFalse())
			})

			It("should hand back an aborted trial without a verdict", func() {
				Expect(cb.Acquire()).To(BeTrue())
				cb.Release()
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
				Expect(cb.Eligible()).To(BeTrue())
				Expect(cb.Acquire()).To(BeTrue())
			})

			It("should transition to CLOSED on a successful trial", func() {
				Expect(cb.Acquire()).To(BeTrue())
				cb.RecordSuccess()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				Expect(cb.Failures()).To(Equal(0))
			})

			It("should release the trial slot after success", func() {
				Expect(cb.Acquire()).To(BeTrue())
				cb.RecordSuccess()
				Expect(cb.Eligible()).To(BeTrue())
				Expect(cb.Acquire()).To(BeTrue())
			})

			It("should transition back to OPEN on a failed trial", func() {
				Expect(cb.Acquire()).To(BeTrue())
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should restart the recovery timer on a failed trial", func() {
				// Let the breaker sit half-open for a while before failing
				// the trial; the new Open period must run in full.
				time.Sleep(60 * time.Millisecond)
				Expect(cb.Acquire()).To(BeTrue())
				cb.RecordFailure()

				time.Sleep(60 * time.Millisecond)
				Expect(cb.Eligible()).To(BeFalse())

				time.Sleep(60 * time.Millisecond)
				Expect(cb.Eligible()).To(BeTrue())
			})
		})
	})

	Describe("Concurrent trial admission", func() {
		It("should grant the half-open slot to exactly one goroutine", func() {
			cb = circuitbreaker.NewMemoryBreaker(1, 50*time.Millisecond)
			cb.RecordFailure()
			time.Sleep(80 * time.Millisecond)
			Expect(cb.Eligible()).To(BeTrue())

			var granted int64
			var mu sync.Mutex
			var wg sync.WaitGroup

			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if cb.Acquire() {
						mu.Lock()
						granted++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Expect(granted).To(Equal(int64(1)))
		})

		It("should not lose failure increments under concurrent reports", func() {
			cb = circuitbreaker.NewMemoryBreaker(1000, time.Minute)

			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					cb.RecordFailure()
				}()
			}
			wg.Wait()

			Expect(cb.Failures()).To(Equal(100))
		})
	})
})
