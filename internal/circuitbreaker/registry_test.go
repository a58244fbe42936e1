package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ai-router/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry(
			circuitbreaker.NewMemoryFactory(3, 100*time.Millisecond))
	})

	Describe("GetBreaker", func() {
		It("should create a breaker on first access", func() {
			cb := registry.GetBreaker("primary")
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should return the same breaker for the same name", func() {
			cb1 := registry.GetBreaker("primary")
			cb2 := registry.GetBreaker("primary")
			Expect(cb1).To(BeIdenticalTo(cb2))
		})

		It("should return distinct breakers for distinct names", func() {
			cb1 := registry.GetBreaker("primary")
			cb2 := registry.GetBreaker("secondary")
			Expect(cb1).NotTo(BeIdenticalTo(cb2))
		})

		It("should keep failure state per backend", func() {
			registry.GetBreaker("primary").RecordFailure()
			registry.GetBreaker("primary").RecordFailure()
			registry.GetBreaker("primary").RecordFailure()

			Expect(registry.GetBreaker("primary").State()).To(Equal(circuitbreaker.StateOpen))
			Expect(registry.GetBreaker("secondary").State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should be safe under concurrent access", func() {
			var wg sync.WaitGroup
			breakers := make([]circuitbreaker.Breaker, 50)

			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					breakers[n] = registry.GetBreaker("shared")
				}(i)
			}
			wg.Wait()

			for _, cb := range breakers {
				Expect(cb).To(BeIdenticalTo(breakers[0]))
			}
		})
	})

	Describe("Prune", func() {
		It("should drop breakers for removed backends", func() {
			registry.GetBreaker("primary").RecordFailure()
			registry.GetBreaker("secondary").RecordFailure()

			registry.Prune(map[string]bool{"primary": true})

			stats := registry.Stats()
			Expect(stats).To(HaveKey("primary"))
			Expect(stats).NotTo(HaveKey("secondary"))
		})

		It("should recreate a pruned breaker fresh on next access", func() {
			cb := registry.GetBreaker("secondary")
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

			registry.Prune(map[string]bool{})

			Expect(registry.GetBreaker("secondary").State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("Stats", func() {
		It("should report the state of every breaker", func() {
			registry.GetBreaker("primary")
			for i := 0; i < 3; i++ {
				registry.GetBreaker("secondary").RecordFailure()
			}

			stats := registry.Stats()
			Expect(stats["primary"]).To(Equal(circuitbreaker.StateClosed))
			Expect(stats["secondary"]).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("Reset", func() {
		It("should clear all breakers", func() {
			registry.GetBreaker("primary")
			registry.GetBreaker("secondary")
			registry.Reset()
			Expect(registry.Stats()).To(BeEmpty())
		})
	})
})
