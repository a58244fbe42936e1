package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ai-router/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("Snapshot", func() {
		It("should total requests across backends", func() {
			m.IncrementRequests("primary")
			m.IncrementRequests("primary")
			m.IncrementRequests("secondary")

			snap := m.Snapshot()
			Expect(snap.TotalRequests).To(Equal(int64(3)))
			Expect(snap.Backends["primary"].Requests).To(Equal(int64(2)))
			Expect(snap.Backends["secondary"].Requests).To(Equal(int64(1)))
		})

		It("should track failures and failovers separately", func() {
			m.IncrementFailures("primary")
			m.IncrementFailures("primary")
			m.RecordFailover("secondary")

			snap := m.Snapshot()
			Expect(snap.Backends["primary"].Failures).To(Equal(int64(2)))
			Expect(snap.Backends["secondary"].Failovers).To(Equal(int64(1)))
		})

		It("should count requests rejected for lack of backends", func() {
			m.IncrementUnavailable()
			m.IncrementUnavailable()

			Expect(m.Snapshot().Unavailable).To(Equal(int64(2)))
		})

		It("should compute latency percentiles per backend", func() {
			for i := 1; i <= 100; i++ {
				m.RecordResponse("primary", time.Duration(i)*time.Millisecond, 200)
			}

			bm := m.Snapshot().Backends["primary"]
			Expect(bm.P50Response).To(BeNumerically("~", 50*time.Millisecond, 2*time.Millisecond))
			Expect(bm.P95Response).To(BeNumerically("~", 95*time.Millisecond, 2*time.Millisecond))
			Expect(bm.P99Response).To(BeNumerically("~", 99*time.Millisecond, 2*time.Millisecond))
			Expect(bm.StatusCodes[200]).To(Equal(int64(100)))
		})

		It("should reflect health updates", func() {
			m.UpdateHealthStatus("primary", false)
			Expect(m.Snapshot().Backends["primary"].Healthy).To(BeFalse())

			m.UpdateHealthStatus("primary", true)
			Expect(m.Snapshot().Backends["primary"].Healthy).To(BeTrue())
		})

		It("should cap retained response samples", func() {
			for i := 0; i < 1500; i++ {
				m.RecordResponse("primary", time.Millisecond, 200)
			}

			Expect(m.Snapshot().Backends["primary"].StatusCodes[200]).To(Equal(int64(1500)))
		})
	})
})
