// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package pagefile

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

var (
	readCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefile_reads_total",
		Help: "Number of page reads per page file implementation.",
	}, []string{"file"})
	writeCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefile_writes_total",
		Help: "Number of page writes per page file implementation.",
	}, []string{"file"})
	hitCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefile_cache_hits_total",
		Help: "Number of page reads served by a page cache.",
	}, []string{"file"})
	missCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefile_cache_misses_total",
		Help: "Number of page reads a page cache forwarded to its page file.",
	}, []string{"file"})
	pageGauges = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pagefile_pages",
		Help: "Number of live pages reported by the last statistics run.",
	}, []string{"file"})
)

// RegisterMetrics registers the page file metrics with the given registry.
func RegisterMetrics(reg prometheus.Registerer) error {
	return errors.Join(
		reg.Register(readCounters),
		reg.Register(writeCounters),
		reg.Register(hitCounters),
		reg.Register(missCounters),
		reg.Register(pageGauges),
	)
}

// Statistics counts page reads and writes, and for page caches hits and
// misses. Counters are process wide and
// shared by all page files of the same implementation name. A nil
// *Statistics is valid and counts nothing.
type Statistics struct {
	name   string
	reads  prometheus.Counter
	writes prometheus.Counter
	hits   prometheus.Counter
	misses prometheus.Counter
	pages  prometheus.Gauge
}

// NewStatistics returns the counters of the named implementation or nil if
// statistics are disabled.
func NewStatistics(name string, enabled bool) *Statistics {
	if !enabled {
		return nil
	}
	return &Statistics{
		name:   name,
		reads:  readCounters.WithLabelValues(name),
		writes: writeCounters.WithLabelValues(name),
		hits:   hitCounters.WithLabelValues(name),
		misses: missCounters.WithLabelValues(name),
		pages:  pageGauges.WithLabelValues(name),
	}
}

func (s *Statistics) CountRead() {
	if s != nil {
		s.reads.Inc()
	}
}

func (s *Statistics) CountWrite() {
	if s != nil {
		s.writes.Inc()
	}
}

func (s *Statistics) CountHit() {
	if s != nil {
		s.hits.Inc()
	}
}

func (s *Statistics) CountMiss() {
	if s != nil {
		s.misses.Inc()
	}
}

func (s *Statistics) Reads() uint64 {
	if s == nil {
		return 0
	}
	return counterValue(s.reads)
}

func (s *Statistics) Writes() uint64 {
	if s == nil {
		return 0
	}
	return counterValue(s.writes)
}

func (s *Statistics) Hits() uint64 {
	if s == nil {
		return 0
	}
	return counterValue(s.hits)
}

func (s *Statistics) Misses() uint64 {
	if s == nil {
		return 0
	}
	return counterValue(s.misses)
}

func (s *Statistics) SetPages(n int) {
	if s != nil {
		s.pages.Set(float64(n))
	}
}

// Fields returns the counters as log fields.
func (s *Statistics) Fields() []zap.Field {
	if s == nil {
		return nil
	}
	return []zap.Field{
		zap.Uint64(s.name+".reads", s.Reads()),
		zap.Uint64(s.name+".writes", s.Writes()),
	}
}

// CacheFields returns the hit and miss counters as log fields.
func (s *Statistics) CacheFields() []zap.Field {
	if s == nil {
		return nil
	}
	return []zap.Field{
		zap.Uint64(s.name+".cache.hits", s.Hits()),
		zap.Uint64(s.name+".cache.misses", s.Misses()),
	}
}

func counterValue(c prometheus.Counter) uint64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}
