package server

import (
	"sync/atomic"
	"time"

	"github.com/xzax/axdns/internal/dns"
)

// Transport names used in logs, stats and metric labels.
const (
	TransportUDP = "udp"
	TransportTCP = "tcp"
)

// DNSStats collects DNS query statistics.
// All methods are safe for concurrent use; the Record methods are no-ops on
// a nil *DNSStats.
type DNSStats struct {
	queriesTotal   atomic.Uint64
	queriesUDP     atomic.Uint64
	queriesTCP     atomic.Uint64
	responsesOK    atomic.Uint64
	responsesFail  atomic.Uint64
	truncated      atomic.Uint64
	malformed      atomic.Uint64
	dropped        atomic.Uint64
	latencyTotalNs atomic.Uint64
}

// NewDNSStats creates a new DNS statistics collector.
func NewDNSStats() *DNSStats {
	return &DNSStats{}
}

// RecordQuery records a DNS query for the given transport.
func (s *DNSStats) RecordQuery(transport string) {
	if s == nil {
		return
	}
	s.queriesTotal.Add(1)
	switch transport {
	case TransportUDP:
		s.queriesUDP.Add(1)
	case TransportTCP:
		s.queriesTCP.Add(1)
	}
}

// RecordResponse records the outcome of an answered query.
func (s *DNSStats) RecordResponse(rcode dns.RCode, truncated bool, latency time.Duration) {
	if s == nil {
		return
	}
	if rcode == dns.RCodeNoError {
		s.responsesOK.Add(1)
	} else {
		s.responsesFail.Add(1)
	}
	if truncated {
		s.truncated.Add(1)
	}
	if latency > 0 {
		s.latencyTotalNs.Add(uint64(latency))
	}
}

// RecordMalformed records a request whose header could not be read.
func (s *DNSStats) RecordMalformed() {
	if s == nil {
		return
	}
	s.malformed.Add(1)
}

// RecordDropped records a datagram dropped by admission control.
func (s *DNSStats) RecordDropped() {
	if s == nil {
		return
	}
	s.dropped.Add(1)
}

// DNSStatsSnapshot is a point-in-time snapshot of DNS server statistics.
type DNSStatsSnapshot struct {
	QueriesTotal  uint64  `json:"queries_total"`
	QueriesUDP    uint64  `json:"queries_udp"`
	QueriesTCP    uint64  `json:"queries_tcp"`
	ResponsesOK   uint64  `json:"responses_ok"`
	ResponsesFail uint64  `json:"responses_servfail"`
	Truncated     uint64  `json:"truncated"`
	Malformed     uint64  `json:"malformed"`
	Dropped       uint64  `json:"dropped"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}

// Snapshot returns the current statistics.
func (s *DNSStats) Snapshot() DNSStatsSnapshot {
	answered := s.responsesOK.Load() + s.responsesFail.Load()
	avg := 0.0
	if answered > 0 {
		avg = float64(s.latencyTotalNs.Load()) / float64(answered) / 1e6
	}
	return DNSStatsSnapshot{
		QueriesTotal:  s.queriesTotal.Load(),
		QueriesUDP:    s.queriesUDP.Load(),
		QueriesTCP:    s.queriesTCP.Load(),
		ResponsesOK:   s.responsesOK.Load(),
		ResponsesFail: s.responsesFail.Load(),
		Truncated:     s.truncated.Load(),
		Malformed:     s.malformed.Load(),
		Dropped:       s.dropped.Load(),
		AvgLatencyMs:  avg,
	}
}
