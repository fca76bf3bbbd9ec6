package metrics

import (
	"sync"
	"time"
)

// MetricsCollector is a lightweight in-process snapshot of the agent's
// own activity, independent of the prometheus Registry. No desktopctl
// command reads it; it holds counts and timing samples in memory for
// callers that query it directly.
type MetricsCollector struct {
	mu sync.RWMutex

	SignatureCount     int64
	VerificationCount  int64
	SuccessfulVerifies int64
	FailedVerifies     int64
	HandshakesStarted  int64
	HandshakesFailed   int64
	FramesEncoded      int64
	FramesDecoded      int64

	SignatureTimes    []int64
	VerificationTimes []int64
	HandshakeTimes    []int64

	startTime time.Time

	maxTimingSamples int
}

// NewMetricsCollector creates a new in-process collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime:        time.Now(),
		maxTimingSamples: 1000,
	}
}

// RecordSignature records a transcript signature operation.
func (mc *MetricsCollector) RecordSignature(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.SignatureCount++
	mc.recordTiming(&mc.SignatureTimes, duration)
}

// RecordVerification records a signature verification.
func (mc *MetricsCollector) RecordVerification(success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.VerificationCount++
	if success {
		mc.SuccessfulVerifies++
	} else {
		mc.FailedVerifies++
	}
	mc.recordTiming(&mc.VerificationTimes, duration)
}

// RecordHandshake records a completed handshake attempt.
func (mc *MetricsCollector) RecordHandshake(success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.HandshakesStarted++
	if !success {
		mc.HandshakesFailed++
	}
	mc.recordTiming(&mc.HandshakeTimes, duration)
}

// RecordFrame records a frame encode or decode.
func (mc *MetricsCollector) RecordFrame(encoded bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if encoded {
		mc.FramesEncoded++
	} else {
		mc.FramesDecoded++
	}
}

func (mc *MetricsCollector) recordTiming(timings *[]int64, duration time.Duration) {
	microseconds := duration.Microseconds()
	*timings = append(*timings, microseconds)

	if len(*timings) > mc.maxTimingSamples {
		*timings = (*timings)[len(*timings)-mc.maxTimingSamples:]
	}
}

// GetSnapshot returns a point-in-time snapshot of the collected metrics.
func (mc *MetricsCollector) GetSnapshot() *MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return &MetricsSnapshot{
		Timestamp:           time.Now(),
		Uptime:              time.Since(mc.startTime),
		SignatureCount:      mc.SignatureCount,
		VerificationCount:   mc.VerificationCount,
		SuccessfulVerifies:  mc.SuccessfulVerifies,
		FailedVerifies:      mc.FailedVerifies,
		HandshakesStarted:   mc.HandshakesStarted,
		HandshakesFailed:    mc.HandshakesFailed,
		FramesEncoded:       mc.FramesEncoded,
		FramesDecoded:       mc.FramesDecoded,
		AvgSignatureTime:    calculateAverage(mc.SignatureTimes),
		AvgVerificationTime: calculateAverage(mc.VerificationTimes),
		AvgHandshakeTime:    calculateAverage(mc.HandshakeTimes),
		P95SignatureTime:    calculatePercentile(mc.SignatureTimes, 95),
		P95VerificationTime: calculatePercentile(mc.VerificationTimes, 95),
		P95HandshakeTime:    calculatePercentile(mc.HandshakeTimes, 95),
	}
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.SignatureCount = 0
	mc.VerificationCount = 0
	mc.SuccessfulVerifies = 0
	mc.FailedVerifies = 0
	mc.HandshakesStarted = 0
	mc.HandshakesFailed = 0
	mc.FramesEncoded = 0
	mc.FramesDecoded = 0

	mc.SignatureTimes = nil
	mc.VerificationTimes = nil
	mc.HandshakeTimes = nil

	mc.startTime = time.Now()
}

// MetricsSnapshot is a point-in-time view of MetricsCollector's state.
type MetricsSnapshot struct {
	Timestamp time.Time
	Uptime    time.Duration

	SignatureCount     int64
	VerificationCount  int64
	SuccessfulVerifies int64
	FailedVerifies     int64
	HandshakesStarted  int64
	HandshakesFailed   int64
	FramesEncoded      int64
	FramesDecoded      int64

	AvgSignatureTime    float64
	AvgVerificationTime float64
	AvgHandshakeTime    float64

	P95SignatureTime    int64
	P95VerificationTime int64
	P95HandshakeTime    int64
}

// GetVerificationSuccessRate returns the verification success rate as a percentage.
func (ms *MetricsSnapshot) GetVerificationSuccessRate() float64 {
	if ms.VerificationCount == 0 {
		return 0
	}
	return float64(ms.SuccessfulVerifies) / float64(ms.VerificationCount) * 100
}

// GetHandshakeFailureRate returns the handshake failure rate as a percentage.
func (ms *MetricsSnapshot) GetHandshakeFailureRate() float64 {
	if ms.HandshakesStarted == 0 {
		return 0
	}
	return float64(ms.HandshakesFailed) / float64(ms.HandshakesStarted) * 100
}

func calculateAverage(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func calculatePercentile(values []int64, percentile int) int64 {
	if len(values) == 0 {
		return 0
	}

	index := len(values) * percentile / 100
	if index >= len(values) {
		index = len(values) - 1
	}

	sorted := make([]int64, len(values))
	copy(sorted, values)

	for i := 0; i < len(sorted)-1; i++ {
		for j := 0; j < len(sorted)-i-1; j++ {
			if sorted[j] > sorted[j+1] {
				sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
			}
		}
	}

	return sorted[index]
}

// globalCollector is the process-wide collector instance.
var globalCollector = NewMetricsCollector()

// GetGlobalCollector returns the process-wide metrics collector.
func GetGlobalCollector() *MetricsCollector {
	return globalCollector
}
