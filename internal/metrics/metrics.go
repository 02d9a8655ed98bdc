package metrics

import (
	"math"
	"time"

	"pictopercept/internal/models"
)

type MetricResult struct {
	Value      float64 `json:"value"`
	Calculated bool    `json:"calculated"`
	SampleSize int     `json:"sampleSize,omitempty"`
}

// SessionMetrics describes how one respondent answered within their session.
type SessionMetrics struct {
	AttentionConsistency MetricResult `json:"attentionConsistency"`
	MeanResponseTime     MetricResult `json:"meanResponseTime"`
	ResponseTimeSD       MetricResult `json:"responseTimeSd"`
	FirstChoiceRate      MetricResult `json:"firstChoiceRate"`
}

// ItemLatency is the time a respondent took to answer one item.
type ItemLatency struct {
	Item             int           `json:"item"`
	Latency          time.Duration `json:"latency"`
	IsAttentionCheck bool          `json:"attentionCheck"`
}

// trialAnswer is one trial folded from its pair of records.
type trialAnswer struct {
	item      int
	chosen    string
	first     bool
	at        time.Time
	attention bool
}

func foldTrials(records []models.ResponseRecord) []trialAnswer {
	var trials []trialAnswer
	for i := 0; i+1 < len(records); i += 2 {
		a, b := records[i], records[i+1]
		t := trialAnswer{item: a.ItemNumber, at: a.Timestamp, attention: a.IsAttentionCheck}
		if a.Chosen {
			t.chosen, t.first = a.Stimulus, true
		} else if b.Chosen {
			t.chosen = b.Stimulus
		}
		trials = append(trials, t)
	}
	return trials
}

// CalculateSessionMetrics computes all metrics for a response log. The log
// must hold records in pairs, as the trial controller writes them.
func CalculateSessionMetrics(records []models.ResponseRecord, start time.Time) SessionMetrics {
	trials := foldTrials(records)
	latencies := ItemLatencies(records, start)

	return SessionMetrics{
		AttentionConsistency: calculateAttentionConsistency(trials),
		MeanResponseTime:     calculateMeanLatency(latencies),
		ResponseTimeSD:       calculateLatencySD(latencies),
		FirstChoiceRate:      calculateFirstChoiceRate(trials),
	}
}

// ItemLatencies measures each item from the previous answer, or from the
// session start for the first one.
func ItemLatencies(records []models.ResponseRecord, start time.Time) []ItemLatency {
	trials := foldTrials(records)
	out := make([]ItemLatency, 0, len(trials))
	prev := start
	for _, t := range trials {
		out = append(out, ItemLatency{Item: t.item, Latency: t.at.Sub(prev), IsAttentionCheck: t.attention})
		prev = t.at
	}
	return out
}

// calculateAttentionConsistency is the share of attention check answers that
// picked the most frequently chosen image. The same pair is shown each time,
// so a consistent respondent scores 1.
func calculateAttentionConsistency(trials []trialAnswer) MetricResult {
	counts := make(map[string]int)
	n := 0
	for _, t := range trials {
		if !t.attention || t.chosen == "" {
			continue
		}
		counts[t.chosen]++
		n++
	}
	if n < 2 {
		return MetricResult{Calculated: false, SampleSize: n}
	}

	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	return MetricResult{Value: float64(best) / float64(n), Calculated: true, SampleSize: n}
}

func calculateMeanLatency(latencies []ItemLatency) MetricResult {
	if len(latencies) == 0 {
		return MetricResult{Calculated: false}
	}
	var sum float64
	for _, l := range latencies {
		sum += l.Latency.Seconds()
	}
	return MetricResult{Value: sum / float64(len(latencies)), Calculated: true, SampleSize: len(latencies)}
}

func calculateLatencySD(latencies []ItemLatency) MetricResult {
	if len(latencies) < 2 {
		return MetricResult{Calculated: false, SampleSize: len(latencies)}
	}
	mean := calculateMeanLatency(latencies).Value
	var sumSq float64
	for _, l := range latencies {
		d := l.Latency.Seconds() - mean
		sumSq += d * d
	}
	return MetricResult{
		Value:      math.Sqrt(sumSq / float64(len(latencies)-1)),
		Calculated: true,
		SampleSize: len(latencies),
	}
}

// calculateFirstChoiceRate measures position bias: the share of trials where
// the left (first) image was chosen.
func calculateFirstChoiceRate(trials []trialAnswer) MetricResult {
	if len(trials) == 0 {
		return MetricResult{Calculated: false}
	}
	first := 0
	for _, t := range trials {
		if t.first {
			first++
		}
	}
	return MetricResult{Value: float64(first) / float64(len(trials)), Calculated: true, SampleSize: len(trials)}
}
