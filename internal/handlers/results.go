package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"

	"pictopercept/internal/metrics"
	"pictopercept/internal/models"
	"pictopercept/internal/services"
	"pictopercept/views"
)

type ResultsHandler struct {
	log     *zap.Logger
	service *services.SurveyService
}

func NewResultsHandler(log *zap.Logger, service *services.SurveyService) *ResultsHandler {
	return &ResultsHandler{log: log, service: service}
}

// ShowReview renders the finished session's responses joined with stimulus
// metadata, a response-time chart and the attention-check summary.
func (h *ResultsHandler) ShowReview(c *gin.Context) {
	sess, _ := CurrentSession(c)

	rows, err := h.service.Review(sess)
	if err != nil {
		c.Redirect(http.StatusFound, "/survey")
		return
	}

	records := sess.State.Records()
	sessionMetrics := metrics.CalculateSessionMetrics(records, sess.State.StartTime())
	chart := generateLatencyChart(metrics.ItemLatencies(records, sess.State.StartTime()))
	chartJSON, err := json.Marshal(chart.JSON())
	if err != nil {
		h.log.Error("Failed to encode latency chart", zap.Error(err))
		chartJSON = nil
	}

	data := views.ReviewData{
		UserID:               sess.State.UserID(),
		AttentionConsistency: formatConsistency(sessionMetrics.AttentionConsistency),
		MeanResponseTime:     formatSeconds(sessionMetrics.MeanResponseTime),
		ChartOptionsJSON:     string(chartJSON),
		Nonce:                c.GetString("csp_nonce"),
	}
	for _, r := range rows {
		data.Rows = append(data.Rows, views.ReviewRow{
			Item:             r.ItemNumber,
			Position:         r.DeckPosition,
			Name:             r.Name,
			Chosen:           r.Chosen,
			IsAttentionCheck: r.IsAttentionCheck,
			Timestamp:        r.Timestamp.Format(models.TimestampLayout),
			Metadata:         formatMetadata(r.Metadata),
		})
	}

	render(c, http.StatusOK, "Your responses", views.Review(data))
}

func formatConsistency(m metrics.MetricResult) string {
	if !m.Calculated {
		return "not enough attention checks"
	}
	return fmt.Sprintf("%.0f%% (%d checks)", m.Value*100, m.SampleSize)
}

func formatSeconds(m metrics.MetricResult) string {
	if !m.Calculated {
		return "n/a"
	}
	return fmt.Sprintf("%.1f s", m.Value)
}

func formatMetadata(md map[string]string) string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+md[k])
	}
	return strings.Join(parts, ", ")
}

func generateLatencyChart(latencies []metrics.ItemLatency) *charts.Bar {
	labels := make([]string, 0, len(latencies))
	items := make([]opts.BarData, 0, len(latencies))
	for _, l := range latencies {
		labels = append(labels, fmt.Sprintf("%d", l.Item))
		item := opts.BarData{Value: l.Latency.Seconds()}
		if l.IsAttentionCheck {
			item.ItemStyle = &opts.ItemStyle{Color: "#d9534f"}
		}
		items = append(items, item)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Response Time per Item",
			Subtitle: "Attention checks highlighted",
		}),
		// Categories go on the axis options so they survive JSON export.
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "Item", Data: labels}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Seconds"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	bar.SetXAxis(labels).AddSeries("Response time", items)
	return bar
}
