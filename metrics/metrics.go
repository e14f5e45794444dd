// Package metrics counts trades and triggered limits of a backtest in a
// private Prometheus registry that can be dumped in text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rustyeddy/jsetrader/portfolio"
	"github.com/rustyeddy/jsetrader/sim"
)

// Recorder is a backtest observer. Its collectors are safe for concurrent
// use, so one Recorder may watch several runs of a sweep.
type Recorder struct {
	registry *prometheus.Registry

	Days      prometheus.Counter
	Trades    *prometheus.CounterVec
	Limits    *prometheus.CounterVec
	Equity    prometheus.Gauge
	Cash      prometheus.Gauge
	Drawdown  prometheus.Gauge
	Positions prometheus.Gauge
}

// New creates a Recorder whose series carry a strategy label.
func New(strategy string) *Recorder {
	labels := prometheus.Labels{"strategy": strategy}
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		Days: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "jsetrader_days_total",
			Help:        "Trading days processed",
			ConstLabels: labels,
		}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "jsetrader_trades_total",
			Help:        "Trade records by action, outcome and source",
			ConstLabels: labels,
		}, []string{"action", "outcome", "source"}),
		Limits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "jsetrader_limits_triggered_total",
			Help:        "Risk limits triggered by trade records",
			ConstLabels: labels,
		}, []string{"limit"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "jsetrader_equity_zar",
			Help:        "Equity at the last close in ZAR",
			ConstLabels: labels,
		}),
		Cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "jsetrader_cash_zar",
			Help:        "Cash at the last close in ZAR",
			ConstLabels: labels,
		}),
		Drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "jsetrader_drawdown_ratio",
			Help:        "Drawdown from peak equity at the last close (0.0-1.0)",
			ConstLabels: labels,
		}),
		Positions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "jsetrader_open_positions",
			Help:        "Open positions at the last close",
			ConstLabels: labels,
		}),
	}
	r.registry.MustRegister(r.Days, r.Trades, r.Limits, r.Equity, r.Cash, r.Drawdown, r.Positions)
	return r
}

// Registry exposes the private registry, e.g. for promhttp.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// OnDay updates the collectors from one closed day.
func (r *Recorder) OnDay(snap portfolio.Snapshot, trades []sim.TradeRecord) {
	r.Days.Inc()
	for _, t := range trades {
		r.Trades.WithLabelValues(string(t.Action), string(t.Outcome), string(t.Source)).Inc()
		for _, l := range t.TriggeredLimits {
			r.Limits.WithLabelValues(string(l)).Inc()
		}
	}

	eq, _ := snap.Equity.Float64()
	cash, _ := snap.Cash.Float64()
	dd, _ := snap.Drawdown().Float64()
	r.Equity.Set(eq)
	r.Cash.Set(cash)
	r.Drawdown.Set(dd)
	r.Positions.Set(float64(len(snap.Positions)))
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// TradeCount reads the current value of one trades_total series.
func (r *Recorder) TradeCount(action, outcome, source string) float64 {
	c, err := r.Trades.GetMetricWithLabelValues(action, outcome, source)
	if err != nil {
		return 0
	}
	return counterValue(c)
}

// LimitCount reads the current value of one limits_triggered_total series.
func (r *Recorder) LimitCount(limit string) float64 {
	c, err := r.Limits.GetMetricWithLabelValues(limit)
	if err != nil {
		return 0
	}
	return counterValue(c)
}

func counterValue(c prometheus.Counter) float64 {
	m := &io_prometheus_client.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	m := &io_prometheus_client.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// EquityValue is the equity gauge's current value.
func (r *Recorder) EquityValue() float64 { return gaugeValue(r.Equity) }
