package insights

import (
	"fmt"
	"math"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
)

const (
	ModelRollingStdDev = "rolling_stddev"
	ModelLinearTrend   = "linear_trend"
	ModelMovingAverage = "moving_average"
)

// Two-sided 95% interval for forecast bounds.
const forecastZ = 1.96

// Band is the expected range for one observation.
type Band struct {
	Lower float64
	Upper float64
}

func (b Band) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// AnomalyModel derives the expected range of the next observation from the
// observations before it.
type AnomalyModel interface {
	Name() string
	// Window is the number of prior observations Expected needs.
	Window() int
	Expected(history []float64) (Band, bool)
}

type Prediction struct {
	Predicted float64
	Lower     float64
	Upper     float64
}

type ForecastModel interface {
	Name() string
	Predict(history []float64, horizon int) []Prediction
}

// RollingStdDev expects mean ± max(K·stddev, MinBand·|mean|) over the last Window points.
// The MinBand floor keeps a perfectly flat series from flagging cent-level noise.
type RollingStdDev struct {
	Size    int
	K       float64
	MinBand float64
}

func (m RollingStdDev) Name() string { return ModelRollingStdDev }
func (m RollingStdDev) Window() int  { return m.Size }

func (m RollingStdDev) Expected(history []float64) (Band, bool) {
	if m.Size <= 0 || len(history) < m.Size {
		return Band{}, false
	}
	mean, sd := meanStdDev(history[len(history)-m.Size:])
	half := math.Max(m.K*sd, m.MinBand*math.Abs(mean))
	return Band{Lower: mean - half, Upper: mean + half}, true
}

// LinearTrend fits an ordinary least squares line and extrapolates it.
type LinearTrend struct{}

func (LinearTrend) Name() string { return ModelLinearTrend }

func (LinearTrend) Predict(history []float64, horizon int) []Prediction {
	n := len(history)
	if n == 0 || horizon <= 0 {
		return nil
	}

	intercept, slope := fitLine(history)
	var sse float64
	for i, y := range history {
		r := y - (intercept + slope*float64(i))
		sse += r * r
	}
	resid := 0.0
	if n > 2 {
		resid = math.Sqrt(sse / float64(n-2))
	}

	out := make([]Prediction, horizon)
	for h := range horizon {
		x := float64(n + h)
		p := math.Max(intercept+slope*x, 0)
		// widen the interval the further out the prediction is
		spread := forecastZ * resid * math.Sqrt(1+float64(h+1)/float64(n))
		out[h] = Prediction{Predicted: p, Lower: math.Max(p-spread, 0), Upper: p + spread}
	}
	return out
}

// MovingAverage predicts the mean of the last Size points for every future day.
type MovingAverage struct {
	Size int
}

func (m MovingAverage) Name() string { return ModelMovingAverage }

func (m MovingAverage) Predict(history []float64, horizon int) []Prediction {
	if len(history) == 0 || horizon <= 0 {
		return nil
	}
	window := history
	if m.Size > 0 && len(history) > m.Size {
		window = history[len(history)-m.Size:]
	}
	mean, sd := meanStdDev(window)
	spread := forecastZ * sd

	out := make([]Prediction, horizon)
	for h := range out {
		out[h] = Prediction{Predicted: mean, Lower: math.Max(mean-spread, 0), Upper: mean + spread}
	}
	return out
}

type ModelSettings struct {
	AnomalyModel  string
	ForecastModel string
	Window        int
	K             float64
	MinBand       float64
}

func NewAnomalyModel(s ModelSettings) (AnomalyModel, error) {
	switch s.AnomalyModel {
	case "", ModelRollingStdDev:
		return RollingStdDev{Size: s.Window, K: s.K, MinBand: s.MinBand}, nil
	default:
		return nil, fmt.Errorf("unknown anomaly model %q", s.AnomalyModel)
	}
}

func NewForecastModel(s ModelSettings) (ForecastModel, error) {
	switch s.ForecastModel {
	case "", ModelLinearTrend:
		return LinearTrend{}, nil
	case ModelMovingAverage:
		return MovingAverage{Size: s.Window}, nil
	default:
		return nil, fmt.Errorf("unknown forecast model %q", s.ForecastModel)
	}
}

// severityOf measures how far v lies beyond the band edge in half-band widths.
func severityOf(v float64, b Band) domain.Severity {
	half := (b.Upper - b.Lower) / 2
	var beyond float64
	switch {
	case v > b.Upper:
		beyond = v - b.Upper
	case v < b.Lower:
		beyond = b.Lower - v
	}
	if half <= 0 {
		if beyond > 0 {
			return domain.SeverityCritical
		}
		return domain.SeverityLow
	}
	switch widths := beyond / half; {
	case widths >= 3:
		return domain.SeverityCritical
	case widths >= 2:
		return domain.SeverityHigh
	case widths >= 1:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func meanStdDev(xs []float64) (mean, sd float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

func fitLine(ys []float64) (intercept, slope float64) {
	n := float64(len(ys))
	var sx, sy, sxx, sxy float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return sy / n, 0
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return intercept, slope
}
