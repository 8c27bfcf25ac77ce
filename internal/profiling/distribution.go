package profiling

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"biomark/domain/prediction"
	"biomark/domain/subtype"
)

// LowConfidenceThreshold marks predictions whose top probability is too weak
// to act on
const LowConfidenceThreshold = 0.5

// Shape describes the distribution of a set of confidence values
type Shape struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"stddev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	IsNormal bool    `json:"is_normal"`
	NormalP  float64 `json:"normal_p"`
	Outliers int     `json:"outliers"`
}

// Profile is the confidence profile of a prediction history
type Profile struct {
	Confidence    Shape                   `json:"confidence"`
	ByLabel       map[subtype.Label]Shape `json:"by_label"`
	LowConfidence int                     `json:"low_confidence"`
}

// DistributionAnalyzer handles distribution shape analysis
type DistributionAnalyzer struct {
	lowThreshold float64
}

// NewDistributionAnalyzer creates a new distribution analyzer
func NewDistributionAnalyzer() *DistributionAnalyzer {
	return &DistributionAnalyzer{lowThreshold: LowConfidenceThreshold}
}

// ProfileEvents profiles the confidence of events overall and per predicted
// label. An empty history yields a zero profile.
func (da *DistributionAnalyzer) ProfileEvents(events []prediction.Event) (Profile, error) {
	profile := Profile{ByLabel: make(map[subtype.Label]Shape)}
	if len(events) == 0 {
		return profile, nil
	}

	all := make([]float64, 0, len(events))
	byLabel := make(map[subtype.Label][]float64)
	for _, e := range events {
		all = append(all, e.Confidence)
		byLabel[e.Label] = append(byLabel[e.Label], e.Confidence)
		if e.Confidence < da.lowThreshold {
			profile.LowConfidence++
		}
	}

	shape, err := da.AnalyzeDistribution(all)
	if err != nil {
		return profile, err
	}
	profile.Confidence = shape

	for _, label := range subtype.Labels {
		values, ok := byLabel[label]
		if !ok {
			continue
		}
		s, err := da.AnalyzeDistribution(values)
		if err != nil {
			return profile, err
		}
		profile.ByLabel[label] = s
	}
	return profile, nil
}

// AnalyzeDistribution computes summary statistics and shape markers for data
func (da *DistributionAnalyzer) AnalyzeDistribution(data []float64) (Shape, error) {
	shape := Shape{Count: len(data)}

	mean, err := stats.Mean(data)
	if err != nil {
		return shape, err
	}
	stdDev, err := stats.StandardDeviation(data)
	if err != nil {
		return shape, err
	}
	min, err := stats.Min(data)
	if err != nil {
		return shape, err
	}
	max, err := stats.Max(data)
	if err != nil {
		return shape, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return shape, err
	}

	shape.Mean = mean
	shape.StdDev = stdDev
	shape.Min = min
	shape.Max = max
	shape.Median = median

	// nearest-rank quartiles need at least four values
	if len(data) >= 4 {
		if shape.Q25, err = stats.Percentile(data, 25); err != nil {
			return shape, err
		}
		if shape.Q75, err = stats.Percentile(data, 75); err != nil {
			return shape, err
		}
	} else {
		shape.Q25, shape.Q75 = min, max
	}

	shape.Skewness = calculateSkewness(data, mean, stdDev)
	shape.Kurtosis = calculateKurtosis(data, mean, stdDev)
	shape.IsNormal, shape.NormalP = testNormality(shape.Skewness, shape.Kurtosis, len(data))
	shape.Outliers = detectOutliers(data, shape.Q25, shape.Q75)

	return shape, nil
}

// calculateSkewness computes sample skewness using the adjusted Fisher-Pearson coefficient
func calculateSkewness(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 || stdDev == 0 {
		return 0
	}

	n := float64(len(data))
	sumCubed := 0.0
	for _, x := range data {
		d := (x - mean) / stdDev
		sumCubed += d * d * d
	}

	return sumCubed / n * math.Sqrt(n*(n-1)) / (n - 2)
}

// calculateKurtosis computes sample kurtosis (3 for a normal distribution)
func calculateKurtosis(data []float64, mean, stdDev float64) float64 {
	if len(data) < 4 || stdDev == 0 {
		return 3
	}

	n := float64(len(data))
	sumFourth := 0.0
	for _, x := range data {
		d := (x - mean) / stdDev
		sumFourth += d * d * d * d
	}

	excess := sumFourth/n - 3
	excess = excess*(n-1)/((n-2)*(n-3)) + 6/(n+1)
	return excess + 3
}

// testNormality approximates a Jarque-Bera style test on the skewness and
// kurtosis markers
func testNormality(skewness, kurtosis float64, n int) (bool, float64) {
	if n < 3 {
		return false, 1.0
	}

	stat := float64(n) / 6 * (skewness*skewness + (kurtosis-3)*(kurtosis-3)/4)
	chi := distuv.ChiSquared{K: 2}
	p := 1 - chi.CDF(stat)
	return p > 0.05, p
}

// detectOutliers counts values outside the 1.5 IQR fences
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lower := q25 - 1.5*iqr
	upper := q75 + 1.5*iqr

	count := 0
	for _, x := range data {
		if x < lower || x > upper {
			count++
		}
	}
	return count
}
