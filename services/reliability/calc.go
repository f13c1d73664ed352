package reliability

import (
	"math"

	"github.com/ishaamahadeva-India/pompomm/pkg/score"
)

// Inputs are the aggregates of a creator's selected campaigns.
type Inputs struct {
	EngagementRates []float64
	FraudScores     []float64
	Regions         int64
}

// Compose turns inputs into the four components and the weighted composite.
// No campaigns yields all zeros.
func Compose(creatorID string, in Inputs) *Record {
	rec := &Record{CreatorID: creatorID}
	if len(in.EngagementRates) == 0 {
		return rec
	}

	eqs := score.Clamp(mean(in.EngagementRates)*2, score.Min, score.Max)
	gds := score.Clamp(float64(in.Regions)/RegionTarget*100, score.Min, score.Max)
	fsm := score.Clamp(100-mean(in.FraudScores), score.Min, score.Max)
	ss := score.Clamp(100-sampleStdDev(in.EngagementRates), score.Min, score.Max)

	rec.EngagementQuality = score.New(eqs)
	rec.GeoDiversity = score.New(gds)
	rec.FraudModifier = score.New(fsm)
	rec.Stability = score.New(ss)
	rec.CRSScore = score.New(WeightEngagement*eqs + WeightGeo*gds + WeightFraud*fsm + WeightStability*ss)
	return rec
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdDev is 0 for fewer than two points.
func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sq float64
	for _, x := range xs {
		sq += (x - m) * (x - m)
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}
