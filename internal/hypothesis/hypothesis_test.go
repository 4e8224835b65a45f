package hypothesis

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventstudy/internal/models"
)

func carRec(eventType models.EventType, v null.Float) models.CarRecord {
	return models.CarRecord{Event: models.Event{EventType: eventType}, CAR: v}
}

func TestCalcTStats(t *testing.T) {
	cars := []models.CarRecord{
		carRec(models.Upgrade, null.FloatFrom(0.01)),
		carRec(models.Upgrade, null.FloatFrom(0.03)),
		carRec(models.Upgrade, null.FloatFrom(-0.01)),
	}

	rows := CalcTStats(cars)
	require.Len(t, rows, 1)
	r := rows[0]

	sem := 0.02 / math.Sqrt(3)
	assert.Equal(t, "upgrade", r.EventType)
	assert.InDelta(t, 0.01, r.MeanCAR, 1e-12)
	assert.Equal(t, 3, r.NObs)
	assert.InDelta(t, sem, r.SEM, 1e-12)
	assert.InDelta(t, 0.01/sem, r.TStat, 1e-9)

	// Student-t with 2 degrees of freedom has a closed form two-sided tail.
	tt := r.TStat
	assert.InDelta(t, 1-tt/math.Sqrt(2+tt*tt), r.PValue, 1e-9)
}

func TestCalcTStatsSingleton(t *testing.T) {
	rows := CalcTStats([]models.CarRecord{carRec(models.Downgrade, null.FloatFrom(0.04))})
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].NObs)
	assert.InDelta(t, 0.04, rows[0].MeanCAR, 1e-12)
	assert.True(t, math.IsNaN(rows[0].TStat))
	assert.True(t, math.IsNaN(rows[0].PValue))
}

func TestCalcTStatsZeroSEM(t *testing.T) {
	rows := CalcTStats([]models.CarRecord{
		carRec(models.Upgrade, null.FloatFrom(0.02)),
		carRec(models.Upgrade, null.FloatFrom(0.02)),
	})
	require.Len(t, rows, 1)
	assert.Equal(t, 0.0, rows[0].SEM)
	assert.True(t, math.IsNaN(rows[0].TStat))
}

func TestCalcTStatsSkipsNoData(t *testing.T) {
	rows := CalcTStats([]models.CarRecord{
		carRec(models.Upgrade, null.FloatFrom(0.01)),
		carRec(models.Upgrade, null.Float{}),
		carRec(models.Upgrade, null.FloatFrom(0.03)),
		carRec(models.Downgrade, null.Float{}),
	})
	require.Len(t, rows, 2)

	assert.Equal(t, "downgrade", rows[0].EventType)
	assert.Equal(t, 0, rows[0].NObs)
	assert.True(t, math.IsNaN(rows[0].MeanCAR))

	assert.Equal(t, "upgrade", rows[1].EventType)
	assert.Equal(t, 2, rows[1].NObs)
	assert.InDelta(t, 0.02, rows[1].MeanCAR, 1e-12)
}

func TestCalcTStatsEmpty(t *testing.T) {
	assert.Empty(t, CalcTStats(nil))
}

func TestTStatRowJSON(t *testing.T) {
	rows := CalcTStats([]models.CarRecord{carRec(models.Downgrade, null.FloatFrom(0.04))})
	b, err := json.Marshal(rows[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_type":"downgrade","mean_car":0.04,"t_stat":null,"n_obs":1,"sem":null,"p_value":null}`, string(b))
}

func TestDescribe(t *testing.T) {
	cars := []models.CarRecord{
		carRec(models.Upgrade, null.FloatFrom(0.03)),
		carRec(models.Upgrade, null.FloatFrom(-0.01)),
		carRec(models.Upgrade, null.FloatFrom(0.01)),
		carRec(models.Downgrade, null.FloatFrom(-0.05)),
	}

	sums := Describe(cars)
	require.Len(t, sums, 2)

	down := sums[0]
	assert.Equal(t, "downgrade", down.EventType)
	assert.Equal(t, 1, down.Count)
	assert.True(t, math.IsNaN(down.Std))
	assert.Equal(t, -0.05, down.Median)

	up := sums[1]
	assert.Equal(t, 3, up.Count)
	assert.InDelta(t, 0.01, up.Mean, 1e-12)
	assert.InDelta(t, 0.02, up.Std, 1e-12)
	assert.Equal(t, -0.01, up.Min)
	assert.InDelta(t, 0.0, up.Q25, 1e-12)
	assert.InDelta(t, 0.01, up.Median, 1e-12)
	assert.InDelta(t, 0.02, up.Q75, 1e-12)
	assert.Equal(t, 0.03, up.Max)
}

// Property: each row's n_obs counts only valid CARs and the mean lies
// between the group's min and max.
func TestProperty_TStatsConsistent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("n_obs and mean agree with the inputs", prop.ForAll(
		func(vals []float64, valid []bool) bool {
			var cars []models.CarRecord
			n := 0
			lo, hi := math.Inf(1), math.Inf(-1)
			for i, v := range vals {
				ok := i < len(valid) && valid[i]
				cars = append(cars, carRec(models.Upgrade, null.NewFloat(v, ok)))
				if ok {
					n++
					lo = math.Min(lo, v)
					hi = math.Max(hi, v)
				}
			}

			rows := CalcTStats(cars)
			if len(vals) == 0 {
				return len(rows) == 0
			}
			if len(rows) != 1 || rows[0].NObs != n {
				return false
			}
			if n == 0 {
				return math.IsNaN(rows[0].MeanCAR)
			}
			m := rows[0].MeanCAR
			return m >= lo-1e-12 && m <= hi+1e-12
		},
		gen.SliceOf(gen.Float64Range(-0.5, 0.5)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
