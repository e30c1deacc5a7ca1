// Package report renders aggregate views of the patient register: a JSON
// summary, an HTML age-distribution chart and a PNG of registrations per
// month.
package report

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/germanygsg/taurimedrec/internal/db"
)

// AgeBracket counts patients whose age falls in [Min, Max].
type AgeBracket struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Count int    `json:"count"`
}

// MonthCount is the number of registrations in one calendar month.
type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

// Summary aggregates the register.
type Summary struct {
	Total         int          `json:"total"`
	WithAddress   int          `json:"with_address"`
	WithDiagnosis int          `json:"with_diagnosis"`
	AgeMean       float64      `json:"age_mean"`
	AgeStdDev     float64      `json:"age_stddev"`
	AgeMedian     float64      `json:"age_median"`
	AgeMin        float64      `json:"age_min"`
	AgeMax        float64      `json:"age_max"`
	AgeBrackets   []AgeBracket `json:"age_brackets"`
	Registrations []MonthCount `json:"registrations"`
}

var brackets = []AgeBracket{
	{Label: "0-11", Min: 0, Max: 11},
	{Label: "12-17", Min: 12, Max: 17},
	{Label: "18-39", Min: 18, Max: 39},
	{Label: "40-64", Min: 40, Max: 64},
	{Label: "65+", Min: 65, Max: int(^uint(0) >> 1)},
}

// Summarize computes the summary of patients. Age statistics are zero for
// an empty register; the standard deviation needs at least two patients.
func Summarize(patients []db.Patient) Summary {
	s := Summary{
		Total:         len(patients),
		AgeBrackets:   AgeBrackets(patients),
		Registrations: RegistrationsByMonth(patients),
	}

	ages := make([]float64, 0, len(patients))
	for _, p := range patients {
		ages = append(ages, float64(p.Age))
		if p.Address != nil && *p.Address != "" {
			s.WithAddress++
		}
		if p.InitialDiagnosis != nil && *p.InitialDiagnosis != "" {
			s.WithDiagnosis++
		}
	}
	if len(ages) == 0 {
		return s
	}

	sort.Float64s(ages)
	s.AgeMean = stat.Mean(ages, nil)
	if len(ages) > 1 {
		s.AgeStdDev = stat.StdDev(ages, nil)
	}
	s.AgeMedian = stat.Quantile(0.5, stat.Empirical, ages, nil)
	s.AgeMin = floats.Min(ages)
	s.AgeMax = floats.Max(ages)
	return s
}

// AgeBrackets counts patients per fixed age bracket. Negative ages are not
// counted.
func AgeBrackets(patients []db.Patient) []AgeBracket {
	out := make([]AgeBracket, len(brackets))
	copy(out, brackets)
	for _, p := range patients {
		for i := range out {
			if p.Age >= out[i].Min && p.Age <= out[i].Max {
				out[i].Count++
				break
			}
		}
	}
	return out
}

// RegistrationsByMonth counts patients per UTC month of created_at, oldest
// first. Patients without a timestamp are skipped.
func RegistrationsByMonth(patients []db.Patient) []MonthCount {
	counts := map[string]int{}
	for _, p := range patients {
		if p.CreatedAt == nil {
			continue
		}
		counts[p.CreatedAt.UTC().Format("2006-01")]++
	}

	out := make([]MonthCount, 0, len(counts))
	for month, n := range counts {
		out = append(out, MonthCount{Month: month, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// monthLabel renders YYYY-MM as e.g. "Mar 2025" for chart axes.
func monthLabel(month string) string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return month
	}
	return t.Format("Jan 2006")
}
