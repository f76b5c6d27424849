package reminder

import (
	"testing"
	"time"

	"github.com/Medi-Pal/medipal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }

func medicine(medType string, timings ...store.MedicineTiming) store.PrescriptionMedicine {
	m := store.PrescriptionMedicine{
		MedicineID: 1,
		BrandName:  "Crocin",
		DrugName:   "Paracetamol",
		DosageType: store.DosageTablet,
		Timings:    timings,
	}
	if medType != "" {
		m.Type = strPtr(medType)
	}
	return m
}

func TestComputeFireTime(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 3, 10, 7, 0, 0, 0, loc),
			want: time.Date(2026, 3, 10, 8, 30, 0, 0, loc),
		},
		{
			name: "already passed",
			now:  time.Date(2026, 3, 10, 9, 0, 0, 0, loc),
			want: time.Date(2026, 3, 11, 8, 30, 0, 0, loc),
		},
		{
			name: "exactly now",
			now:  time.Date(2026, 3, 10, 8, 30, 0, 0, loc),
			want: time.Date(2026, 3, 11, 8, 30, 0, 0, loc),
		},
		{
			name: "month end",
			now:  time.Date(2026, 3, 31, 23, 0, 0, 0, loc),
			want: time.Date(2026, 4, 1, 8, 30, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeFireTime(8, 30, tt.now)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}

func TestComputeFireTime_AlwaysStrictlyFuture(t *testing.T) {
	base := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	for step := 0; step < 24*60; step += 7 {
		now := base.Add(time.Duration(step)*time.Minute + 13*time.Second)
		for hour := 0; hour < 24; hour++ {
			for _, minute := range []int{0, 15, 30, 59} {
				naive := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
				got := ComputeFireTime(hour, minute, now)

				require.True(t, got.After(now))
				if naive.After(now) {
					require.True(t, got.Equal(naive))
				} else {
					require.Equal(t, 24*time.Hour, got.Sub(naive))
				}
			}
		}
	}
}

func TestDosageText(t *testing.T) {
	tests := []struct {
		name string
		med  store.PrescriptionMedicine
		want string
	}{
		{
			name: "single slot tablets",
			med:  medicine("tablet", store.MedicineTiming{TimeOfDay: "morning", Dosage: 2}),
			want: "2 tablets in morning",
		},
		{
			name: "singular and night phrasing",
			med: medicine("Tablet",
				store.MedicineTiming{TimeOfDay: "night", Dosage: 2},
				store.MedicineTiming{TimeOfDay: "Morning", Dosage: 1},
			),
			want: "1 tablet in morning, 2 tablets at night",
		},
		{
			name: "ml is never pluralised",
			med:  medicine("Syrup", store.MedicineTiming{TimeOfDay: "evening", Dosage: 5}),
			want: "5 ml in evening",
		},
		{
			name: "drops",
			med:  medicine("eye drops", store.MedicineTiming{TimeOfDay: "afternoon", Dosage: 3}),
			want: "3 drops in afternoon",
		},
		{
			name: "cream application",
			med:  medicine("cream", store.MedicineTiming{TimeOfDay: "night", Dosage: 1}),
			want: "1 application at night",
		},
		{
			name: "unknown type has no unit",
			med:  medicine("gizmo", store.MedicineTiming{TimeOfDay: "morning", Dosage: 2}),
			want: "2 in morning",
		},
		{
			name: "all zero",
			med: medicine("tablet",
				store.MedicineTiming{TimeOfDay: "morning", Dosage: 0},
				store.MedicineTiming{TimeOfDay: "night", Dosage: 0},
			),
			want: "as prescribed",
		},
		{
			name: "no timings",
			med:  medicine("tablet"),
			want: "as prescribed",
		},
		{
			name: "falls back to dosage type",
			med:  medicine("", store.MedicineTiming{TimeOfDay: "MORNING", Dosage: 2}),
			want: "2 tablets in morning",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DosageText(tt.med)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, DosageText(tt.med))
		})
	}
}

func TestDosageText_CaseInsensitiveLabels(t *testing.T) {
	lower := DosageText(medicine("tablet", store.MedicineTiming{TimeOfDay: "morning", Dosage: 2}))
	title := DosageText(medicine("tablet", store.MedicineTiming{TimeOfDay: "Morning", Dosage: 2}))
	upper := DosageText(medicine("tablet", store.MedicineTiming{TimeOfDay: "MORNING", Dosage: 2}))

	assert.Equal(t, lower, title)
	assert.Equal(t, lower, upper)
}

func TestPlanner_Plan(t *testing.T) {
	kv, err := store.OpenInMemoryKV()
	require.NoError(t, err)
	defer kv.Close()

	logger, _ := zap.NewDevelopment()
	p := NewPlanner(NewTimes(kv), nil, logger)

	rx := store.Prescription{
		ID: "P1",
		Medicines: []store.PrescriptionMedicine{
			medicine("tablet",
				store.MedicineTiming{TimeOfDay: "morning", Dosage: 2},
				store.MedicineTiming{TimeOfDay: "night", Dosage: 0},
			),
		},
	}

	plan := p.Plan(rx)
	require.Len(t, plan, 1)
	assert.Equal(t, Morning, plan[0].Slot)
	assert.Equal(t, "Crocin", plan[0].MedicineName)
	assert.Equal(t, "2 tablets in morning", plan[0].DosageText)
}

func TestPlanner_NextFireUsesConfiguredTime(t *testing.T) {
	kv, err := store.OpenInMemoryKV()
	require.NoError(t, err)
	defer kv.Close()

	times := NewTimes(kv)
	require.NoError(t, times.Set(Night, 22, 15))

	now := time.Date(2026, 1, 5, 21, 0, 0, 0, time.UTC)
	logger, _ := zap.NewDevelopment()
	p := NewPlanner(times, func() time.Time { return now }, logger)

	assert.Equal(t, time.Date(2026, 1, 5, 22, 15, 0, 0, time.UTC), p.NextFire(Night))
	assert.Equal(t, time.Date(2026, 1, 6, 8, 30, 0, 0, time.UTC), p.NextFire(Morning))
}
