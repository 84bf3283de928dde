package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dates(ts []time.Time) []Date {
	out := make([]Date, 0, len(ts))
	for _, t := range ts {
		out = append(out, DateOf(t))
	}
	return out
}

func generateAll(t *testing.T, text string, dtstart time.Time, limit Limit) []time.Time {
	t.Helper()
	r, err := Parse(text)
	require.NoError(t, err)
	seq, err := Generate(r, dtstart, limit)
	require.NoError(t, err)
	return seq.All()
}

func TestGenerateDates(t *testing.T) {
	jan1 := time.Date(2024, time.January, 1, 9, 30, 0, 0, time.UTC) // Monday

	tests := []struct {
		name    string
		rule    string
		dtstart time.Time
		limit   Limit
		want    []Date
	}{
		{
			name:    "weekly without weekdays keeps start weekday",
			rule:    "FREQ=WEEKLY;INTERVAL=1;COUNT=3",
			dtstart: jan1,
			want:    []Date{d(2024, 1, 1), d(2024, 1, 8), d(2024, 1, 15)},
		},
		{
			name:    "weekly on sunday",
			rule:    "FREQ=WEEKLY;INTERVAL=1;BYDAY=SU;COUNT=3",
			dtstart: jan1,
			want:    []Date{d(2024, 1, 7), d(2024, 1, 14), d(2024, 1, 21)},
		},
		{
			name:    "biweekly on monday and wednesday",
			rule:    "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;COUNT=4",
			dtstart: jan1,
			want:    []Date{d(2024, 1, 1), d(2024, 1, 3), d(2024, 1, 15), d(2024, 1, 17)},
		},
		{
			name:    "monthly on the 31st skips short months",
			rule:    "FREQ=MONTHLY;INTERVAL=1;BYMONTHDAY=31;COUNT=3",
			dtstart: time.Date(2024, time.January, 31, 18, 0, 0, 0, time.UTC),
			want:    []Date{d(2024, 1, 31), d(2024, 3, 31), d(2024, 5, 31)},
		},
		{
			name:    "monthly follows start day",
			rule:    "FREQ=MONTHLY;COUNT=3",
			dtstart: time.Date(2024, time.January, 31, 18, 0, 0, 0, time.UTC),
			want:    []Date{d(2024, 1, 31), d(2024, 3, 31), d(2024, 5, 31)},
		},
		{
			name:    "monthly day before start is not emitted in start month",
			rule:    "FREQ=MONTHLY;BYMONTHDAY=15;COUNT=2",
			dtstart: time.Date(2024, time.January, 20, 0, 0, 0, 0, time.UTC),
			want:    []Date{d(2024, 2, 15), d(2024, 3, 15)},
		},
		{
			name:    "yearly leap day",
			rule:    "FREQ=YEARLY;COUNT=3",
			dtstart: time.Date(2024, time.February, 29, 10, 0, 0, 0, time.UTC),
			want:    []Date{d(2024, 2, 29), d(2028, 2, 29), d(2032, 2, 29)},
		},
		{
			name:    "daily interval",
			rule:    "FREQ=DAILY;INTERVAL=3;COUNT=3",
			dtstart: jan1,
			want:    []Date{d(2024, 1, 1), d(2024, 1, 4), d(2024, 1, 7)},
		},
		{
			name:    "until is inclusive",
			rule:    "FREQ=DAILY;UNTIL=2024-01-05",
			dtstart: jan1,
			want:    []Date{d(2024, 1, 1), d(2024, 1, 2), d(2024, 1, 3), d(2024, 1, 4), d(2024, 1, 5)},
		},
		{
			name:    "until before start is empty",
			rule:    "FREQ=DAILY;UNTIL=2023-12-31",
			dtstart: jan1,
			want:    []Date{},
		},
		{
			name:    "limit through binds before count",
			rule:    "FREQ=DAILY;COUNT=10",
			dtstart: jan1,
			limit:   Through(d(2024, 1, 2)),
			want:    []Date{d(2024, 1, 1), d(2024, 1, 2)},
		},
		{
			name:    "count binds before limit through",
			rule:    "FREQ=WEEKLY;COUNT=2",
			dtstart: jan1,
			limit:   Through(d(2024, 12, 31)),
			want:    []Date{d(2024, 1, 1), d(2024, 1, 8)},
		},
		{
			name:    "never with max count",
			rule:    "FREQ=WEEKLY;BYDAY=SA",
			dtstart: jan1,
			limit:   MaxCount(2),
			want:    []Date{d(2024, 1, 6), d(2024, 1, 13)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := generateAll(t, tt.rule, tt.dtstart, tt.limit)
			assert.Equal(t, tt.want, dates(got))
		})
	}
}

func TestGenerateCountExact(t *testing.T) {
	got := generateAll(t, "FREQ=DAILY;COUNT=5", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), NoLimit)
	assert.Len(t, got, 5)
}

func TestGenerateIsStrictlyIncreasing(t *testing.T) {
	got := generateAll(t, "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR,SA,SU;COUNT=40", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), NoLimit)
	require.Len(t, got, 40)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].After(got[i-1]), "index %d", i)
	}
}

func TestGenerateKeepsClockAndLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	start := time.Date(2024, time.January, 7, 18, 45, 0, 0, loc)
	got := generateAll(t, "FREQ=WEEKLY;COUNT=3", start, NoLimit)
	require.Len(t, got, 3)
	for _, occ := range got {
		assert.Equal(t, loc, occ.Location())
		assert.Equal(t, 18, occ.Hour())
		assert.Equal(t, 45, occ.Minute())
		assert.Equal(t, time.Sunday, occ.Weekday())
	}
}

func TestGenerateUnbounded(t *testing.T) {
	r := MustNew(Options{Frequency: Daily})
	_, err := Generate(r, time.Now(), NoLimit)
	var ue *UnboundedGenerationError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "FREQ=DAILY;INTERVAL=1", ue.Rule)
}

func TestGenerateRejectsZeroInputs(t *testing.T) {
	_, err := Generate(Rule{}, time.Now(), MaxCount(1))
	var me *MalformedRuleError
	assert.ErrorAs(t, err, &me)

	_, err = Generate(MustNew(Options{Frequency: Daily, Termination: After(1)}), time.Time{}, NoLimit)
	assert.Error(t, err)

	_, err = Generate(MustNew(Options{Frequency: Daily, Termination: After(1)}), time.Now(), MaxCount(-1))
	assert.Error(t, err)
}

func TestSequenceResetAndTake(t *testing.T) {
	r := MustNew(Options{Frequency: Daily, Termination: After(4)})
	seq, err := Generate(r, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), NoLimit)
	require.NoError(t, err)

	first := seq.Take(2)
	rest := seq.Take(10)
	assert.Len(t, first, 2)
	assert.Len(t, rest, 2)
	_, ok := seq.Next()
	assert.False(t, ok)

	seq.Reset()
	assert.Equal(t, first, seq.Take(2))
}

func TestSequenceTruncatesAtCap(t *testing.T) {
	r := MustNew(Options{Frequency: Daily})
	seq, err := Generate(r, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), Through(d(2100, 1, 1)))
	require.NoError(t, err)

	got := seq.All()
	assert.Len(t, got, MaxOccurrences)
	assert.True(t, seq.Truncated())
}

func TestSequenceExactlyAtCapIsNotTruncated(t *testing.T) {
	r := MustNew(Options{Frequency: Daily, Termination: After(MaxOccurrences)})
	seq, err := Generate(r, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), NoLimit)
	require.NoError(t, err)

	assert.Len(t, seq.All(), MaxOccurrences)
	assert.False(t, seq.Truncated())
}

func TestSequenceFromSkipsWithoutSpendingCap(t *testing.T) {
	r := MustNew(Options{Frequency: Daily})
	seq, err := Generate(r, time.Date(2010, 1, 1, 9, 0, 0, 0, time.UTC), Limit{From: d(2026, 10, 19), Through: d(2026, 11, 19)})
	require.NoError(t, err)

	got := seq.Dates()
	require.Len(t, got, 32)
	assert.Equal(t, d(2026, 10, 19), got[0])
	assert.Equal(t, d(2026, 11, 19), got[31])
	assert.False(t, seq.Truncated())
}

func TestSequenceFromKeepsRuleCount(t *testing.T) {
	r := MustNew(Options{Frequency: Daily, Termination: After(5)})
	seq, err := Generate(r, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Limit{From: d(2024, 1, 4)})
	require.NoError(t, err)

	assert.Equal(t, []Date{d(2024, 1, 4), d(2024, 1, 5)}, seq.Dates())
}

func TestGenerateFromAloneIsUnbounded(t *testing.T) {
	_, err := Generate(MustNew(Options{Frequency: Daily}), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Limit{From: d(2024, 2, 1)})
	var ue *UnboundedGenerationError
	assert.ErrorAs(t, err, &ue)
}
