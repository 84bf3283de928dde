package recurrence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Day  Date `json:"day"`
		None Date `json:"none"`
	}{Day: d(2024, 3, 9)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"2024-03-09","none":null}`, string(b))

	var got struct {
		A Date `json:"a"`
		B Date `json:"b"`
		C Date `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2024-03-09","b":"2024-03-09T23:00:00+05:30","c":""}`), &got))
	assert.Equal(t, d(2024, 3, 9), got.A)
	assert.Equal(t, d(2024, 3, 9), got.B)
	assert.True(t, got.C.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"a":20240309}`), &got))
	assert.Error(t, json.Unmarshal([]byte(`{"a":"09/03/2024"}`), &got))
}

func TestDateArithmetic(t *testing.T) {
	assert.Equal(t, d(2024, 3, 1), d(2024, 2, 28).AddDays(2))
	assert.Equal(t, d(2023, 12, 31), d(2024, 1, 1).AddDays(-1))
	assert.True(t, d(2024, 1, 1).Before(d(2024, 1, 2)))
	assert.True(t, d(2025, 1, 1).After(d(2024, 12, 31)))
	assert.Equal(t, 0, d(2024, 5, 5).Compare(d(2024, 5, 5)))

	loc := time.FixedZone("X", -3*3600)
	assert.Equal(t, time.Date(2024, 5, 5, 0, 0, 0, 0, loc), d(2024, 5, 5).In(loc))

	parsed, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, d(2024, 2, 29), parsed)
	_, err = ParseDate("2023-02-29")
	assert.Error(t, err)
}
