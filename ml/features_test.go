package ml

import (
	"encoding/json"
	"math"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSubmission() Submission {
	return Submission{
		ModelChoice: "XGBoost Regressor",
		Datetime:    "2024-03-15T14:30:00",
		Readings: map[string]string{
			"Global_reactive_power": "0.418",
			"Voltage":               "234.84",
			"Global_intensity":      "18.4",
			"Sub_metering_1":        "0",
			"Sub_metering_2":        "1",
			"Sub_metering_3":        "17",
		},
	}
}

func TestAssemble(t *testing.T) {
	vector, err := Assemble(validSubmission())
	require.NoError(t, err)
	require.Len(t, vector, len(FeatureOrder))

	assert.Equal(t, FeatureVector{0.418, 234.84, 18.4, 0, 1, 17, 14, 4, 3, 2024}, vector)

	m := vector.Map()
	assert.Equal(t, 4.0, m["day_of_week_lag1"])
	v, ok := vector.Get("year_lag1")
	assert.True(t, ok)
	assert.Equal(t, 2024.0, v)
}

func TestCalendarFeatures(t *testing.T) {
	tests := []struct {
		raw                          string
		hour, weekday, month, year int
	}{
		{"2024-03-15T14:30:00", 14, 4, 3, 2024},
		{"2024-03-18T00:00", 0, 0, 3, 2024},
		{"2023-12-31 23:59:59.5", 23, 6, 12, 2023},
		{"2024-07-04", 0, 3, 7, 2024},
		{"2024-03-15T14:30:00+05:30", 14, 4, 3, 2024},
		{"2024-03-15T14:30Z", 14, 4, 3, 2024},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ts, err := ParseTimestamp(tt.raw)
			require.NoError(t, err)
			hour, weekday, month, year := CalendarFeatures(ts)
			assert.Equal(t, []int{tt.hour, tt.weekday, tt.month, tt.year}, []int{hour, weekday, month, year})
		})
	}
}

func TestParseTimestampErrors(t *testing.T) {
	_, err := ParseTimestamp("")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldDatetime, verr.Field)
	assert.Equal(t, "Please select a date and time.", verr.Error())

	_, err = ParseTimestamp("15/03/2024 14:30")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldDatetime, verr.Field)
}

func TestAssembleMissingReading(t *testing.T) {
	sub := validSubmission()
	delete(sub.Readings, "Voltage")

	_, err := Assemble(sub)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Voltage", verr.Field)
}

func TestAssembleNonNumericReading(t *testing.T) {
	for _, raw := range []string{"", "abc", "1,5"} {
		sub := validSubmission()
		sub.Readings["Sub_metering_2"] = raw

		_, err := Assemble(sub)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, raw)
		assert.Equal(t, "Sub_metering_2", verr.Field)
	}
}

func TestAssembleChecksTimestampFirst(t *testing.T) {
	sub := validSubmission()
	sub.Datetime = ""
	sub.Readings = nil

	_, err := Assemble(sub)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldDatetime, verr.Field)
}

func TestParseReading(t *testing.T) {
	v, err := ParseReading("Voltage", "  240.5 ")
	require.NoError(t, err)
	assert.Equal(t, 240.5, v)

	v, err = ParseReading("Voltage", "２４０")
	require.NoError(t, err)
	assert.Equal(t, 240.0, v)

	v, err = ParseReading("Voltage", "1e2")
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)
}

func TestParseReadingOutOfRange(t *testing.T) {
	v, err := ParseReading("Voltage", "1e400")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, 1))

	v, err = ParseReading("Voltage", "-1e400")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, -1))

	v, err = ParseReading("Voltage", "nan")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))
}

func TestFeatureVectorJSONNonFinite(t *testing.T) {
	vector := FeatureVector{math.NaN(), math.Inf(1), math.Inf(-1), 1.5}

	data, err := json.Marshal(vector)
	require.NoError(t, err)
	assert.JSONEq(t, `["NaN","+Inf","-Inf",1.5]`, string(data))

	var decoded FeatureVector
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 4)
	assert.True(t, math.IsNaN(decoded[0]))
	assert.True(t, math.IsInf(decoded[1], 1))
	assert.True(t, math.IsInf(decoded[2], -1))
	assert.Equal(t, 1.5, decoded[3])

	assert.Error(t, json.Unmarshal([]byte(`["abc"]`), &decoded))
}

func TestSubmissionFromForm(t *testing.T) {
	form := url.Values{
		"model_choice":   {"Random Forest Regressor"},
		"datetime":       {"2024-03-15T14:30"},
		"Voltage":        {"240"},
		"Sub_metering_1": {""},
	}
	sub := SubmissionFromForm(form)

	assert.Equal(t, "Random Forest Regressor", sub.ModelChoice)
	assert.Equal(t, "2024-03-15T14:30", sub.Datetime)
	assert.Equal(t, map[string]string{"Voltage": "240", "Sub_metering_1": ""}, sub.Readings)
}

func TestAssembleIsPureFunctionOfInput(t *testing.T) {
	ts := time.Date(2024, time.March, 15, 14, 30, 0, 0, time.UTC)
	a, err := AssembleFeatures(validSubmission(), ts)
	require.NoError(t, err)
	b, err := AssembleFeatures(validSubmission(), ts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
