package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// Form field names of a submission.
const (
	FieldModelChoice = "model_choice"
	FieldDatetime    = "datetime"
)

// SensorFields are the raw readings a submission carries, in schema order.
var SensorFields = []string{
	"Global_reactive_power",
	"Voltage",
	"Global_intensity",
	"Sub_metering_1",
	"Sub_metering_2",
	"Sub_metering_3",
}

// FeatureOrder is the column order the models were trained on.
var FeatureOrder = []string{
	"Global_reactive_power_lag1",
	"Voltage_lag1",
	"Global_intensity_lag1",
	"Sub_metering_1_lag1",
	"Sub_metering_2_lag1",
	"Sub_metering_3_lag1",
	"hour_of_day_lag1",
	"day_of_week_lag1",
	"month_lag1",
	"year_lag1",
}

var ErrSchemaMismatch = errors.New("assembled features do not match schema")

const msgMissingDatetime = "Please select a date and time."

// ValidationError reports a missing or malformed submission field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return "invalid " + e.Field
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Submission is one raw form post. A sensor field absent from Readings is
// missing; present but empty is non-numeric.
type Submission struct {
	ModelChoice string
	Datetime    string
	Readings    map[string]string
}

func SubmissionFromForm(form url.Values) Submission {
	sub := Submission{
		ModelChoice: form.Get(FieldModelChoice),
		Datetime:    form.Get(FieldDatetime),
		Readings:    make(map[string]string, len(SensorFields)),
	}
	for _, field := range SensorFields {
		if values, ok := form[field]; ok && len(values) > 0 {
			sub.Readings[field] = values[0]
		}
	}
	return sub
}

// FeatureVector is one model input row in FeatureOrder.
type FeatureVector []float64

func (v FeatureVector) Get(name string) (float64, bool) {
	for i, n := range FeatureOrder {
		if n == name && i < len(v) {
			return v[i], true
		}
	}
	return 0, false
}

func (v FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, len(v))
	for i, n := range FeatureOrder {
		if i < len(v) {
			m[n] = v[i]
		}
	}
	return m
}

// MarshalJSON writes NaN and ±Inf as the strings "NaN", "+Inf" and "-Inf",
// which encoding/json cannot represent as numbers.
func (v FeatureVector) MarshalJSON() ([]byte, error) {
	values := make([]interface{}, len(v))
	for i, f := range v {
		values[i] = JSONNumber(f)
	}
	return json.Marshal(values)
}

func (v *FeatureVector) UnmarshalJSON(data []byte) error {
	var values []interface{}
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	if values == nil {
		*v = nil
		return nil
	}
	out := make(FeatureVector, len(values))
	for i, raw := range values {
		switch t := raw.(type) {
		case float64:
			out[i] = t
		case string:
			f, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return fmt.Errorf("feature %d: %w", i, err)
			}
			out[i] = f
		default:
			return fmt.Errorf("feature %d: unexpected %T", i, raw)
		}
	}
	*v = out
	return nil
}

// JSONNumber returns f unchanged when it is finite and its string form
// otherwise, so the result always encodes.
func JSONNumber(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts the ISO-8601 forms produced by datetime-local inputs
// and by isoformat(): date only, minutes or seconds precision, optional
// fraction and offset, with either 'T' or a space between date and time.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &ValidationError{Field: FieldDatetime, Message: msgMissingDatetime}
	}
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, &ValidationError{
		Field:   FieldDatetime,
		Message: fmt.Sprintf("invalid isoformat string: %q", raw),
	}
}

// ParseReading converts a raw sensor value to a float. Surrounding space is
// ignored and full-width digits are folded to ASCII. Values too large for a
// float64 become ±Inf rather than failing.
func ParseReading(field, raw string) (float64, error) {
	s := strings.TrimSpace(width.Narrow.String(raw))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("could not convert %s value %q to a number", field, raw),
			Err:     err,
		}
	}
	return v, nil
}

// CalendarFeatures returns hour, weekday (Monday=0), month and year of ts in
// its own offset.
func CalendarFeatures(ts time.Time) (hour, weekday, month, year int) {
	return ts.Hour(), (int(ts.Weekday()) + 6) % 7, int(ts.Month()), ts.Year()
}

// AssembleFeatures builds the model input from sub and ts. The model expects
// previous-period values; the current readings and calendar fields stand in
// for them.
func AssembleFeatures(sub Submission, ts time.Time) (FeatureVector, error) {
	hour, weekday, month, year := CalendarFeatures(ts)
	named := map[string]float64{
		"hour_of_day_lag1": float64(hour),
		"day_of_week_lag1": float64(weekday),
		"month_lag1":       float64(month),
		"year_lag1":        float64(year),
	}
	for _, field := range SensorFields {
		raw, ok := sub.Readings[field]
		if !ok {
			return nil, &ValidationError{Field: field, Message: "missing value for " + field}
		}
		v, err := ParseReading(field, raw)
		if err != nil {
			return nil, err
		}
		named[field+"_lag1"] = v
	}
	return orderFeatures(named)
}

// Assemble parses the timestamp before any reading.
func Assemble(sub Submission) (FeatureVector, error) {
	ts, err := ParseTimestamp(sub.Datetime)
	if err != nil {
		return nil, err
	}
	return AssembleFeatures(sub, ts)
}

func orderFeatures(named map[string]float64) (FeatureVector, error) {
	if len(named) != len(FeatureOrder) {
		return nil, fmt.Errorf("%w: %d fields for %d columns", ErrSchemaMismatch, len(named), len(FeatureOrder))
	}
	vector := make(FeatureVector, len(FeatureOrder))
	for i, name := range FeatureOrder {
		v, ok := named[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrSchemaMismatch, name)
		}
		vector[i] = v
	}
	return vector, nil
}
