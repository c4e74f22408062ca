package logging

import (
	"log/slog"
	"time"
)

// Keys shared by every component, so log queries can join on them.
const (
	KeyRequestID = "request_id"
	KeyVehicleID = "vehicle_id"
	KeyError     = "error"
)

// Field is one structured attribute on a log line.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Float(key string, value float64) Field          { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field                { return Field{Key: key, Value: value} }

// VehicleID tags a line with the vehicle it concerns.
func VehicleID(id string) Field { return String(KeyVehicleID, id) }

// Err records err's message; a nil error logs as null.
func Err(err error) Field {
	if err == nil {
		return Field{Key: KeyError}
	}
	return Field{Key: KeyError, Value: err.Error()}
}

func (f Field) attr() slog.Attr { return slog.Any(f.Key, f.Value) }

func attrs(fields []Field) []slog.Attr {
	out := make([]slog.Attr, len(fields))
	for i, f := range fields {
		out[i] = f.attr()
	}
	return out
}
