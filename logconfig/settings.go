package logconfig

import (
	"context"
	"fmt"

	myLogger "github.com/sirupsen/logrus"
)

// This output format is used in the test (has terminal).
func ConfigDebugLogger() {
	myLogger.SetReportCaller(true)
	myLogger.SetLevel(myLogger.DebugLevel)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

func ConfigInfoLogger() {
	myLogger.SetReportCaller(false)
	myLogger.SetLevel(myLogger.InfoLevel)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		ForceColors:            true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

// This output format is used in production, collected by the log shipper.
func ConfigProductionLogger() {
	myLogger.SetReportCaller(false)
	myLogger.SetLevel(myLogger.InfoLevel)
	myLogger.SetFormatter(&myLogger.JSONFormatter{})
}

// ConfigByName picks one of the presets above, "production" when unknown.
func ConfigByName(name string) {
	switch name {
	case "debug":
		ConfigDebugLogger()
	case "info":
		ConfigInfoLogger()
	default:
		ConfigProductionLogger()
	}
}

// AsynqLogger routes queue server logs into logrus.
type AsynqLogger struct {
	Entry *myLogger.Entry
}

func NewAsynqLogger() *AsynqLogger {
	return &AsynqLogger{Entry: myLogger.WithField("component", "asynq")}
}

func (l *AsynqLogger) Debug(args ...interface{}) { l.Entry.Debug(fmt.Sprint(args...)) }
func (l *AsynqLogger) Info(args ...interface{})  { l.Entry.Info(fmt.Sprint(args...)) }
func (l *AsynqLogger) Warn(args ...interface{})  { l.Entry.Warn(fmt.Sprint(args...)) }
func (l *AsynqLogger) Error(args ...interface{}) { l.Entry.Error(fmt.Sprint(args...)) }
func (l *AsynqLogger) Fatal(args ...interface{}) { l.Entry.Fatal(fmt.Sprint(args...)) }

type traceKey struct{}

// WithTrace stores a log entry carrying job scoped fields in ctx.
func WithTrace(ctx context.Context, entry *myLogger.Entry) context.Context {
	return context.WithValue(ctx, traceKey{}, entry)
}

// FromContext returns the entry stored by WithTrace, or the standard logger.
func FromContext(ctx context.Context) *myLogger.Entry {
	if entry, ok := ctx.Value(traceKey{}).(*myLogger.Entry); ok {
		return entry
	}
	return myLogger.NewEntry(myLogger.StandardLogger())
}
