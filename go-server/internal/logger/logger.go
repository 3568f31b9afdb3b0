package logger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Level       string
	Environment string
	ServiceName string
	// LokiURL enables shipping JSON lines to Loki's push API.
	LokiURL string
	// Output defaults to stdout.
	Output io.Writer
}

// New builds the process logger: a console core in development, JSON
// otherwise, teed with a Loki core when LokiURL is set. The returned
// shutdown flushes pending Loki pushes.
func New(opts Options) (*zap.Logger, func(context.Context) error, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var encoder zapcore.Encoder
	if opts.Environment == "development" {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(jsonEncoderConfig())
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(out), level)}
	shutdown := func(context.Context) error { return nil }

	if opts.LokiURL != "" {
		w := newLokiWriter(opts.LokiURL, map[string]string{
			"service_name": opts.ServiceName,
			"environment":  opts.Environment,
			"job":          "shortly-api",
		}, &http.Client{Timeout: 10 * time.Second})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), w, level))
		shutdown = w.Close
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("service", opts.ServiceName))

	return logger, shutdown, nil
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
