// Package observability contains logging setup and other observability
// utilities shared by daqio binaries.
package observability

import (
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "gopkg.in/natefinch/lumberjack.v2"

    "daqio/pkg/config"
)

// envLogDir anchors relative file outputs when set, so deployments can
// redirect all daqio logs with one variable instead of rewriting configs.
const envLogDir = "DAQIO_LOG_DIR"

// SetupLogger builds a zap.Logger from the provided configuration, installs
// it as the process-global logger (zap.L) and redirects the stdlib log
// package. A plain file sink that cannot be opened fails the setup rather
// than being silently dropped. Rotated file sinks are opened by lumberjack on
// their first write, so setup does not report errors for them. The caller
// should defer logger.Sync().
func SetupLogger(c config.LogConfig) (*zap.Logger, error) {
    level := parseLevel(c.Level)
    encoder := newEncoder(c)

    outputs := c.Outputs
    if len(outputs) == 0 {
        outputs = []string{"stdout"}
    }
    cores := make([]zapcore.Core, 0, len(outputs))
    for _, out := range outputs {
        ws, err := openSink(out, c)
        if err != nil {
            return nil, fmt.Errorf("log output %q: %w", out, err)
        }
        cores = append(cores, zapcore.NewCore(encoder, ws, level))
    }

    opts := []zap.Option{
        zap.AddCaller(),
        zap.AddStacktrace(zap.ErrorLevel),
    }
    if c.Development {
        opts = append(opts, zap.Development())
    }

    logger := zap.New(zapcore.NewTee(cores...), opts...)
    zap.ReplaceGlobals(logger)
    // redirect stdlib log to zap at Info level
    _, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
    return logger, nil
}

func parseLevel(s string) zap.AtomicLevel {
    level := zap.NewAtomicLevel()
    switch strings.ToLower(s) {
    case "debug":
        level.SetLevel(zap.DebugLevel)
    case "warn", "warning":
        level.SetLevel(zap.WarnLevel)
    case "error":
        level.SetLevel(zap.ErrorLevel)
    default:
        level.SetLevel(zap.InfoLevel)
    }
    return level
}

func newEncoder(c config.LogConfig) zapcore.Encoder {
    var cfg zapcore.EncoderConfig
    if c.Development {
        cfg = zap.NewDevelopmentEncoderConfig()
        cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
    } else {
        cfg = zap.NewProductionEncoderConfig()
    }
    if strings.ToLower(c.Format) == "json" {
        return zapcore.NewJSONEncoder(cfg)
    }
    return zapcore.NewConsoleEncoder(cfg)
}

// openSink maps one configured output to a write syncer. Anything that is
// not stdout/stderr is a file path, optionally rotated.
func openSink(out string, c config.LogConfig) (zapcore.WriteSyncer, error) {
    switch strings.ToLower(out) {
    case "stdout":
        return zapcore.AddSync(os.Stdout), nil
    case "stderr":
        return zapcore.AddSync(os.Stderr), nil
    }

    path := resolveLogPath(out)
    if c.Rotation.Enable {
        // rotation config may pin its own filename; the output entry is
        // the fallback
        if f := strings.TrimSpace(c.Rotation.Filename); f != "" {
            path = resolveLogPath(f)
        }
        return zapcore.AddSync(&lumberjack.Logger{
            Filename:   path,
            MaxSize:    max(c.Rotation.MaxSizeMB, 10),
            MaxBackups: max(c.Rotation.MaxBackups, 1),
            MaxAge:     max(c.Rotation.MaxAgeDays, 7),
            Compress:   c.Rotation.Compress,
        }), nil
    }

    if dir := filepath.Dir(path); dir != "." {
        if err := os.MkdirAll(dir, 0o755); err != nil {
            return nil, err
        }
    }
    f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
    if err != nil {
        return nil, err
    }
    return zapcore.AddSync(f), nil
}

// resolveLogPath anchors relative file outputs under DAQIO_LOG_DIR when the
// variable is set; absolute paths and unset environments pass through.
func resolveLogPath(p string) string {
    if filepath.IsAbs(p) {
        return p
    }
    if dir := os.Getenv(envLogDir); dir != "" {
        return filepath.Join(dir, p)
    }
    return p
}
