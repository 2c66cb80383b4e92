// daqio-bench drives a configurable message burst through the messaging
// facade and reports the observed delivery rate. Useful as a smoke test for
// queue and network connection configurations.
package main

import (
    "flag"
    "fmt"
    "os"
    "sync/atomic"
    "time"

    "go.uber.org/zap"

    "daqio/pkg/config"
    "daqio/pkg/iomanager"
    "daqio/pkg/observability"
    "daqio/pkg/shaping"
)

// Burst is the benchmark payload.
type Burst struct {
    D []byte
}

func (Burst) SerializableMessage() {}

func main() {
    cfgPath := flag.String("config", "", "path to YAML config file")
    connName := flag.String("connection", "bench_queue", "connection name to drive")
    count := flag.Int("count", 10000, "number of messages to send")
    size := flag.Int("size", 55680, "payload size in bytes")
    sendTimeout := flag.Duration("send-timeout", time.Second, "per-send timeout")
    rate := flag.Int64("rate", 0, "shape sends to this many bytes/sec (0 = unshaped)")
    flag.Parse()

    cfg, err := config.Load(*cfgPath)
    if err != nil { fatalf("load config: %v", err) }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil { fatalf("setup logger: %v", err) }
    defer logger.Sync()

    descs, err := descriptors(cfg)
    if err != nil { fatalf("bad connection config: %v", err) }
    if len(descs) == 0 {
        // no config file: run against a default in-memory queue
        descs = []iomanager.ConnectionID{
            {Name: *connName, Kind: iomanager.KindQueue, DataType: "Burst", Address: "queue://fifo:50"},
        }
    }

    iom := iomanager.Get()
    if err := iom.Configure(descs); err != nil { fatalf("configure: %v", err) }

    var received atomic.Int64
    if err := iomanager.AddCallback[Burst](iom, *connName, func(Burst) { received.Add(1) }); err != nil {
        fatalf("add callback: %v", err)
    }
    sender, err := iomanager.GetSender[Burst](iom, *connName)
    if err != nil { fatalf("get sender: %v", err) }

    zap.L().Info("starting burst",
        zap.String("connection", *connName), zap.Int("count", *count), zap.Int("size", *size))

    var shaper *shaping.Shaper
    if *rate > 0 {
        shaper = shaping.NewShaper(*rate, 2*(*rate))
    }

    payload := make([]byte, *size)
    start := time.Now()
    for i := 0; i < *count; i++ {
        if shaper != nil {
            shaper.Throttle(int64(*size))
        }
        if err := sender.Send(Burst{D: payload}, *sendTimeout, ""); err != nil {
            fatalf("send %d: %v", i, err)
        }
    }
    for received.Load() < int64(*count) {
        time.Sleep(time.Millisecond)
    }
    elapsed := time.Since(start)

    if err := iomanager.RemoveCallback[Burst](iom, *connName); err != nil {
        fatalf("remove callback: %v", err)
    }
    if err := iom.Reset(); err != nil {
        zap.L().Warn("reset failed", zap.Error(err))
    }

    msgRate := float64(*count) / elapsed.Seconds()
    fmt.Printf("delivered %d messages of %d bytes in %v (%.0f Hz)\n", *count, *size, elapsed, msgRate)
}

// descriptors converts the configured connections into catalog descriptors.
func descriptors(cfg *config.Config) ([]iomanager.ConnectionID, error) {
    out := make([]iomanager.ConnectionID, 0, len(cfg.Connections))
    for _, c := range cfg.Connections {
        kind, err := iomanager.ParseKind(c.Kind)
        if err != nil {
            return nil, fmt.Errorf("connection %q: %w", c.Name, err)
        }
        out = append(out, iomanager.ConnectionID{
            Name:     c.Name,
            Kind:     kind,
            DataType: c.Type,
            Address:  c.Address,
        })
    }
    return out, nil
}

func fatalf(format string, args ...any) {
    fmt.Fprintf(os.Stderr, format+"\n", args...)
    os.Exit(1)
}
