package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/channel"
	"main/internal/codec"
	"main/internal/feed"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/refdata"
	"main/internal/schema"
	"main/internal/series"
)

func main() {
	configPath := flag.String("config", "config.json", "path to JSON config")
	profileAddr := flag.String("profile", "", "pyroscope server address (empty=off)")
	statsInterval := flag.Duration("stats-interval", 15*time.Second, "metrics log interval (0=disable)")
	flag.Parse()

	if err := run(*configPath, *profileAddr, *statsInterval); err != nil {
		logs.Errorf("ingest: %v", err)
		os.Exit(1)
	}
}

func run(configPath, profileAddr string, statsInterval time.Duration) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if loaded.DatabaseDSN != "" {
		store, err := refdata.Open(context.Background(), loaded.DatabaseDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		registry, err := store.LoadRegistry(context.Background())
		if err != nil {
			return err
		}
		loaded.Registry = registry
		logs.Infof("registry loaded from database: %d instruments", registry.InstrumentCount())
	}

	if profileAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "ingest",
			ServerAddress:   profileAddr,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := series.Open(loaded.SeriesDir)
	if err != nil {
		return err
	}
	defer store.Close()

	b := bus.New()
	defer b.Close()
	metrics := obs.NewMetrics()
	decoder := feed.NewDecoder(loaded.Registry)

	transport, err := feed.NewTransport(loaded.Feed.SocketPath)
	if err != nil {
		return err
	}

	// Time-seeded so event sequence numbers stay monotonic across
	// restarts of the ingest process.
	traces := obs.NewTraceGenerator(0)
	chCfg := loaded.ChannelConfig()
	chCfg.Transport = transport
	chCfg.Encoder = feed.Encoder{}
	chCfg.IsHeartbeat = feed.IsHeartbeat
	chCfg.OnFrame = func(frame []byte) {
		tick, header, err := decoder.DecodeTick(frame, time.Now())
		if err != nil {
			metrics.IncDecodeError()
			logs.Errorf("decode tick: %v", err)
			return
		}
		header.Seq = traces.Next()
		metrics.ObserveEvent(header)
		event := bus.Event{
			Topic:   bus.TickTopic(schema.SymbolID(tick.SymbolID)),
			Header:  header,
			Payload: codec.EncodeTick(nil, tick),
		}
		if err := b.Publish(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
			logs.Errorf("publish tick: %v", err)
		}
	}
	chCfg.OnState = func(state channel.State) {
		logs.Infof("feed channel: %s", state)
		if state == channel.Connected {
			metrics.IncReconnect()
		}
	}

	ch, err := channel.New(chCfg)
	if err != nil {
		return err
	}
	for i := 0; i < loaded.Registry.InstrumentCount(); i++ {
		inst, _ := loaded.Registry.InstrumentAt(i)
		exchange, ok := loaded.Registry.Exchange(inst.ExchangeID)
		if !ok {
			continue
		}
		topic := feed.TickTopic(exchange.Name + "/" + inst.Symbol)
		if err := ch.Subscribe(ctx, topic); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < loaded.Registry.InstrumentCount(); i++ {
		inst, _ := loaded.Registry.InstrumentAt(i)
		for _, res := range loaded.Resolutions {
			key := schema.SeriesKey{Symbol: inst.ID, Resolution: res}
			consumer, err := newConsolidator(store, b, key, loaded.Bus.TickQueueSize)
			if err != nil {
				return err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				consumer.run(ctx, metrics)
			}()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logs.Errorf("feed channel stopped: %v", err)
			stop()
		}
	}()

	if statsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logStats(ctx, metrics, statsInterval)
		}()
	}

	<-ctx.Done()
	ch.Close()
	b.Close()
	wg.Wait()
	return nil
}

// consolidator turns one instrument's ticks into bars at one
// resolution and persists them.
type consolidator struct {
	key     schema.SeriesKey
	sub     *bus.Subscription
	writer  *series.Writer
	builder *series.Builder
	bus     *bus.Bus
}

func newConsolidator(store *series.Store, b *bus.Bus, key schema.SeriesKey, queueSize int) (*consolidator, error) {
	s, err := store.Series(key)
	if err != nil {
		return nil, err
	}
	writer, err := s.AcquireWriter()
	if err != nil {
		return nil, err
	}
	sub, err := b.Subscribe(bus.TickTopic(key.Symbol), queueSize, bus.OverflowDropOldest)
	if err != nil {
		writer.Close()
		return nil, err
	}
	return &consolidator{
		key:     key,
		sub:     sub,
		writer:  writer,
		builder: series.NewBuilder(key),
		bus:     b,
	}, nil
}

func (c *consolidator) run(ctx context.Context, metrics *obs.Metrics) {
	defer c.writer.Close()
	defer c.sub.Cancel()

	var dropped uint64
	for {
		event, err := c.sub.Next(ctx)
		if err != nil {
			return
		}
		tick, err := codec.DecodeTick(event.Payload)
		if err != nil {
			metrics.IncDecodeError()
			continue
		}

		if d := c.sub.Dropped(); d > dropped {
			metrics.AddBusDrops(d - dropped)
			dropped = d
		}

		closed, hasClosed := c.builder.Apply(tick, event.Header.TsEvent)
		if hasClosed {
			c.persist(ctx, closed, event.Header)
		}
		if cur, ok := c.builder.Current(); ok {
			start := time.Now()
			if err := c.writer.Append(cur); err != nil {
				logs.Errorf("stage bar %s: %v", c.key, err)
			}
			metrics.ObserveAppend(time.Since(start))
		}
	}
}

func (c *consolidator) persist(ctx context.Context, bar schema.Bar, tickHeader schema.EventHeader) {
	if err := c.writer.Append(bar); err != nil {
		logs.Errorf("append bar %s: %v", c.key, err)
		return
	}

	header := schema.EventHeader{
		Type:    schema.EventBar,
		Version: 1,
		Seq:     tickHeader.Seq,
		TsEvent: bar.OpenTime + int64(c.key.Resolution.Duration()),
		TsRecv:  tickHeader.TsRecv,
	}
	event := bus.Event{
		Topic:   bus.BarTopic(c.key.Symbol, c.key.Resolution),
		Header:  header,
		Payload: codec.EncodeBar(nil, bar),
	}
	if err := c.bus.Publish(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		logs.Errorf("publish bar %s: %v", c.key, err)
	}
}

func logStats(ctx context.Context, metrics *obs.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := metrics.Snapshot()
			logs.Infof("events=%v decode_errors=%d bus_drops=%d reconnects=%d append=%+v",
				snap.EventCounts, snap.DecodeErrors, snap.BusDrops, snap.Reconnects, snap.AppendLatency)
		}
	}
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
