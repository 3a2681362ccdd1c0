package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/feed"
	"main/internal/ops"
)

// feedsim serves a synthetic random-walk tick stream on the feed
// socket, for exercising ingest end to end without an upstream.
func main() {
	configPath := flag.String("config", "config.json", "path to JSON config")
	tickEvery := flag.Duration("tick-every", 100*time.Millisecond, "interval between ticks per instrument")
	heartbeatEvery := flag.Duration("heartbeat-every", time.Second, "heartbeat interval")
	startPrice := flag.Float64("start-price", 100, "starting price for the random walk")
	seed := flag.Int64("seed", 0, "random seed (0=time-based)")
	flag.Parse()

	if err := run(*configPath, *tickEvery, *heartbeatEvery, *startPrice, *seed); err != nil {
		logs.Errorf("feedsim: %v", err)
		os.Exit(1)
	}
}

func run(configPath string, tickEvery, heartbeatEvery time.Duration, startPrice float64, seed int64) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	srv, err := feed.NewServer(loaded.Feed.SocketPath, heartbeatEvery)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Close()
	logs.Infof("feedsim listening: %s", loaded.Feed.SocketPath)

	type walker struct {
		symbol string
		price  float64
	}
	walkers := make([]walker, 0, loaded.Registry.InstrumentCount())
	for i := 0; i < loaded.Registry.InstrumentCount(); i++ {
		inst, _ := loaded.Registry.InstrumentAt(i)
		exchange, ok := loaded.Registry.Exchange(inst.ExchangeID)
		if !ok {
			continue
		}
		walkers = append(walkers, walker{
			symbol: exchange.Name + "/" + inst.Symbol,
			price:  startPrice,
		})
	}

	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-sys.Shutdown():
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for i := range walkers {
				w := &walkers[i]
				w.price *= 1 + (rng.Float64()-0.5)*0.002
				seq++
				msg, err := buildTick(w.symbol, seq, w.price, 1+rng.Float64()*4)
				if err != nil {
					return err
				}
				if err := srv.Publish(msg); err != nil {
					logs.Errorf("publish %s: %v", w.symbol, err)
				}
			}
		}
	}
}

func buildTick(symbol string, seq uint64, price, size float64) (feed.TickMessage, error) {
	p, err := feed.Dec(strconv.FormatFloat(price, 'f', 4, 64))
	if err != nil {
		return feed.TickMessage{}, fmt.Errorf("price: %w", err)
	}
	s, err := feed.Dec(strconv.FormatFloat(size, 'f', 4, 64))
	if err != nil {
		return feed.TickMessage{}, fmt.Errorf("size: %w", err)
	}
	return feed.TickMessage{
		Type:   feed.TypeTrade,
		Symbol: symbol,
		Seq:    seq,
		Ts:     time.Now().UnixNano(),
		Price:  p,
		Size:   s,
	}, nil
}
