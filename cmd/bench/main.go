// Command bench runs a synthetic pricing workload against the fare caches:
// worker goroutines open transactions that read tax rules, currencies and
// city codes while a change feed invalidates keys. It exposes optional
// pprof and Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/farecache/backing"
	"github.com/IvanBrykalov/farecache/config"
	"github.com/IvanBrykalov/farecache/fares"
	"github.com/IvanBrykalov/farecache/keycodec"
	pmet "github.com/IvanBrykalov/farecache/metrics/prom"
	"github.com/IvanBrykalov/farecache/registry"
	"github.com/IvanBrykalov/farecache/warmload"
)

func main() {
	// ---- Flags ----
	var (
		cfgPath = flag.String("config", "", "YAML or TOML config file (empty = defaults)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		histPct  = flag.Int("historical", 10, "percentage of transactions ticketed in the past [0..100]")
		invRate  = flag.Int("invalidations", 50, "change notifications per second (0 = none)")

		nations = flag.Int("nations", 200, "tax rule nations to generate")
		locs    = flag.Int("locs", 5000, "multi-transport locations to generate")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", "", "serve Prometheus metrics at addr (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Info("pprof serving", zap.String("addr", *pprofAddr))
			log.Warn("pprof stopped", zap.Error(http.ListenAndServe(*pprofAddr, nil)))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, cfg.Metrics.Namespace)
	addr := *metricsAddr
	if addr == "" && cfg.Metrics.Enabled {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("metrics serving", zap.String("addr", addr))
			log.Warn("metrics stopped", zap.Error(http.ListenAndServe(addr, nil)))
		}()
	}

	ctx := context.Background()

	// ---- Backing store ----
	src, closeSrc, err := openSource(ctx, cfg.Database)
	if err != nil {
		log.Fatal("open backing store", zap.Error(err))
	}
	defer closeSrc()

	if sq, ok := src.(*backing.SQL); ok && cfg.Database.Driver == config.DriverSQLite {
		start := time.Now()
		if err := generate(ctx, sq, *nations, *locs, *seed); err != nil {
			log.Fatal("generate fixtures", zap.Error(err))
		}
		log.Info("fixtures generated",
			zap.Int("nations", *nations), zap.Int("locs", *locs), zap.Duration("took", time.Since(start)))
	}

	// ---- Record types ----
	reg := registry.New(registry.Options{HistoricalEnabled: cfg.Historical.Enabled, Logger: log})
	if *histPct > 0 {
		reg.SetHistorical(true) // past ticket dates only route historically with the switch on
	}
	env := fares.Env{Source: src, Config: cfg, Metrics: metrics, Logger: log}
	taxes := fares.NewTaxRules(env)
	currencies := fares.NewCurrencies(env, nil)
	mt := fares.NewMultiTransports(env)
	for _, r := range []interface{ Register(*registry.Registry) error }{taxes, currencies, mt} {
		if err := r.Register(reg); err != nil {
			log.Fatal("register", zap.Error(err))
		}
	}

	if err := reg.Warm(ctx, warmload.Runner{
		Parallelism: cfg.Warm.Parallelism,
		Timeout:     cfg.Warm.Timeout.D(),
		Logger:      log,
	}); err != nil {
		log.Fatal("warm load", zap.Error(err))
	}

	// ---- Snapshot flags for goroutines ----
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}
	seedBase := *seed
	nationsMax := uint64(*nations - 1)
	locsMax := uint64(*locs - 1)
	histPctVal := *histPct
	codes := []string{"USD", "EUR", "GBP", "CHF", "JPY"}

	runCtx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	// ---- Change feed ----
	feed := make(chan registry.Notification, 1024)
	go func() { _ = reg.Consume(runCtx, feed) }()
	if *invRate > 0 {
		go func() {
			r := rand.New(rand.NewSource(seedBase - 1))
			tick := time.NewTicker(time.Second / time.Duration(*invRate))
			defer tick.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-tick.C:
				}
				k := fares.TaxRuleKey{Nation: nationCode(r.Intn(*nations)), TaxPointTag: "D"}
				n := registry.Notification{Type: fares.TypeTaxRule, Key: fares.TaxRuleCodec.Encode(k)}
				switch r.Intn(4) {
				case 0:
					// A dated change only drops the historical buckets it overlaps.
					past := time.Now().AddDate(0, -r.Intn(24)-1, 0)
					n.Key = taxes.Historical.EncodeKey(taxes.Historical.Key(k, past))
				case 1, 2:
					n = registry.Notification{
						Type: fares.TypeMultiTransport,
						Key:  keycodec.ObjectKey{"LOC": locCode(r.Intn(*locs))},
					}
				}
				select {
				case feed <- n:
				default:
				}
			}
		}()
	}

	// ---- Load generation ----
	var txns, lookups, failures uint64
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			nz := rand.NewZipf(r, *zipfS, *zipfV, nationsMax)
			lz := rand.NewZipf(r, *zipfS, *zipfV, locsMax)

			for runCtx.Err() == nil {
				var ticket time.Time
				if r.Intn(100) < histPctVal {
					ticket = time.Now().AddDate(0, -r.Intn(24)-1, 0)
				}
				h := reg.NewSession(ticket)
				travel := time.Now().AddDate(0, 0, r.Intn(300))

				rules, err := taxes.Applicable(runCtx, h, nationCode(int(nz.Uint64())), "D", travel)
				n := uint64(1)
				if err == nil && len(rules) > 0 {
					_, err = currencies.Round(runCtx, h, codes[r.Intn(len(codes))], rules[0].Amount.Mul(decimal.NewFromFloat(1.1)))
					n++
				}
				for i := 0; err == nil && i < 4; i++ {
					_, err = mt.CityCode(runCtx, h, locCode(int(lz.Uint64())))
					n++
				}
				h.Close()

				atomic.AddUint64(&txns, 1)
				atomic.AddUint64(&lookups, n)
				if err != nil && runCtx.Err() == nil {
					atomic.AddUint64(&failures, 1)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	txnsN := atomic.LoadUint64(&txns)
	fmt.Printf("workers=%d nations=%d locs=%d historical=%d%% invalidations=%d/s dur=%v seed=%d\n",
		workersN, *nations, *locs, histPctVal, *invRate, elapsed, seedBase)
	fmt.Printf("txns=%d (%.0f txn/s)  lookups=%d  failures=%d\n",
		txnsN, float64(txnsN)/elapsed.Seconds(), atomic.LoadUint64(&lookups), atomic.LoadUint64(&failures))
	stats := reg.Stats()
	for _, name := range reg.Names() {
		st := stats[name]
		hitRate := 0.0
		if st.Hits+st.Misses > 0 {
			hitRate = float64(st.Hits) / float64(st.Hits+st.Misses) * 100
		}
		fmt.Printf("%-16s entries=%d records=%d hit-rate=%.2f%% loads=%d retired-pinned=%d\n",
			name, st.Entries, st.Records, hitRate, st.Loads, st.RetiredPinned)
	}
	fmt.Printf("hotpath slots=%d\n", mt.HotPath().Len())
}

func openSource(ctx context.Context, db config.DatabaseConfig) (backing.Source, func(), error) {
	switch db.Driver {
	case config.DriverPostgres:
		p, err := backing.OpenPgx(ctx, db.DSN, db.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	default:
		s, err := backing.OpenSQLite(db.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}

func nationCode(i int) string { return "N" + strconv.Itoa(i) }

// locCode maps i onto a three-letter code so that most locations are
// eligible for the micro cache.
func locCode(i int) string {
	i %= 26 * 26 * 26
	return string([]byte{byte('A' + i/676), byte('A' + i/26%26), byte('A' + i%26)})
}

// generate fills the tables with two tax rule versions per nation and one
// mapping per location. About one location in ten gets an expiring mapping,
// which keeps it out of the micro cache.
func generate(ctx context.Context, db *backing.SQL, nations, locs int, seed int64) error {
	if err := fares.CreateSchema(ctx, db); err != nil {
		return err
	}
	r := rand.New(rand.NewSource(seed))
	base := time.Now().AddDate(-3, 0, 0).Truncate(24 * time.Hour)

	for i := 0; i < nations; i++ {
		for v := 0; v < 2; v++ {
			created := base.AddDate(0, 6*v+r.Intn(6), 0)
			if err := fares.InsertTaxRule(ctx, db, fares.TaxRule{
				Nation:      nationCode(i),
				TaxPointTag: "D",
				SeqNo:       1,
				TaxCode:     "T" + strconv.Itoa(i%50),
				Amount:      decimal.New(int64(100+r.Intn(9900)), -2),
				Currency:    "USD",
				Create:      created,
				Eff:         created,
				Disc:        fares.Infinity,
				Expire:      fares.Infinity,
			}); err != nil {
				return err
			}
		}
	}
	for i := 0; i < locs; i++ {
		loc := locCode(i)
		m := fares.MultiTransport{
			Loc:    loc,
			City:   locCode(i / 3),
			Create: base,
			Eff:    base,
			Disc:   fares.Infinity,
			Expire: fares.Infinity,
		}
		if r.Intn(10) == 0 {
			m.Expire = time.Now().AddDate(1, 0, 0)
		}
		if err := fares.InsertMultiTransport(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}
