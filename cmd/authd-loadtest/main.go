// Command authd-loadtest measures engine throughput for bearer-token
// validation and password login against the in-memory store and Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	authsystem "github.com/neecatt/UserAuthSystem"
	"github.com/neecatt/UserAuthSystem/store/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const seedPassword = "loadtest-password"

type account struct {
	email string
	token string
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "bearer validations to run")
		loginOps    = flag.Int("login-ops", 500, "password logins to run")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, AUTH_REDIS_ADDR env or miniredis is used")
		bcryptCost  = flag.Int("bcrypt-cost", authsystem.DefaultConfig().Password.BcryptCost, "bcrypt cost for seeded accounts")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *loginOps <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops, and login-ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("AUTH_REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := authsystem.DefaultConfig()
	cfg.JWT.Secret = []byte("loadtest-secret-loadtest-secret-0")
	cfg.Password.BcryptCost = *bcryptCost
	cfg.Audit.Enabled = false

	engine, err := authsystem.New().
		WithConfig(cfg).
		WithStore(memory.New()).
		WithRedis(client).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	accounts, err := seed(ctx, engine, *users, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		a := accounts[r.Intn(len(accounts))]
		_, err := engine.ValidateBearerToken(ctx, "Bearer "+a.token)
		return err
	})
	loginStats := runPhase(*loginOps, *concurrency, func(r *rand.Rand) error {
		a := accounts[r.Intn(len(accounts))]
		_, err := engine.Login(ctx, a.email, seedPassword)
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("login", loginStats)
}

func seed(ctx context.Context, engine *authsystem.Engine, n, concurrency int) ([]account, error) {
	accounts := make([]account, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			email := fmt.Sprintf("user-%d@loadtest.local", i)
			if _, err := engine.Register(gctx, email, seedPassword); err != nil {
				return err
			}
			res, err := engine.Login(gctx, email, seedPassword)
			if err != nil {
				return err
			}
			accounts[i] = account{email: email, token: res.AccessToken}
			return nil
		})
	}
	return accounts, g.Wait()
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
