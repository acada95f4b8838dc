// Command vaultauth-loadtest measures token validation and refresh
// rotation throughput against a real or embedded Redis.
//
// Two phases run back to back: "validate" parses and checks access
// tokens, "rotate" walks refresh-token chains. Rotation is serialized
// per chain; interleaving rotations of one chain from two workers
// would trip reuse detection and revoke the family, which is the
// behavior under test elsewhere, not here.
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
	"github.com/redis/go-redis/v9"

	vaultauth "github.com/docsafe/vaultauth"
	"github.com/docsafe/vaultauth/metrics/export/internaldefs"
)

type chainState struct {
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		chains      = flag.Int("chains", 10000, "number of refresh-token chains to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (validate + rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "va", "store key prefix")
	)
	flag.Parse()

	if *chains <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "chains, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  *redis.Client
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := loadtestConfig(*prefix)
	engine, err := vaultauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(loadtestProvider{}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]chainState, *chains)
	accessTokens := make([]string, *chains)
	fmt.Printf("seeding %d chains...\n", *chains)
	startSeed := time.Now()
	for i := 0; i < *chains; i++ {
		user := &vaultauth.UserRecord{
			UserID:     fmt.Sprintf("u-%d", i),
			Identifier: fmt.Sprintf("user-%d@loadtest", i),
			Role:       "member",
		}
		pair, err := engine.IssueTokens(ctx, user)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = chainState{refresh: pair.RefreshToken}
		accessTokens[i] = pair.AccessToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(engine, accessTokens, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("rotate", rotateStats)
	printCounters(engine.MetricsSnapshot())
}

func loadtestConfig(prefix string) vaultauth.Config {
	return vaultauth.Config{
		JWT: vaultauth.JWTConfig{
			SigningMethod: "hs256",
			PrivateKey:    []byte("loadtest-key-0123456789abcdefghi"),
			AccessTTL:     time.Hour,
			RefreshTTL:    24 * time.Hour,
			Issuer:        "vaultauth-loadtest",
		},
		Password: vaultauth.PasswordConfig{Cost: 12, MinLength: 10, MinCharClasses: 2},
		MFA: vaultauth.MFAConfig{
			Issuer:              "vaultauth-loadtest",
			Period:              30,
			Skew:                1,
			Digits:              6,
			Algorithm:           "SHA1",
			SecretEntropy:       20,
			SecretEncryptionKey: []byte("loadtest-mfa-0123456789abcdefghi"),
			MaxAttempts:         5,
			AttemptWindow:       time.Minute,
			AdminRole:           "admin",
		},
		Backup:  vaultauth.BackupConfig{Count: 10, Length: 8},
		Login:   vaultauth.LoginConfig{MaxAttempts: 10, Cooldown: 5 * time.Minute},
		Store:   vaultauth.StoreConfig{KeyPrefix: prefix, OpTimeout: 5 * time.Second},
		Audit:   vaultauth.AuditConfig{Enabled: false},
		Metrics: vaultauth.MetricsConfig{Enabled: true},
	}
}

func runValidatePhase(engine *vaultauth.Engine, tokens []string, ops, concurrency int) phaseStats {
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
				idx := r.Intn(len(tokens))
				t0 := time.Now()
				_, err := engine.ValidateAccess(tokens[idx])
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
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runRotatePhase(ctx context.Context, engine *vaultauth.Engine, states []chainState, ops, concurrency int) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				state := &states[idx]

				state.mu.Lock()
				t0 := time.Now()
				pair, err := engine.Rotate(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.refresh = pair.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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

func printCounters(snap vaultauth.MetricsSnapshot) {
	fmt.Println("---- counters ----")
	for _, def := range internaldefs.CounterDefs {
		if v := snap.Counters[def.ID]; v > 0 {
			fmt.Printf("%s=%d\n", def.Name, v)
		}
	}
}

// loadtestProvider satisfies the provider interface; token issuance and
// rotation never look users up.
type loadtestProvider struct{}

func (loadtestProvider) GetUserByIdentifier(string) (vaultauth.UserRecord, error) {
	return vaultauth.UserRecord{}, fmt.Errorf("not found")
}

func (loadtestProvider) GetUserByID(string) (vaultauth.UserRecord, error) {
	return vaultauth.UserRecord{}, fmt.Errorf("not found")
}

func (loadtestProvider) UpdatePasswordHash(string, string) error { return nil }

func (loadtestProvider) GetMFARecord(context.Context, string) (*vaultauth.MFARecord, error) {
	return nil, nil
}

func (loadtestProvider) PutMFARecord(context.Context, string, vaultauth.MFARecord) error { return nil }

func (loadtestProvider) DeleteMFARecord(context.Context, string) error { return nil }

func (loadtestProvider) GetBackupCodes(context.Context, string) ([]vaultauth.BackupCodeRecord, error) {
	return nil, nil
}

func (loadtestProvider) ReplaceBackupCodes(context.Context, string, []vaultauth.BackupCodeRecord) error {
	return nil
}

func (loadtestProvider) ConsumeBackupCode(context.Context, string, [32]byte) (bool, error) {
	return false, nil
}
