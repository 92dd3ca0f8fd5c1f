// Package main is the entry point for pool-server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pool-server/internal/api"
	"pool-server/internal/client"
	"pool-server/internal/config"
	"pool-server/internal/events"
	"pool-server/internal/logger"
	"pool-server/internal/metrics"
	"pool-server/internal/server"
	"pool-server/internal/threadpool"
)

var (
	version = "dev"
)

// options はコマンドラインの指定内容
type options struct {
	configFile  string
	addr        string
	workers     int
	slowDelay   time.Duration
	maxConns    int
	readTimeout time.Duration
	logLevel    string
	logFile     string
	admin       bool
	adminAddr   string
	bench       int
	concurrency int
	slowRatio   float64
	showVersion bool

	// set は明示的に指定されたフラグ名
	set map[string]bool
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	// バージョン表示
	if opts.showVersion {
		fmt.Printf("pool-server version %s\n", version)
		return
	}

	if err := run(opts); err != nil {
		logger.Error("", "%v", err)
		os.Exit(1)
	}
}

// parseFlags はフラグを定義して解析する
func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	def := config.Default()
	opts := &options{set: make(map[string]bool)}

	fs.StringVar(&opts.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	fs.StringVar(&opts.addr, "addr", def.Server.Addr, "待ち受けアドレス（ベンチマーク時は接続先）")
	fs.IntVar(&opts.workers, "workers", def.Pool.Size, "ワーカー数")
	fs.DurationVar(&opts.slowDelay, "slow-delay", def.Server.SlowDelay, "/sleep の応答遅延")
	fs.IntVar(&opts.maxConns, "max-conns", 0, "受け付ける接続数の上限 (0で無制限)")
	fs.DurationVar(&opts.readTimeout, "read-timeout", 0, "リクエスト読み込みタイムアウト (0でなし)")
	fs.StringVar(&opts.logLevel, "log-level", def.LogLevel.String(), "端末のログレベル (debug, info, warn, error)")
	fs.StringVar(&opts.logFile, "log-file", def.LogFile, "ログファイル (空でファイル出力なし)")
	fs.BoolVar(&opts.admin, "admin", false, "管理APIを有効化")
	fs.StringVar(&opts.adminAddr, "admin-addr", def.AdminAddr, "管理APIアドレス")
	fs.IntVar(&opts.bench, "bench", 0, "指定数のリクエストを送るベンチマークモード")
	fs.IntVar(&opts.concurrency, "concurrency", 4, "ベンチマークの並列数")
	fs.Float64Var(&opts.slowRatio, "slow-ratio", 0, "ベンチマークで /sleep を送る比率 (0.0〜1.0)")
	fs.BoolVar(&opts.showVersion, "version", false, "バージョンを表示")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `pool-server - TCP server backed by a fixed-size worker pool

Usage:
  pool-server [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), `
Examples:
  # 4ワーカーで起動
  pool-server

  # 設定ファイルから起動
  pool-server --config server.yaml

  # 3接続だけ受け付けて終了
  pool-server --max-conns 3

  # 管理API付きで起動
  pool-server --admin --admin-addr :8080

  # 起動中のサーバーに1000リクエストを送る
  pool-server --bench 1000 --concurrency 8 --slow-ratio 0.1
`)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	return opts, nil
}

// buildSettings は設定ファイルとフラグから設定を組み立てる
// フラグは明示的に指定された場合のみ設定ファイルの値を上書きする
func buildSettings(opts *options) (config.Settings, error) {
	settings := config.Default()

	// 1. 設定ファイルから読み込み
	if opts.configFile != "" {
		fileConfig, err := config.LoadFile(opts.configFile)
		if err != nil {
			return settings, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		if err := fileConfig.Validate(); err != nil {
			return settings, fmt.Errorf("設定検証エラー: %w", err)
		}
		settings, err = fileConfig.ToSettings()
		if err != nil {
			return settings, fmt.Errorf("設定変換エラー: %w", err)
		}
	}

	// 2. フラグでオーバーライド
	if opts.set["addr"] {
		settings.Server.Addr = opts.addr
	}
	if opts.set["workers"] {
		if opts.workers < 1 {
			return settings, fmt.Errorf("--workers must be at least 1, got %d", opts.workers)
		}
		settings.Pool.Size = opts.workers
	}
	if opts.set["slow-delay"] {
		settings.Server.SlowDelay = opts.slowDelay
	}
	if opts.set["max-conns"] {
		settings.Server.MaxConnections = opts.maxConns
	}
	if opts.set["read-timeout"] {
		settings.Server.ReadTimeout = opts.readTimeout
	}
	if opts.set["log-level"] {
		level, err := logger.ParseLevel(opts.logLevel)
		if err != nil {
			return settings, err
		}
		settings.LogLevel = level
	}
	if opts.set["log-file"] {
		settings.LogFile = opts.logFile
	}
	if opts.set["admin"] {
		settings.AdminEnabled = opts.admin
	}
	if opts.set["admin-addr"] {
		settings.AdminAddr = opts.adminAddr
	}

	return settings, nil
}

// newLogger は端末とログファイルに出力するロガーを作る
// ログファイルを開けない場合は端末のみで続行する
func newLogger(settings config.Settings, terminal io.Writer) (*logger.Logger, func()) {
	log := logger.New(terminal, settings.LogLevel)
	if settings.LogFile == "" {
		return log, func() {}
	}

	f, err := os.OpenFile(settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn("", "ログファイルを開けません (%v)。端末のみに出力します", err)
		return log, func() {}
	}
	log.AddOutput(f, settings.LogFileLevel)
	return log, func() { _ = f.Close() }
}

// run は設定に従ってサーバーまたはベンチマークを実行する
func run(opts *options) error {
	settings, err := buildSettings(opts)
	if err != nil {
		return err
	}

	log, closeLog := newLogger(settings, os.Stdout)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.bench > 0 {
		return runBench(ctx, opts, settings, log)
	}
	return runServer(ctx, settings, log)
}

// runServer はプールとサーバーを起動し、終了時に必ずプールを停止する
func runServer(ctx context.Context, settings config.Settings, log *logger.Logger) error {
	m := metrics.New()
	bus := events.NewBus()
	defer bus.Close()

	poolCfg := settings.Pool
	poolCfg.Logger = log
	poolCfg.Metrics = m
	poolCfg.Events = bus

	pool, err := threadpool.BuildWithConfig(poolCfg)
	if err != nil {
		return fmt.Errorf("プール作成エラー: %w", err)
	}
	defer pool.Shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if settings.AdminEnabled {
		admin := api.NewServer(settings.AdminAddr, api.Sources{
			Pool:    pool,
			Metrics: m,
			Events:  bus,
			Logger:  log,
		})
		go func() {
			if err := admin.Start(ctx); err != nil {
				log.Error("api", "管理APIエラー: %v", err)
			}
		}()
	}

	srvCfg := settings.Server
	srvCfg.Logger = log
	srvCfg.Events = bus
	srv := server.New(srvCfg, pool)

	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		log.Info("", "中断シグナルを受信、サーバーを終了中...")
	}
	return nil
}

// runBench は起動中のサーバーに負荷をかけてレポートを表示する
func runBench(ctx context.Context, opts *options, settings config.Settings, log *logger.Logger) error {
	cfg := client.DefaultLoadConfig()
	cfg.Addr = settings.Server.Addr
	cfg.Requests = opts.bench
	cfg.Concurrency = opts.concurrency
	cfg.SlowRatio = opts.slowRatio
	cfg.Logger = log

	snap, err := client.RunLoad(ctx, cfg)
	fmt.Print(report(cfg, snap))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// report はベンチマーク結果を整形する
func report(cfg client.LoadConfig, snap metrics.Snapshot) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString("========== Benchmark Report ==========\n")
	fmt.Fprintf(&b, "Target:       %s\n", cfg.Addr)
	fmt.Fprintf(&b, "Concurrency:  %d\n", cfg.Concurrency)
	fmt.Fprintf(&b, "Slow ratio:   %.1f%%\n", cfg.SlowRatio*100)
	fmt.Fprintf(&b, "Elapsed:      %v\n", snap.Elapsed.Round(time.Millisecond))
	b.WriteString("--------------------------------------\n")
	fmt.Fprintf(&b, "Requests:     %d / %d\n", snap.Completed, snap.Submitted)
	fmt.Fprintf(&b, "Succeeded:    %d\n", snap.Succeeded)
	fmt.Fprintf(&b, "Failed:       %d (%.2f%%)\n", snap.Failed, snap.ErrorRate*100)
	fmt.Fprintf(&b, "Throughput:   %.2f req/s\n", snap.OverallJobsPerSecond)
	fmt.Fprintf(&b, "Avg latency:  %v\n", snap.AverageLatency)
	fmt.Fprintf(&b, "P99 latency:  %v\n", snap.P99Latency)
	b.WriteString("======================================\n")
	return b.String()
}
