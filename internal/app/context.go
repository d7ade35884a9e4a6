// Package app wires the download engine's components into one runnable
// process: NNTP server pool, in-memory queue, article scheduler,
// direct-write downloader, assembler, feed fetcher, persistent store and
// RPC command server.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nzbcore/gonzbd/internal/assembler"
	"github.com/nzbcore/gonzbd/internal/domain"
	"github.com/nzbcore/gonzbd/internal/downloader"
	"github.com/nzbcore/gonzbd/internal/feed"
	"github.com/nzbcore/gonzbd/internal/infra/config"
	"github.com/nzbcore/gonzbd/internal/infra/logger"
	"github.com/nzbcore/gonzbd/internal/nntp"
	"github.com/nzbcore/gonzbd/internal/nzb"
	"github.com/nzbcore/gonzbd/internal/queue"
	"github.com/nzbcore/gonzbd/internal/rpc"
	"github.com/nzbcore/gonzbd/internal/scheduler"
	"github.com/nzbcore/gonzbd/internal/speedmeter"
	"github.com/nzbcore/gonzbd/internal/store"
	"github.com/nzbcore/gonzbd/internal/urlfetch"
)

const appVersion = "1.0.0"

// Context is the single source of truth for a running instance: every
// long-lived component plus the configuration it was built from.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Store      *store.Store
	Pool       *nntp.Pool
	Queue      *queue.Queue
	Writer     *downloader.Writer
	Assembler  *assembler.Assembler
	Scheduler  *scheduler.Scheduler
	Meter      *speedmeter.Meter
	NZBParser  *nzb.Parser
	URLFetcher *urlfetch.Client
	Feeds      *feed.Fetcher
	RPC        *rpc.Server

	cancel context.CancelFunc
}

// NewContext builds every component and wires the observer hooks between
// them, but starts nothing — callers drive the background loops via Run.
func NewContext(cfg *config.Config, log *logger.Logger) (*Context, error) {
	st, err := store.Open(store.Options{
		Driver:     cfg.Store.Driver,
		SQLitePath: cfg.Store.SQLitePath,
		DSN:        cfg.Store.DSN,
		BlobDir:    cfg.Store.BlobDir,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	servers := make([]*domain.Server, 0, len(cfg.Servers))
	for _, sc := range cfg.Servers {
		servers = append(servers, &domain.Server{
			ID: sc.ID, Host: sc.Host, Port: sc.Port, TLS: sc.TLS,
			Username: sc.Username, Password: sc.Password,
			MaxConnection: sc.MaxConnection, Level: sc.Level,
			Active: true, GroupFilter: sc.GroupFilter,
		})
	}

	pool := nntp.NewPool(servers, 30*time.Second, log)
	q := queue.New()
	meter := speedmeter.New()
	if cfg.Speed.LimitBytesPerSecond > 0 {
		meter.SetLimit(cfg.Speed.LimitBytesPerSecond)
	}

	writer := downloader.NewWriter()

	asm := assembler.New(q, writer, log, assembler.Options{
		RenameBroken:      cfg.Download.RenameBroken,
		WriteBrokenLog:    cfg.Download.WriteBrokenLog,
		CriticalHealth:    cfg.Download.CriticalHealth,
		PauseOnPoorHealth: cfg.Download.PauseOnPoorHealth,
	}, st)

	retryInterval := time.Duration(cfg.Download.RetryIntervalSeconds) * time.Second
	sched := scheduler.New(q, pool, meter, writer, log, retryInterval)
	sched.SetObservers(asm, asm)

	nzbParser := nzb.NewParser(log)
	urlClient := urlfetch.New(60*time.Second, appVersion)

	feedFetcher := feed.NewFetcher(urlClient, nzbParser, q, log, func(f *domain.Feed, category string) string {
		if category != "" {
			return cfg.Download.OutDir + "/" + category
		}
		return cfg.Download.OutDir
	})

	for _, fc := range cfg.Feeds {
		df := &domain.Feed{
			Name: fc.Name, URL: fc.URL,
			Interval: time.Duration(fc.Interval) * time.Minute,
			Filter:   fc.Filter, Category: fc.Category,
			Priority: fc.Priority, Pause: fc.Pause,
		}
		if history, err := st.LoadFeedHistory(context.Background(), fc.Name); err == nil {
			df.History = history
		}
		if err := feedFetcher.Register(df); err != nil {
			return nil, fmt.Errorf("feed %s: %w", fc.Name, err)
		}
	}

	appCtx := &Context{
		Config: cfg, Logger: log,
		Store: st, Pool: pool, Queue: q, Writer: writer,
		Assembler: asm, Scheduler: sched, Meter: meter,
		NZBParser: nzbParser, URLFetcher: urlClient, Feeds: feedFetcher,
	}

	handlers := &rpc.Handlers{
		Queue: q, Parser: nzbParser, Meter: meter, Store: st, Logger: log,
		Version: appVersion, OutDir: cfg.Download.OutDir,
		Paused:    &rpc.PauseFlags{},
		Shutdown:  func() { appCtx.Shutdown() },
		ReloadCfg: func() error { return nil },
	}
	addr := fmt.Sprintf("%s:%d", cfg.RPC.Host, cfg.RPC.Port)
	appCtx.RPC = rpc.New(addr, cfg.RPC.Username, cfg.RPC.Password, handlers, log)

	return appCtx, nil
}

// Run starts every background loop and blocks until ctx is cancelled.
func (c *Context) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.Meter.Run(runCtx)
	go c.Feeds.Run(runCtx)
	go func() {
		if err := c.RPC.ListenAndServe(); err != nil {
			c.Logger.Error("rpc server stopped: %v", err)
		}
	}()

	c.Scheduler.Run(runCtx)
}

// Shutdown implements the RPC Shutdown command (§4.12 type 8).
func (c *Context) Shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
	c.RPC.Close()
}

func (c *Context) Close() {
	c.Writer.CloseAll()
	c.Pool.CloseIdle()
	if err := c.Store.Close(); err != nil {
		c.Logger.Error("closing store: %v", err)
	}
}
