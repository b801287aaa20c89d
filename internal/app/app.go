// Package app 负责连接各个服务、组装编排器并管理应用程序生命周期。
package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"charm.land/catwalk/pkg/catwalk"
	"github.com/purpose168/chorus/internal/agent"
	"github.com/purpose168/chorus/internal/checkpoint"
	"github.com/purpose168/chorus/internal/config"
	"github.com/purpose168/chorus/internal/db"
	"github.com/purpose168/chorus/internal/event"
	"github.com/purpose168/chorus/internal/orchestrator"
	"github.com/purpose168/chorus/internal/projectsize"
	"github.com/purpose168/chorus/internal/prompt"
	"github.com/purpose168/chorus/internal/provider"
	"github.com/purpose168/chorus/internal/session"
	"github.com/purpose168/chorus/internal/skills"
	"github.com/purpose168/chorus/internal/store"
	"github.com/purpose168/chorus/internal/usage"
)

// ErrNoRuntime 未连接代理运行时
var ErrNoRuntime = errors.New("未连接代理运行时")

const catalogCacheFile = "providers.json"

type App struct {
	Sessions     *session.Manager
	Resolver     *provider.Resolver
	Usage        *usage.Tracker
	Checkpoints  *checkpoint.Coordinator
	ProjectSizes *projectsize.Cache
	Orchestrator *orchestrator.Orchestrator

	Store  store.Store
	Writer *store.Writer

	config *config.Config

	serviceEventsWG *sync.WaitGroup
	eventsCtx       context.Context
	events          chan any

	globalCtx    context.Context
	cleanupFuncs []func(context.Context) error
}

// Option 应用程序选项
type Option func(*options)

type options struct {
	runtime agent.Runtime
	catwalk provider.CatwalkClient
}

// WithRuntime 连接代理运行时，未设置时发送消息返回 ErrNoRuntime
func WithRuntime(rt agent.Runtime) Option {
	return func(o *options) { o.runtime = rt }
}

// WithCatwalkClient 替换在线提供商数据库客户端
func WithCatwalkClient(c provider.CatwalkClient) Option {
	return func(o *options) { o.catwalk = c }
}

// New 初始化一个新的应用程序实例，conn 的关闭由应用程序负责
func New(ctx context.Context, conn *sql.DB, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.runtime == nil {
		o.runtime = offlineRuntime{}
	}
	if o.catwalk == nil {
		o.catwalk = catwalk.NewWithURL(cfg.Options.CatwalkURL)
	}

	q := db.New(conn)
	kv := store.NewSQLite(q)
	writer := store.NewWriter(kv)

	sessions := session.NewManager(kv, writer)
	if err := sessions.Load(ctx); err != nil {
		slog.Warn("加载会话目录失败", "error", err)
	}

	resolver := provider.NewResolver(
		provider.WithSettings(cfg.ProviderSettings()),
		provider.WithStore(kv),
		provider.WithCatalog(provider.NewCatalog(
			o.catwalk,
			filepath.Join(cfg.Options.DataDirectory, catalogCacheFile),
			!cfg.Options.DisableProviderAutoUpdate,
		)),
	)

	tracker := usage.NewTracker(kv, writer, resolver, usage.NewEstimator(cfg.Options.Estimator))
	tracker.LoadGlobal(ctx)

	checkpoints := checkpoint.NewCoordinator(checkpoint.NewDBBackend(conn, q))
	sizes := projectsize.NewCache(cfg.ProjectSizeTTL())

	orch := orchestrator.New(
		sessions,
		o.runtime,
		resolver,
		tracker,
		kv,
		writer,
		orchestrator.WithCheckpoints(checkpoints),
		orchestrator.WithSizeRefresher(sizes),
		orchestrator.WithPromptBuilder(prompt.NewBuilder(
			prompt.WithSizeHint(sizes),
			prompt.WithRulePaths(append(slices.Clone(prompt.DefaultRulePaths), cfg.Options.ContextPaths...)),
			prompt.WithSkillDirs(append(slices.Clone(skills.DefaultDirs), cfg.Options.SkillDirs...)),
		)),
		orchestrator.WithSettings(orchestrator.Settings{
			MaxIterations:    cfg.Options.MaxIterations,
			EditApprovalMode: cfg.Options.EditApproval,
			FlushInterval:    cfg.FlushInterval(),
		}),
	)
	orch.Load(ctx)

	app := &App{
		Sessions:     sessions,
		Resolver:     resolver,
		Usage:        tracker,
		Checkpoints:  checkpoints,
		ProjectSizes: sizes,
		Orchestrator: orch,
		Store:        kv,
		Writer:       writer,

		config:    cfg,
		globalCtx: ctx,

		events:          make(chan any, 100),
		serviceEventsWG: &sync.WaitGroup{},
	}

	app.setupEvents()

	if !cfg.Options.DisableMetrics {
		event.Init()
		event.AppInitialized()
	}

	// 写入队列必须先于数据库关闭排空
	app.cleanupFuncs = append(app.cleanupFuncs, func(ctx context.Context) error {
		sessions.Shutdown()
		checkpoints.Shutdown()
		sizes.Close()
		if err := writer.Flush(ctx); err != nil {
			slog.Error("关闭前持久化失败", "error", err)
		}
		writer.Close()
		return conn.Close()
	})

	return app, nil
}

// Config 返回应用程序配置。
func (app *App) Config() *config.Config {
	return app.config
}

// Shutdown 执行应用程序的优雅关闭。
func (app *App) Shutdown() {
	start := time.Now()
	defer func() { slog.Debug("关闭耗时 " + time.Since(start).String()) }()

	shutdownCtx, cancel := context.WithTimeout(app.globalCtx, 5*time.Second)
	defer cancel()

	// 先中止所有轮次，让它们在数据库关闭前完成状态写入。
	app.Orchestrator.Shutdown(shutdownCtx)

	var wg sync.WaitGroup
	wg.Go(func() {
		event.AppExited()
	})
	for _, cleanup := range app.cleanupFuncs {
		if cleanup != nil {
			wg.Go(func() {
				if err := cleanup(shutdownCtx); err != nil {
					slog.Error("应用程序关闭时清理失败", "error", err)
				}
			})
		}
	}
	wg.Wait()
}

// offlineRuntime 未连接运行时时的占位实现
type offlineRuntime struct{}

func (offlineRuntime) Run(context.Context, agent.Request) error { return ErrNoRuntime }

func (offlineRuntime) Abort(context.Context, string) error { return agent.ErrUnknownRequest }

func (offlineRuntime) OnEvent(string, func(agent.Event)) func() { return func() {} }

func (offlineRuntime) RespondToolApproval(context.Context, string, bool) error {
	return ErrNoRuntime
}
