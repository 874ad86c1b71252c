package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"camwatch/internal/camera"
	"camwatch/internal/config"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間
const shutdownTimeout = 5 * time.Second

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	watcher    *camera.Watcher
	hub        *EventHub
	handler    *Handler
	engine     *gin.Engine
	httpServer *http.Server
	logger     *zap.SugaredLogger
}

// Option は Server の構築オプション
type Option func(*Server)

// WithLogger はロガーを設定する
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Server) { s.logger = logger }
}

// New は新しいServerインスタンスを作成する
//
// gatherer が nil なら /metrics は prometheus.DefaultGatherer を公開する。
func New(cfg *config.Config, watcher *camera.Watcher, gatherer prometheus.Gatherer, opts ...Option) *Server {
	s := &Server{
		config:  cfg,
		watcher: watcher,
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s.hub = NewEventHub(watcher)
	s.handler = &Handler{
		config:  cfg,
		watcher: watcher,
		hub:     s.hub,
		logger:  s.logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.engine = engine
	s.setupRoutes(gatherer)

	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handler.HealthCheck)

	// APIエンドポイント
	api := s.engine.Group("/api")
	api.GET("/status", s.handler.GetStatus)
	api.GET("/devices", s.handler.GetDevices)
	api.POST("/devices/resync", s.handler.Resync)
	api.GET("/devices/snapshot", s.handler.GetSnapshot)
	api.GET("/devices/stream", s.handler.GetStream)
	api.POST("/watch/start", s.handler.StartWatching)
	api.POST("/watch/stop", s.handler.StopWatching)
	api.GET("/events", s.handler.GetEvents)
	api.GET("/events/ws", s.handler.GetEventsWebSocket)

	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// Handler は http.Handler として使うためのエンジンを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start はサーバーを起動し、ctx がキャンセルされたらグレースフルにシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve は listener で待ち受ける。ctx がキャンセルされたらシャットダウンする
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	// シャットダウン用のチャンネル
	serveErr := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Infow("HTTPサーバーを起動しています", "addr", listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		s.logger.Infow("コンテキストがキャンセルされました")
	case err, ok := <-serveErr:
		s.hub.Close()
		if ok {
			return err
		}
		return nil
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Infow("サーバーをシャットダウンしています...")

	// ストリーミング中のクライアントを先に切断する
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Infow("サーバーが正常にシャットダウンされました")
	return nil
}

// requestLogger はリクエストを zap に記録するミドルウェア
func requestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugw("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
