package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/seedrank/backend/internal/api"
	"github.com/wonny/seedrank/backend/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- 추천 실행 / 이력 조회 엔드포인트 제공
- 알고리즘 버전 관리, A/B 테스트, 성과 조회 엔드포인트 제공
- /ws/runs 실시간 실행 피드 제공
- SCHEDULER_ENABLED=true 이면 스케줄러를 같은 프로세스에서 실행

Endpoints:
  GET  /health                                        - Health check
  GET  /metrics                                       - Prometheus metrics
  GET  /ws/runs?family=swing                          - 실시간 실행 피드
  POST /api/recommendations/{family}                  - 추천 실행
  GET  /api/recommendations/{family}/history          - 실행 이력
  GET  /api/runs/{id}                                 - 실행 결과 조회
  GET  /api/algorithms                                - 알고리즘 목록
  POST /api/algorithms/{id}/versions/{v}/activate     - 버전 활성화
  POST /api/families/{family}/rollback                - 롤백
  POST /api/abtests                                   - A/B 테스트 시작
  GET  /api/performance/{algorithm}/{version}         - 성과 지표

Example:
  go run ./cmd/seedrank api
  go run ./cmd/seedrank api --port 8089 --storage memory`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본값 PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== SeedRank API Server ===")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	log := a.log
	log.WithFields(map[string]interface{}{
		"port":    a.cfg.Port,
		"env":     a.cfg.Env,
		"storage": a.cfg.Storage,
		"market":  a.cfg.Market.Source,
	}).Info("Initializing API server")

	h := api.Handlers{
		Recommendations: handlers.NewRecommendationHandler(a.orchestrator, a.store, log.Component("api.recommendations")),
		Algorithms:      handlers.NewAlgorithmHandler(a.registry, a.versions, log.Component("api.algorithms")),
		ABTests:         handlers.NewABTestHandler(a.abtests, log.Component("api.abtests")),
		Performance:     handlers.NewPerformanceHandler(a.tracker, a.market, log.Component("api.performance")),
		RunFeed:         a.hub,
	}
	if a.metrics != nil {
		h.Metrics = a.metrics.Handler()
	}

	server := api.New(a.cfg, log, api.NewRouter(h, log))

	// In-process scheduler
	if a.cfg.SchedulerEnabled {
		sched, err := a.newScheduler()
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
		log.WithField("jobs", sched.GetAllJobs()).Info("Scheduler started")
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := a.orchestrator.Drain(ctx); err != nil {
		log.WithError(err).Warn("Pending performance hand-offs not finished")
	}

	log.Info("Server stopped")
	return nil
}
