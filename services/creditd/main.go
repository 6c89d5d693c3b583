package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"creditnet/native/common"
	"creditnet/native/credit"
	"creditnet/observability/logging"
	"creditnet/rpc"
	"creditnet/services/creditd/config"
	"creditnet/storage"
	"creditnet/storage/creditstate"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/creditd/config.yaml", "path to creditd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("CREDIT_ENV"))
	logger := logging.Setup("creditd", env)

	if token := strings.TrimSpace(os.Getenv("CREDIT_RPC_TOKEN")); token == "" {
		logger.Warn("rpc auth token unset, mutating methods will be rejected")
	} else {
		logger.Info("rpc auth enabled", logging.MaskField("token", token))
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	vault, err := cfg.VaultAddress()
	if err != nil {
		log.Fatalf("vault address: %v", err)
	}
	authority, err := cfg.AuthorityAddress()
	if err != nil {
		log.Fatalf("authority address: %v", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Fatalf("open database at %s: %v", cfg.DataDir, err)
	}
	defer db.Close()

	params := credit.DefaultParams()
	engine := credit.NewEngine(vault, authority, params)
	engine.SetState(creditstate.NewStore(db))
	engine.SetMarketID(cfg.MarketID)
	engine.SetPauses(common.NewPauseSet())
	engine.SetMarkdownPolicy(credit.NewLinearMarkdownPolicy(params.FullMarkdownDuration))
	engine.SetRateModel(credit.NewKinkedRateModel(
		cfg.RateModel.BaseRate,
		cfg.RateModel.Slope1,
		cfg.RateModel.Slope2,
		cfg.RateModel.Kink,
	))
	if recipient, ok, err := cfg.FeeRecipientAddress(); err != nil {
		log.Fatalf("fee recipient address: %v", err)
	} else if ok {
		engine.SetFeeRecipient(recipient)
	}

	if _, err := engine.CreateMarket(authority, cfg.FeeRateBps); err != nil {
		// An existing market is the normal restart path.
		logger.Info("market bootstrap skipped", "market", cfg.MarketID, "reason", err.Error())
	} else {
		logger.Info("market created", "market", cfg.MarketID, "feeRateBps", cfg.FeeRateBps)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))
	router.Method(http.MethodPost, "/", rpc.NewServer(engine))
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("creditd listening", "addr", cfg.ListenAddress, "market", cfg.MarketID)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("forcing server stop", "error", err.Error())
			_ = server.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve rpc: %v", err)
		}
	}
}
