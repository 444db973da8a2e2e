package cmd

import (
	"context"
	commonJetstream "event-ticket/common/jetstream"
	inboundCron "event-ticket/inbound/cron"
	inboundHttp "event-ticket/inbound/http"
	"event-ticket/outbound/auth"
	"event-ticket/outbound/payment"
	"event-ticket/outbound/store"
	"fmt"
	"github.com/go-playground/validator/v10"
	"log"
	"log/slog"
	"net/http"
	"os"
	"runtime/pprof"
	"time"
)

func runHttpServerCmd(ctx context.Context) {
	cfg := newCfg("env")

	if cfg.GetString("env") == "dev" {
		cpu, err := os.Create("http-cpu.prof")
		if err != nil {
			log.Fatalf("could not create CPU profile: %v", err)
		}
		defer cpu.Close()

		err = pprof.StartCPUProfile(cpu)
		if err != nil {
			log.Fatalf("could not start CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()

		mem, err := os.Create("http-mem.prof")
		if err != nil {
			log.Fatalf("could not create memory profile: %v", err)
		}
		defer mem.Close()

		err = pprof.WriteHeapProfile(mem)
		if err != nil {
			log.Fatalf("could not write memory profile: %v", err)
		}
		defer mem.Close()
	}

	validate := validator.New()

	db := newDb(cfg)
	defer db.Close()

	cacheClient := newRedis(cfg)
	defer cacheClient.Close()

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	commonJetstream.CreateQueueStream(ctx, js)

	querier := store.New(db)

	gateway := &payment.HttpGateway{Cfg: cfg}
	gateway.Init()

	reauth := &auth.HttpAuth{Cfg: cfg}
	reauth.Init()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		slog.DebugContext(r.Context(), "health check")
		w.WriteHeader(http.StatusOK)
	})

	timeoutMiddleware := inboundHttp.TimeoutMiddleware(20 * time.Second)

	inboundHttp.RegisterAvailabilityHttp(mux, querier)
	inboundHttp.RegisterHoldHttp(mux, cfg, db, querier, validate)
	inboundHttp.RegisterOrderHttp(mux, cfg, db, querier, cacheClient, js, validate)
	inboundHttp.RegisterPaymentHttp(mux, js, validate)
	inboundHttp.RegisterTicketHttp(mux, querier)
	inboundHttp.RegisterValidateHttp(mux, db, querier, cacheClient, validate)
	inboundHttp.RegisterRefundHttp(mux, cfg, querier, js, validate, gateway, reauth)
	inboundHttp.RegisterScanLinkHttp(mux, querier, cacheClient, validate)

	holdSweepCron := inboundCron.HoldSweepCron{
		Cfg:     cfg,
		Db:      db,
		Querier: querier,
		TimeNow: time.Now,
	}

	overdueCron := inboundCron.OverdueCron{
		Cfg:       cfg,
		Db:        db,
		Querier:   querier,
		Publisher: js,
		TimeNow:   time.Now,
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.GetInt("server.port")),
		Handler:           timeoutMiddleware(inboundHttp.CorsMiddleware(mux)),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalln("unable to start server", err)
		}
	}()

	slog.Info("http server started")

	go func() {
		holdSweepCron.Start(ctx)
	}()
	go func() {
		overdueCron.Start(ctx)
	}()

	<-ctx.Done()

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		log.Fatalln("unable to shutdown server", err)
	}

	slog.Info("http server stopped")
}
