package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/johbar/tesspipe/internal/cache"
	natsconn "github.com/johbar/tesspipe/internal/cache/nats"
	"github.com/johbar/tesspipe/internal/extractor"
	"github.com/johbar/tesspipe/pkg/tesswrap"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/spf13/cobra"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the NATS micro service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.serve(cmd.Context())
		},
	}
}

func (o *rootOptions) serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	conf, log := o.conf, o.log

	if !conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if os.Getenv("GOMEMLIMIT") != "" {
		log.Info("GOMEMLIMIT", "Bytes", debug.SetMemoryLimit(-1), "MBytes", debug.SetMemoryLimit(-1)/1024/1024)
	}

	engine, err := o.newEngine()
	if err != nil {
		return err
	}
	o.checkEngine(ctx, engine)

	var tesCache cache.Cache = &cache.NopCache{}
	nc, closeNats, err := natsconn.Connect(ctx, *conf, log)
	switch {
	case err == nil:
		defer closeNats()
		store, err := cache.New(*conf, log, nc)
		if err != nil {
			if conf.FailWithoutJetstream {
				return err
			}
			log.Warn("Results will not be cached", "err", err)
		} else {
			tesCache = store
		}
	case conf.FailWithoutJetstream:
		return err
	case conf.NoHttp:
		log.Error("Fatal: NATS not connected and HTTP disabled.")
		return err
	default:
		log.Warn("Running without NATS", "err", err)
	}

	df, closePdf := o.newDocFactory()
	defer closePdf()
	ex := extractor.New(conf, engine, df, tesCache, log)
	defer ex.Close()

	if nc != nil {
		svc, err := o.startNatsService(ex, nc)
		if err != nil {
			return err
		}
		// runs before ex.Close: no request may reach a closed extractor
		defer o.stopNatsService(svc, nc)
	}

	if conf.NoHttp {
		log.Info("Service started with no HTTP endpoints. Waiting for interrupt.")
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{Addr: conf.SrvAddr, Handler: ex.Router()}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	log.Info("Service started", "address", srv.Addr)
	defer log.Info("HTTP Server stopped.")

	select {
	case err := <-errc:
		// Error starting listener
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (o *rootOptions) startNatsService(ex *extractor.Extractor, nc *nats.Conn) (micro.Service, error) {
	svc, err := ex.RegisterNatsService(nc)
	if err != nil {
		return nil, err
	}
	o.log.Info("NATS micro service started", "name", svc.Info().Name, "id", svc.Info().ID)
	return svc, nil
}

// stopNatsService stops the endpoints and waits for pending replies to be flushed.
func (o *rootOptions) stopNatsService(svc micro.Service, nc *nats.Conn) {
	if err := svc.Stop(); err != nil {
		o.log.Warn("Stopping NATS micro service failed", "err", err)
	}
	if err := nc.Flush(); err != nil {
		o.log.Warn("Flushing NATS connection failed", "err", err)
	}
	o.log.Info("NATS micro service stopped")
}

// checkEngine logs whether tesseract and the configured languages are available.
func (o *rootOptions) checkEngine(ctx context.Context, engine extractor.Engine) {
	if !engine.IsInstalled(ctx) {
		o.log.Warn("Tesseract is not available. Every request will fail.", "backend", o.conf.Backend)
		return
	}
	if v, err := engine.Version(ctx); err == nil {
		o.log.Info("Using tesseract", "backend", o.conf.Backend, "version", v)
	}
	client, ok := engine.(*tesswrap.Client)
	if !ok {
		return
	}
	if ok, reason := client.Locator.CheckLanguages(ctx, o.conf.TesseractLangs); !ok {
		o.log.Warn("Configured languages are not installed", "langs", o.conf.TesseractLangs, "reason", reason)
	}
}
