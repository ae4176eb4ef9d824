// Command coordinatord runs the threshold-custody coordinator: the
// guardian-facing websocket signing plane, its thin HTTP control plane, and
// the background sweeper that fails transactions past their deadline.
// Wiring follows the pack's kshinn-umbra-gateway/gateway/main.go shape —
// load config, build the dependency graph by hand, serve — generalized from
// a single reverse-proxy handler to the coordinator's three collaborators.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/arcsign/custody/internal/config"
	"github.com/arcsign/custody/internal/coordinator"
	"github.com/arcsign/custody/internal/coordinator/auth"
	"github.com/arcsign/custody/internal/coordinator/httpapi"
	"github.com/arcsign/custody/internal/coordinator/pubsub"
	"github.com/arcsign/custody/internal/coordinator/store/mongostore"
	"github.com/arcsign/custody/internal/coordinator/sweeper"
	"github.com/arcsign/custody/internal/coordinator/transport"
	"github.com/arcsign/custody/internal/obslog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	log, err := obslog.New(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		log.Fatal("mongo connect failed", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())

	st := mongostore.NewStore(mongoClient.Database(cfg.MongoDBName))
	hub := pubsub.NewHub()
	cc := coordinator.New(cfg, st, hub, log)
	authMgr := auth.NewManager([]byte(cfg.SecretKey), time.Hour)

	sw := sweeper.New(st, log, time.Duration(cfg.SigningRoundTimeoutSeconds)*time.Second)
	go sw.Run(ctx)

	mux := http.NewServeMux()
	httpapi.NewHandler(cc, authMgr, log).Routes(mux)
	mux.Handle("/v1/ws", transport.NewHandler(cc, authMgr, log))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: withCORS(cfg.CORSOrigins, mux)}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown error", zap.Error(err))
		}
	}()

	log.Info("coordinator starting", zap.String("addr", addr), zap.String("mongo_db", cfg.MongoDBName))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}

// withCORS applies spec.md §6's configurable CORS origin allowlist. An
// empty allowlist disables CORS entirely (the default, safe posture for a
// service not meant to be called from arbitrary browser origins).
func withCORS(allowedOrigins []string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return next
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
