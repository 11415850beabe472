package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unilink.org/internal/auth"
	"unilink.org/internal/config"
	"unilink.org/internal/directory"
	"unilink.org/internal/httpapi"
	"unilink.org/internal/obs"
	"unilink.org/internal/platform"
	"unilink.org/internal/reconcile"
	"unilink.org/internal/store/pg"
	"unilink.org/internal/stream"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("validate config: %v", err)
	}

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	chat := platform.NewRESTClient(cfg.PlatformBaseURL, cfg.PlatformToken)
	registry := directory.NewRegistryClient(cfg.RegistryBaseURL, cfg.RegistryToken)
	people := directory.NewPeopleClient(cfg.DirectoryBaseURL, cfg.DirectoryToken)
	resolver := directory.NewSSOResolver(cfg.SSOBaseURL)

	events := stream.New()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	reconciler := reconcile.NewService(rootCtx, store, chat, events)

	// Re-enqueue whatever a previous run decided but never applied.
	recovered, err := reconciler.EnqueueRemainingRoles(rootCtx)
	if err != nil {
		log.Fatalf("recover role log: %v", err)
	}
	obs.Info("startup recovery", map[string]any{"members_requeued": recovered})

	process := auth.NewProcess(store,
		[]auth.Condition{
			auth.GuildMemberCondition{},
			auth.PendingRegistrationCondition{},
		},
		[]auth.Step{
			auth.IdentityStep{Resolver: resolver},
			auth.SpecificRolesStep{Mappings: store, Registry: registry},
			auth.ProgrammeRolesStep{Mappings: store, Registry: registry},
			auth.YearRolesStep{Mappings: store, Registry: registry},
			auth.TitleRolesStep{Mappings: store, Registry: registry, People: people},
			auth.DirectoryTagRolesStep{Mappings: store, People: people},
			auth.RemoveStaleRolesStep{Mappings: store},
			auth.DuplicateStep{Users: store},
			auth.FinalizeStep{},
		},
		[]auth.Task{
			auth.EnqueueRolesTask{Queue: reconciler},
			auth.NicknameTask{Client: chat, Registry: registry},
			auth.DuplicateWarningTask{Client: chat, ChannelID: cfg.WarningChannelID},
			auth.UpdateInteractionTask{Client: chat},
		},
	)

	api := httpapi.New(httpapi.Deps{
		Ready:              httpapi.ReadyProbe{DB: store.DB()},
		Version:            version,
		Users:              store,
		Platform:           chat,
		Process:            process,
		GuildID:            cfg.GuildID,
		Events:             events,
		SessionTTL:         cfg.SessionTTL,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting unilink-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	reconciler.Close()
	rootCancel()
	_ = store.Close()
	log.Println("Stopped")
}
