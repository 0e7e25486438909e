package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"gigflow/channel"
	"gigflow/company"
	"gigflow/config"
	"gigflow/db"
	"gigflow/dispute"
	"gigflow/engagement"
	"gigflow/entitlement"
	"gigflow/escrow"
	"gigflow/gig"
	"gigflow/identity"
	"gigflow/notify"
	"gigflow/storage"
	"gigflow/submission"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	blobs, err := storage.NewDirStore(cfg.BlobDir)
	if err != nil {
		log.Fatalf("bootstrap blob store: %v", err)
	}

	logger := log.Default()

	engagementRepo := engagement.NewRepository()
	escrowRepo := escrow.NewRepository()
	channelRepo := channel.NewRepository()
	disputeRepo := dispute.NewRepository(pool)

	engagementService := engagement.NewService(pool, engagementRepo, escrowRepo, channelRepo, disputeRepo)

	signer := escrow.NewSigner(cfg.GatewaySecret)
	gateway := escrow.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayTimeout)
	escrowService := escrow.NewService(pool, escrowRepo, gateway, signer, engagementService, engagementRepo)

	entitlements := entitlement.NewPGChecker(pool)
	gigService := gig.NewService(pool, nil, entitlements)
	applicationService := gig.NewApplicationService(pool, nil, nil, engagementRepo, entitlements)
	submissionService := submission.NewService(pool, submission.NewRepository(), engagementRepo, channelRepo, blobs)
	channelService := channel.NewService(pool, channelRepo, engagementRepo)
	disputeService := dispute.NewService(disputeRepo)

	identityService := identity.NewService(identity.NewRepository(pool), cfg.JWTSecret)
	companyService := company.NewService(company.NewRepository(pool))

	notifier := notify.NewLogNotifier(logger)

	server := &Server{
		identityService:    identityService,
		companyService:     companyService,
		gigService:         gigService,
		applicationService: applicationService,
		engagementService:  engagementService,
		escrowService:      escrowService,
		submissionService:  submissionService,
		channelService:     channelService,
		disputeService:     disputeService,
		escrowWebhook:      escrow.NewWebhookHandler(signer, escrowService, logger),
		logger:             logger,
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.routes(),
	}

	reconciler := escrow.NewReconciler(pool, escrowRepo, cfg.ReconcileEvery, cfg.ReconcileMaxAge, logger)
	closer := channel.NewCloser(pool, channelRepo, notifier, cfg.CloserInterval, logger)
	outboxWorker := notify.NewWorker(pool, notificationHandler(notifier), cfg.OutboxInterval, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		reconciler.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		closer.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		outboxWorker.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		logger.Printf("api listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("api terminated: %v", err)
	}
}

// notificationHandler fans an outbox message out to the parties named in its
// payload. Messages that name nobody are acknowledged so they never clog the
// queue.
func notificationHandler(notifier notify.Notifier) notify.Handler {
	return func(ctx context.Context, msg notify.Message) error {
		for _, key := range []string{"candidate_id", "company_id"} {
			userID, ok := msg.Payload[key].(string)
			if !ok || userID == "" {
				continue
			}
			if err := notifier.Notify(ctx, userID, msg.Topic, msg.Payload); err != nil {
				return err
			}
		}
		return nil
	}
}
