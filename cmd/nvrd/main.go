// Command nvrd runs the self-hosted NVR control plane: ingest supervision,
// continuous segmentation, motion/AI detection, event recording, retention
// and the HTTP/JSON control API, all wired from one process.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nvrd/internal/api"
	"nvrd/internal/auth"
	"nvrd/internal/config"
	"nvrd/internal/detect"
	"nvrd/internal/ingest"
	"nvrd/internal/logging"
	"nvrd/internal/recorder"
	"nvrd/internal/retention"
	"nvrd/internal/router"
	"nvrd/internal/segment"
	"nvrd/internal/store"
	"nvrd/internal/whep"
)

func main() {
	configPath := flag.String("config", "./config.yml", "path to the nvrd configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger := logging.New("nvrd", cfg.Logging)

	db, err := store.Open(cfg.Database)
	if err != nil {
		logger.With().WithError(err).Fatal("connect to database")
	}
	repo := store.New(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := config.NewWatcher(loader, *configPath, logger, func(reloaded *config.Config) {
		cfg.Settings = reloaded.Settings
	})
	if err != nil {
		logger.With().WithError(err).Warn("config hot-reload watcher disabled")
	} else if err := watcher.Start(ctx); err != nil {
		logger.With().WithError(err).Warn("config hot-reload watcher failed to start")
	} else {
		defer watcher.Stop()
	}

	routerClient := router.NewClient(cfg.Router.Host, cfg.Router.APIPort, "", "")
	routerSync := router.NewSync(cfg.Router.ConfigPath, routerClient, logger)
	testConnBroker := router.NewTestConnectionBroker(routerClient, logger)

	ingestRegistry := ingest.NewRegistry(ctx, routerPathChecker{client: routerClient}, logger)

	timeline := segment.NewTimeline(repo, logger)
	segmenter := segment.NewSegmenter(cfg.Storage.Root, timeline, logger)

	whepBridge := whep.New(routerCredentialRegistrar{client: routerClient})

	rec := recorder.New(cfg.Storage.Root, archiveCoverage{timeline: timeline}, nil, timeline, repo, logger)
	recordQueue := recorder.NewQueue(rec, logger)
	reconciler := recorder.NewReconciler(cfg.Storage.Root, repo, logger)

	reaper := retention.New(repo, retention.GopsutilDisk{}, cfg.Storage.Root, logger)

	issuer := auth.NewIssuer(cfg.JWT)

	// No AI classifier backend ships with nvrd (spec.md §4.5 "AI mode" names
	// an allow-set/confidence filter over a detector's output, not the
	// detector itself); classifier stays nil until one is wired in.
	var server *api.Server
	detectRegistry := detect.NewRegistry(ctx, nil, logger, func(mi detect.MotionInterval) {
		var cam store.Camera
		if err := db.First(&cam, mi.CameraID).Error; err != nil {
			return
		}
		recordQueue.Submit(cam.ID, cam.OwnerID, cam, mi)
		if server != nil {
			server.NotifyMotionInterval(mi)
		}
	})

	server = api.NewServer(cfg, repo, issuer, logger, routerSync, routerClient, testConnBroker, ingestRegistry, detectRegistry, timeline, whepBridge)
	server.SetWebhookIntervalHandler(func(mi detect.MotionInterval) {
		var cam store.Camera
		if err := db.First(&cam, mi.CameraID).Error; err != nil {
			return
		}
		recordQueue.Submit(cam.ID, cam.OwnerID, cam, mi)
	})
	server.Bootstrap()

	go startContinuousRecording(ctx, repo, segmenter, logger)
	go reaper.Run(ctx)
	go runPeriodically(ctx, 5*time.Minute, reconciler.Run)
	go runPeriodically(ctx, 30*time.Second, func() error { whepBridge.Sweep(); return nil })

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.NewRouter(),
	}

	go func() {
		logger.With().WithField("port", cfg.Server.Port).Info("nvrd listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.With().WithError(err).Fatal("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.With().Info("shutting down")
	cancel()
	ingestRegistry.StopAll()
	detectRegistry.StopAll()
	if err := routerSync.Flush(); err != nil {
		logger.With().WithError(err).Warn("final router config flush failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.With().WithError(err).Error("graceful http shutdown failed")
	}
}

// startContinuousRecording launches a segmenter worker for every camera
// with continuous_recording enabled at startup. Later toggles are handled
// by the API layer's reconcile step (C2/C3/C5), not this one-shot pass.
func startContinuousRecording(ctx context.Context, repo *store.Store, segmenter *segment.Segmenter, logger *logging.Logger) {
	var cams []store.Camera
	if err := repo.DB().Where("continuous_recording = ?", true).Find(&cams).Error; err != nil {
		logger.With().WithError(err).Error("load continuous-recording cameras at startup")
		return
	}
	for _, cam := range cams {
		if err := segmenter.Start(ctx, cam.ID, cam.RTSPUrl); err != nil {
			logger.With().WithError(err).WithField("camera_id", cam.ID).Error("start continuous segmenter")
		}
	}
}

func runPeriodically(ctx context.Context, interval time.Duration, fn func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(); err != nil {
				log.Printf("periodic task failed: %v", err)
			}
		}
	}
}

// routerPathChecker adapts router.Client to ingest.HealthChecker.
type routerPathChecker struct {
	client *router.Client
}

func (r routerPathChecker) PathReady(path string) (bool, error) {
	paths, err := r.client.ListPaths()
	if err != nil {
		return false, err
	}
	ready, ok := paths[path]
	return ok && ready, nil
}

// routerCredentialRegistrar adapts router.Client to whep.RouterRegistrar.
type routerCredentialRegistrar struct {
	client *router.Client
}

func (r routerCredentialRegistrar) RegisterCredential(user, pass string) error {
	return r.client.AddPath("whep-cred-"+user, router.PathEntry{ReadUser: user, ReadPass: pass})
}

func (r routerCredentialRegistrar) RevokeCredential(user string) error {
	return r.client.RemovePath("whep-cred-" + user)
}

// archiveCoverage adapts segment.Timeline to recorder.ArchiveSource.
type archiveCoverage struct {
	timeline *segment.Timeline
}

func (a archiveCoverage) Covers(cameraID uint, start, end time.Time) bool {
	_, _, err := a.timeline.Seek(cameraID, start)
	if err != nil {
		return false
	}
	_, _, err = a.timeline.Seek(cameraID, end)
	return err == nil
}
