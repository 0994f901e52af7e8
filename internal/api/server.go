package api

import (
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"nvrd/internal/auth"
	"nvrd/internal/config"
	"nvrd/internal/detect"
	"nvrd/internal/ingest"
	"nvrd/internal/logging"
	"nvrd/internal/router"
	"nvrd/internal/segment"
	"nvrd/internal/store"
	"nvrd/internal/whep"
)

// webhookBurst tracks one camera path's run of webhook-triggered motion
// calls so repeat calls within webhookExtendWindow extend a single interval
// instead of opening a new one each time (spec.md §6).
type webhookBurst struct {
	startAt time.Time
	lastAt  time.Time
}

// Server holds every collaborator the control API dispatches into. It owns
// no lifecycle of its own beyond request handling; component goroutines are
// started and stopped by cmd/nvrd.
type Server struct {
	cfg    *config.Config
	repo   *store.Store
	issuer *auth.Issuer
	logger *logging.Logger

	routerSync   *router.Sync
	routerClient *router.Client
	testConn     *router.TestConnectionBroker
	ingestReg    *ingest.Registry
	detectReg    *detect.Registry
	timeline     *segment.Timeline
	whepBridge   *whep.Bridge

	webhookMu     sync.Mutex
	webhookBursts map[string]webhookBurst

	eventHub *eventHub

	// onWebhookInterval, if set, is invoked with the (possibly extended)
	// interval each webhook call produces, wiring the webhook into C6 the
	// same way C5 emits intervals for pixel/AI detection.
	onWebhookInterval func(detect.MotionInterval)
}

// SetWebhookIntervalHandler wires the webhook's emitted intervals into the
// event recorder; called once during startup wiring.
func (s *Server) SetWebhookIntervalHandler(fn func(detect.MotionInterval)) {
	s.onWebhookInterval = fn
}

// NewServer wires a Server over its collaborators.
func NewServer(
	cfg *config.Config,
	repo *store.Store,
	issuer *auth.Issuer,
	logger *logging.Logger,
	routerSync *router.Sync,
	routerClient *router.Client,
	testConn *router.TestConnectionBroker,
	ingestReg *ingest.Registry,
	detectReg *detect.Registry,
	timeline *segment.Timeline,
	whepBridge *whep.Bridge,
) *Server {
	return &Server{
		cfg:           cfg,
		repo:          repo,
		issuer:        issuer,
		logger:        logger,
		routerSync:    routerSync,
		routerClient:  routerClient,
		testConn:      testConn,
		ingestReg:     ingestReg,
		detectReg:     detectReg,
		timeline:      timeline,
		whepBridge:    whepBridge,
		webhookBursts: make(map[string]webhookBurst),
		eventHub:      newEventHub(),
	}
}

// NotifyMotionInterval publishes a C5-emitted interval to any live
// GET /api/system/events subscribers, ahead of C6 finishing clip assembly.
func (s *Server) NotifyMotionInterval(mi detect.MotionInterval) {
	s.publishMotionInterval(mi)
}

// NewRouter builds the gin route table per spec.md §6 "HTTP/JSON API".
// Grounded on the teacher's route grouping (`api := router.Group("/api/v1")`
// pattern generalized to spec.md's literal, version-less paths) and its
// gin-contrib/cors setup.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
	}))

	r.POST("/register", s.Register)
	r.POST("/token", s.Token)
	r.POST("/token/refresh", s.RefreshToken)
	r.GET("/users/me", AuthMiddleware(s.issuer, s.repo), s.Me)

	protected := r.Group("/api", AuthMiddleware(s.issuer, s.repo))
	{
		protected.PUT("/users/me", s.UpdateMe)
		protected.POST("/users/change-password", s.ChangePassword)
		protected.POST("/users/logout-all", s.LogoutAll)

		protected.GET("/cameras", s.ListCameras)
		protected.POST("/cameras", s.CreateCamera)
		protected.PATCH("/cameras/:id", s.UpdateCamera)
		protected.DELETE("/cameras/:id", s.DeleteCamera)
		protected.POST("/cameras/reorder", s.ReorderCameras)
		protected.POST("/cameras/test-connection", s.TestConnection)
		protected.GET("/cameras/:id/recordings", s.ListRecordings)
		protected.GET("/cameras/:id/recordings/timeline", s.RecordingsTimeline)
		protected.DELETE("/cameras/:id/recordings", s.WipeRecordings)

		protected.GET("/events", s.ListEvents)
		protected.GET("/events/summary", s.EventsSummary)
		protected.DELETE("/events/:id", s.DeleteEvent)
		protected.POST("/events/batch-delete", s.BatchDeleteEvents)

		protected.GET("/webrtc-creds", s.WebRTCCreds)
		protected.GET("/download", s.Download)

		protected.GET("/system/health", s.SystemHealth)
		protected.GET("/system/settings", s.GetSettings)
		protected.PUT("/system/settings", s.UpdateSettings)
		protected.GET("/system/events", s.SystemEvents)
	}

	// The webhook is triggered by an external device, not a logged-in user,
	// but still addressed by a camera's unguessable path slug.
	r.POST("/api/webhook/motion/:path", s.MotionWebhook)

	return r
}
