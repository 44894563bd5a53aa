package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"runCrewAPI/handlers"
	"runCrewAPI/internal/notification"
	"runCrewAPI/middleware"
	"runCrewAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool              *pgxpool.Pool
	userService         *services.UserService
	groupService        *services.GroupService
	runService          *services.RunService
	challengeService    *services.ChallengeService
	runLogService       *services.RunLogService
	notificationService *services.NotificationService
	uploadService       *services.UploadService
	chatManager         *services.ChatManager
	fcmService          *notification.FCMService
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to database")

	notificationService = services.NewNotificationService(dbPool)
	userService = services.NewUserService(dbPool)
	groupService = services.NewGroupService(dbPool, notificationService)
	runService = services.NewRunService(dbPool, groupService, notificationService)
	challengeService = services.NewChallengeService(dbPool, notificationService)
	runLogService = services.NewRunLogService(dbPool, challengeService)
	chatManager = services.NewChatManager(dbPool)
	uploadService = services.NewUploadService("./assets")

	fcmService, err = notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		notificationService.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	userHandler := handlers.NewUserHandler(userService)
	groupHandler := handlers.NewGroupHandler(groupService)
	runHandler := handlers.NewRunHandler(runService)
	challengeHandler := handlers.NewChallengeHandler(challengeService)
	runLogHandler := handlers.NewRunLogHandler(runLogService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	chatHandler := handlers.NewChatHandler(chatManager, groupService, userService)
	uploadHandler := handlers.NewUploadHandler(uploadService)

	r := mux.NewRouter()

	// Websocket endpoint stays outside the rate limiter; one long-lived
	// connection, auth handled inside via the token query parameter.
	r.HandleFunc("/api/v1/groups/chat/ws/{groupID}", chatHandler.JoinChat)

	standardRouter := r.PathPrefix("/").Subrouter()

	go middleware.CleanupVisitors()

	standardRouter.Use(middleware.RateLimitMiddleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	assetsDir := "./assets"
	fs := http.FileServer(http.Dir(assetsDir))
	standardRouter.PathPrefix("/assets/").Handler(http.StripPrefix("/assets/", fs))
	log.Printf("Serving static files from %s at /assets/", assetsDir)

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "runCrew-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	// This inherits middleware from standardRouter
	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware)

	protected.HandleFunc("/user", userHandler.GetProfile).Methods("GET")
	protected.HandleFunc("/user", userHandler.UpdateProfile).Methods("PUT")
	protected.HandleFunc("/user", userHandler.DeleteAccount).Methods("DELETE")
	protected.HandleFunc("/user/change-password", userHandler.ChangePassword).Methods("PUT")
	protected.HandleFunc("/user/search", userHandler.SearchUsers).Methods("GET")

	protected.HandleFunc("/groups", groupHandler.CreateGroup).Methods("POST")
	protected.HandleFunc("/groups", groupHandler.ListMyGroups).Methods("GET")
	protected.HandleFunc("/groups/join/{token}", groupHandler.JoinViaInvite).Methods("POST")
	protected.HandleFunc("/groups/{groupID}", groupHandler.GetGroup).Methods("GET")
	protected.HandleFunc("/groups/{groupID}", groupHandler.UpdateGroup).Methods("PUT")
	protected.HandleFunc("/groups/{groupID}", groupHandler.DeleteGroup).Methods("DELETE")
	protected.HandleFunc("/groups/{groupID}/join", groupHandler.JoinGroup).Methods("POST")
	protected.HandleFunc("/groups/{groupID}/leave", groupHandler.LeaveGroup).Methods("POST")
	protected.HandleFunc("/groups/{groupID}/members", groupHandler.GetMembers).Methods("GET")
	protected.HandleFunc("/groups/{groupID}/invite", groupHandler.CreateInvite).Methods("POST")
	protected.HandleFunc("/groups/{groupID}/runs", runHandler.CreateRun).Methods("POST")
	protected.HandleFunc("/groups/{groupID}/runs", runHandler.ListGroupRuns).Methods("GET")
	protected.HandleFunc("/groups/{groupID}/chat/history", chatHandler.GetHistory).Methods("GET")

	protected.HandleFunc("/runs/{runID}", runHandler.GetRun).Methods("GET")
	protected.HandleFunc("/runs/{runID}", runHandler.UpdateRun).Methods("PUT")
	protected.HandleFunc("/runs/{runID}", runHandler.DeleteRun).Methods("DELETE")
	protected.HandleFunc("/runs/{runID}/attendance", runHandler.SetAttendance).Methods("PUT")
	protected.HandleFunc("/runs/{runID}/attendance", runHandler.ListAttendance).Methods("GET")
	protected.HandleFunc("/runs/{runID}/attendance/summary", runHandler.GetAttendanceSummary).Methods("GET")
	protected.HandleFunc("/attendance/{attendanceID}", runHandler.DeleteAttendance).Methods("DELETE")

	protected.HandleFunc("/run-logs", runLogHandler.LogRun).Methods("POST")
	protected.HandleFunc("/run-logs", runLogHandler.ListRuns).Methods("GET")
	protected.HandleFunc("/run-logs/stats", runLogHandler.GetStats).Methods("GET")
	protected.HandleFunc("/run-logs/{logID}", runLogHandler.DeleteRun).Methods("DELETE")

	protected.HandleFunc("/shoes", runLogHandler.CreateShoe).Methods("POST")
	protected.HandleFunc("/shoes", runLogHandler.ListShoes).Methods("GET")
	protected.HandleFunc("/shoes/{shoeID}", runLogHandler.GetShoe).Methods("GET")
	protected.HandleFunc("/shoes/{shoeID}/retire", runLogHandler.RetireShoe).Methods("POST")

	protected.HandleFunc("/challenges", challengeHandler.CreateChallenge).Methods("POST")
	protected.HandleFunc("/challenges", challengeHandler.ListChallenges).Methods("GET")
	protected.HandleFunc("/challenges/{challengeID}", challengeHandler.GetChallenge).Methods("GET")
	protected.HandleFunc("/challenges/{challengeID}/join", challengeHandler.JoinChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{challengeID}/leave", challengeHandler.LeaveChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{challengeID}/progress", challengeHandler.GetProgress).Methods("GET")
	protected.HandleFunc("/challenges/{challengeID}/leaderboard", challengeHandler.GetLeaderboard).Methods("GET")

	protected.HandleFunc("/notifications", notificationHandler.ListNotifications).Methods("GET")
	protected.HandleFunc("/notifications/unread-count", notificationHandler.GetUnreadCount).Methods("GET")
	protected.HandleFunc("/notifications/read-all", notificationHandler.MarkAllAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")
	protected.HandleFunc("/notifications/{notificationID}/read", notificationHandler.MarkAsRead).Methods("PUT")

	protected.HandleFunc("/uploads/{kind}", uploadHandler.Upload).Methods("POST")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	notificationService.Stop()

	log.Println("Server shutdown complete")
}
