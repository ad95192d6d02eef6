package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"game-library-system/handlers"
	"game-library-system/middleware"
	"game-library-system/models"
	"game-library-system/services"
	"game-library-system/utils"
	"game-library-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		ReadTimeout: 30 * time.Second,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(&models.UserAggregate{}); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	store := services.NewGormAggregateStore(db)
	pool := services.NewFetchPool()

	// Cover mirroring is optional — without R2 credentials we keep the
	// providers' own cover URLs.
	var covers *services.CoverArtService
	if os.Getenv("R2_ACCESS_KEY_ID") != "" {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	}
	if utils.R2Enabled() {
		covers = services.NewCoverArtService(pool)
	} else {
		log.Println("⚠️  R2 credentials not set — cover-art mirroring disabled")
	}

	providers := services.ProviderRegistry{
		services.ProviderSteam: services.NewSteamProvider(
			os.Getenv("STEAM_CLIENT_ID"), os.Getenv("STEAM_CLIENT_SECRET")),
		services.ProviderXbox: services.NewXboxProvider(
			os.Getenv("XBOX_CLIENT_ID"), os.Getenv("XBOX_CLIENT_SECRET")),
		services.ProviderPSN: services.NewPSNProvider(),
		services.ProviderEpic: services.NewEpicProvider(
			os.Getenv("EPIC_CLIENT_ID"), os.Getenv("EPIC_CLIENT_SECRET")),
	}

	syncService := services.NewSyncService(store, providers, pool, covers)
	friendService := services.NewFriendService(store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refreshInterval := 6 * time.Hour
	if v := os.Getenv("LIBRARY_REFRESH_INTERVAL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			log.Fatal("invalid LIBRARY_REFRESH_INTERVAL:", err)
		}
		refreshInterval = parsed
	}
	refreshWorker := workers.NewLibraryRefreshWorker(store, syncService, refreshInterval)
	if err := refreshWorker.Start(ctx); err != nil {
		log.Fatal("failed to start library refresh worker:", err)
	}
	defer refreshWorker.Stop()

	// ✅ Setup routes — Gateway auth already enforced globally
	handlers.SetupSyncRoutes(app, syncService)
	handlers.SetupFriendRoutes(app, friendService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Printf("✅ Library refresh worker running (every %s)", refreshInterval)
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
