package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"tradelink/internal/adapter/api"
	"tradelink/internal/adapter/api/handler"
	"tradelink/internal/adapter/api/middleware"
	"tradelink/internal/adapter/api/router"
	adapterrepo "tradelink/internal/adapter/repository"
	domainrepo "tradelink/internal/domain/repository"
	"tradelink/internal/infrastructure/firebase"
	"tradelink/internal/infrastructure/ratelimit"
	"tradelink/internal/infrastructure/websocket"
	"tradelink/internal/usecase"
	"tradelink/pkg/config"
	"tradelink/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		return
	}

	ctx := context.Background()

	var (
		threadRepo  domainrepo.ThreadRepository
		userRepo    domainrepo.UserRepository
		productRepo domainrepo.ProductRepository
		verifier    middleware.TokenVerifier
	)

	if cfg.FirebaseProject != "" {
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject)
		if err != nil {
			logger.Error("Failed to create Firestore client: %v", err)
			return
		}
		defer firestoreClient.Close()

		authClient, err := firebase.NewAuthClient(ctx, cfg.FirebaseProject)
		if err != nil {
			logger.Error("Failed to create Firebase auth client: %v", err)
			return
		}

		threadRepo = adapterrepo.NewFirestoreThreadRepository(firestoreClient)
		userRepo = adapterrepo.NewFirestoreUserRepository(firestoreClient)
		productRepo = adapterrepo.NewFirestoreProductRepository(firestoreClient)
		verifier = authClient
	} else {
		logger.Warn("FIREBASE_PROJECT_ID not set, using in-memory backend with passthrough tokens")
		threadRepo = adapterrepo.NewMemoryThreadRepository()
		userRepo = adapterrepo.NewMemoryUserRepository()
		productRepo = adapterrepo.NewMemoryProductRepository()
		verifier = passthroughVerifier{}
	}

	manager := websocket.NewManager()

	limiter := ratelimit.NewRateLimiter(30, time.Minute)
	go func() {
		for range time.Tick(10 * time.Minute) {
			limiter.Cleanup(time.Hour)
		}
	}()

	chatUseCase := usecase.NewChatUseCase(threadRepo, userRepo, productRepo, manager, limiter)

	authMW := middleware.NewAuthMiddleware(verifier, time.Duration(cfg.AuthTimeoutSeconds)*time.Second)
	chatHandler := handler.NewChatHandler(chatUseCase)
	wsHandler := handler.NewWebSocketHandler(chatUseCase, manager, authMW)

	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(echomw.CORS())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	router.SetupChatRoutes(e, chatHandler, authMW)
	router.SetupWebSocketRoutes(e, wsHandler)

	logger.Info("Starting server on port %s (env=%s)", cfg.ServerPort, cfg.Environment)
	if err := e.Start(":" + cfg.ServerPort); err != nil {
		logger.Error("Server stopped: %v", err)
	}
}

// passthroughVerifier treats the presented token as the user id. Local
// development only, never selected when a Firebase project is set.
type passthroughVerifier struct{}

func (passthroughVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}
