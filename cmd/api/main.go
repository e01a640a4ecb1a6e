//	@title			Gatherly Files API
//	@version		1.0
//	@description	Avatar and cover-image offload service for the Gatherly platform.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/gatherly/files/internal/asset"
	"github.com/gatherly/files/internal/config"
	"github.com/gatherly/files/internal/db"
	"github.com/gatherly/files/internal/directory"
	"github.com/gatherly/files/internal/files"
	appMiddleware "github.com/gatherly/files/internal/middleware"

	_ "github.com/gatherly/files/docs/swagger"
)

func main() {
	cfg := config.Load()

	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	client, err := newFileClient(cfg)
	if err != nil {
		log.Fatalf("file backend init failed: %v", err)
	}

	// Wire dependencies: store/lookup → service → handler
	dir := directory.NewRepository(pool)
	store := asset.NewPGStore(pool, cfg.RootSiteID)
	purger := files.NewHTTPPurger()

	assetSvc := asset.NewService(store, client, purger, dir, cfg)
	resolver := asset.NewResolver(store, dir, cfg)
	assetHandler := asset.NewHandler(assetSvc, resolver, cfg)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(appMiddleware.SiteScope(cfg.RootSiteID))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Site-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI — available at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Public resolve endpoints — the platform calls these on every
		// avatar render, no session required.
		r.Get("/avatars/{object}/{id}/url", assetHandler.ResolveAvatar)
		r.Get("/covers/{objectDir}/{id}/url", assetHandler.ResolveCover)

		// Mutating endpoints carry the platform's forwarded session token.
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))
			r.Post("/avatars/user/{id}/capture", assetHandler.CaptureAvatar)
			r.Post("/avatars/{object}/{id}", assetHandler.UploadAvatar)
			r.Put("/avatars/{object}/{id}/crop", assetHandler.CropAvatar)
			r.Delete("/avatars/{object}/{id}", assetHandler.DeleteAvatar)
			r.Post("/covers/{objectDir}/{id}", assetHandler.UploadCover)
			r.Delete("/covers/{objectDir}/{id}", assetHandler.DeleteCover)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("server listening on :%s (env=%s, backend=%s)", cfg.Port, cfg.AppEnv, cfg.FilesBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Println("server stopped")
}

// newFileClient selects the file backend from configuration: the remote
// file-hosting service in production, or any S3-compatible store.
func newFileClient(cfg *config.Config) (files.Client, error) {
	switch cfg.FilesBackend {
	case "s3":
		return files.NewMinioClient(
			cfg.StorageEndpoint,
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			cfg.StorageBucket,
			cfg.StoragePublicBase,
			cfg.StorageUseSSL,
		)
	default:
		return files.NewFHS(
			cfg.FilesEndpoint,
			cfg.FilesUploadPath,
			cfg.FilesClientSiteID,
			cfg.FilesAccessToken,
		), nil
	}
}
