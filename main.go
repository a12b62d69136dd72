package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	intconfig "hive/internal/config"
	router "hive/internal/http"
	"hive/internal/http/handlers"
	"hive/internal/repositories"
	"hive/internal/services"
	"hive/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	env := intconfig.LoadEnv()
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}

	logger, err := utils.NewLogger(env.LogLevel, env.LogFormat)
	if err != nil {
		panic(err)
	}
	utils.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	if err := env.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	db, err := intconfig.ConnectDB(env.DBDSN)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer intconfig.CloseDB()

	users := repositories.UsersRepository{DB: db}
	roles := repositories.RolesRepository{DB: db}
	permissions := repositories.PermissionsRepository{DB: db}
	resolver := services.NewResolver(repositories.SearchRepository{DB: db},
		services.Resource{
			Store:  users,
			Schema: services.UsersSchema(),
			Pin:    services.PinRule{ID: env.PinUsersID, Mode: services.ParsePinMode(env.PinUsersMode)},
		},
		services.Resource{Store: roles, Schema: services.RolesSchema()},
		services.Resource{Store: permissions, Schema: services.PermissionsSchema()},
	)
	exporter := services.ExportService{
		Resolver: resolver,
		Limits: services.ExportLimits{
			DocumentMaxRows: env.ExportPDFMaxRows,
			PayloadMaxRows:  env.ExportJSONMaxRows,
			FileMaxRows:     env.ExportFileMaxRows,
		},
	}
	auth := &services.AuthService{
		Users:   users,
		Secret:  []byte(env.JWTSecret),
		TTL:     env.JWTTTL,
		Revoked: services.NewRevocations(),
	}

	r := router.NewRouter(env, router.Deps{
		API: &handlers.API{
			Lister:      resolver,
			Exporter:    exporter,
			Auth:        auth,
			Users:       services.UsersService{Users: users, ProtectedID: env.PinUsersID},
			Roles:       services.RolesService{Roles: roles, Permissions: permissions},
			Permissions: services.PermissionsService{Permissions: permissions},
		},
		Tokens: auth,
	})

	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		// Large document exports are generated inside the request.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", env.AppAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}
