package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-pg/pg/v10"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/rbroggi/referralhub/internal/actors/argon2"
	grpcactor "github.com/rbroggi/referralhub/internal/actors/grpc"
	"github.com/rbroggi/referralhub/internal/actors/jwt"
	"github.com/rbroggi/referralhub/internal/actors/memory"
	mongoactor "github.com/rbroggi/referralhub/internal/actors/mongo"
	pgactor "github.com/rbroggi/referralhub/internal/actors/postgres"
	"github.com/rbroggi/referralhub/internal/actors/rest"
	"github.com/rbroggi/referralhub/internal/config"
	"github.com/rbroggi/referralhub/internal/core/ports"
	"github.com/rbroggi/referralhub/internal/core/usecase"
	log "github.com/sirupsen/logrus"
)

func init() {
	// Log as JSON instead of the default ASCII formatter.
	log.SetFormatter(&log.JSONFormatter{})

	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)

	log.SetLevel(log.InfoLevel)
}

// store is an opened repository with its health probe and its teardown.
type store struct {
	repository ports.Repository
	ping       grpcactor.Checker
	close      func()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*store, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		log.Warn("using the in-memory store: data is lost on restart")
		return &store{
			repository: memory.NewMemoryDB(),
			ping:       func(context.Context) error { return nil },
			close:      func() {},
		}, nil

	case config.StorePostgres:
		opts, err := pg.ParseURL(cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("error parsing postgres url: %w", err)
		}
		db := pg.Connect(opts)
		if err := db.Ping(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres does not appear to be reachable: %w", err)
		}
		repository, err := pgactor.NewPostgresDB(pgactor.PostgresDBArgs{DB: db})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &store{
			repository: repository,
			ping:       db.Ping,
			close: func() {
				if err := db.Close(); err != nil {
					log.WithError(err).Error("error closing postgres")
				}
			},
		}, nil

	default:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
		if err != nil {
			return nil, fmt.Errorf("error connecting to mongo: %w", err)
		}
		disconnect := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.WithError(err).Error("error disconnecting from mongo")
			}
		}
		if err := client.Ping(ctx, nil); err != nil {
			disconnect()
			return nil, fmt.Errorf("mongo does not appear to be reachable: %w", err)
		}
		repository, err := mongoactor.NewMongoDB(mongoactor.MongoDBArgs{
			UserCollection: client.Database(cfg.MongoDatabase).Collection(mongoactor.UserCollectionName),
		})
		if err != nil {
			disconnect()
			return nil, err
		}
		if err := repository.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, err
		}
		return &store{
			repository: repository,
			ping:       func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close:      disconnect,
		}, nil
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.ApplyLogLevel()
	if cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is mandatory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.close()

	tokens, err := jwt.NewIssuer(jwt.IssuerArgs{Secret: []byte(cfg.Auth.JWTSecret), TTL: cfg.Auth.TokenTTL})
	if err != nil {
		return err
	}
	hasher := argon2.NewHasher(argon2.Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})

	userService := usecase.NewUserService(usecase.UserServiceArgs{
		Repository:   st.repository,
		Hasher:       hasher,
		Tokens:       tokens,
		CodeAttempts: cfg.Referral.CodeAttempts,
	}, usecase.WithReferralBonus(cfg.Referral.Bonus))
	referralService := usecase.NewReferralService(usecase.ReferralServiceArgs{
		Repository:     st.repository,
		RedemptionCost: cfg.Referral.RedemptionCost,
	})

	httpServer, err := rest.NewServer(rest.ServerArgs{
		Users:     userService,
		Referrals: referralService,
		Tokens:    tokens,
		Metrics:   rest.NewMetrics("referralhub"),
	},
		rest.WithCORSOrigins(cfg.HTTP.CORSOrigins),
		rest.WithSecureCookie(cfg.Auth.CookieSecure),
		rest.WithAuthRateLimit(rate.Limit(cfg.HTTP.RateLimitRPS), cfg.HTTP.RateLimitBurst),
	)
	if err != nil {
		return err
	}

	healthService, err := grpcactor.NewHealthService(grpcactor.HealthServiceArgs{Checker: st.ping})
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer()
	healthService.Register(grpcServer)
	// Register reflection service on gRPC server.
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	errs := make(chan error, 2)
	go healthService.Run(ctx)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errs <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		if err := httpServer.Start(cfg.Server.HTTPAddr); err != nil {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()

	log.
		WithField("http-server-addr", cfg.Server.HTTPAddr).
		WithField("grpc-server-addr", cfg.Server.GRPCAddr).
		WithField("store", cfg.Store.Backend).
		Info("servers up or soon to be up. listening to SIGTERM, SIGINT, SIGQUIT for stoping the server")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errs:
		log.WithError(runErr).Error("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("error shutting down http server")
	}
	grpcServer.GracefulStop()

	return runErr
}

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("server terminated")
	}
}
