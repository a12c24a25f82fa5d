package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcactor "github.com/rbroggi/referralhub/internal/actors/grpc"
	mongoactor "github.com/rbroggi/referralhub/internal/actors/mongo"
	produceractor "github.com/rbroggi/referralhub/internal/actors/pubsub/producer"
	subscriberactor "github.com/rbroggi/referralhub/internal/actors/pubsub/subscriber"
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

var grpcServerEndpoint = flag.String("grpc-server-endpoint", "localhost:50052", "gRPC health server endpoint")

// consumer is a blocking source of user change events.
type consumer interface {
	Consume(ctx context.Context) error
}

// newConsumer builds the change source of the configured store: the mongo change stream, or the debezium
// subscription for postgres.
func newConsumer(ctx context.Context, cfg *config.Config, client *pubsub.Client, handler ports.UserEventHandler) (consumer, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreMongo:
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Store.MongoURL))
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to mongo: %w", err)
		}
		disconnect := func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				log.WithError(err).Error("error disconnecting from mongo")
			}
		}
		watcher, err := mongoactor.NewChangeWatcher(mongoactor.ChangeWatcherArgs{
			UserCollection: mongoClient.Database(cfg.Store.MongoDatabase).Collection(mongoactor.UserCollectionName),
			Handler:        handler,
		})
		if err != nil {
			disconnect()
			return nil, nil, err
		}
		return watcher, disconnect, nil

	case config.StorePostgres:
		subscriber, err := subscriberactor.NewSubscriber(subscriberactor.SubscriberArgs{
			Subscription:     client.Subscription(cfg.PubSub.CDCSubscriptID),
			UserEventHandler: handler,
		})
		if err != nil {
			return nil, nil, err
		}
		return subscriber, func() {}, nil
	}
	return nil, nil, fmt.Errorf("store backend %q publishes no change events", cfg.Store.Backend)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.ApplyLogLevel()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return err
	}
	defer client.Close()

	topic := client.Topic(cfg.PubSub.PublicTopicID)
	defer topic.Stop()
	producer, err := produceractor.NewProducer(topic)
	if err != nil {
		return err
	}

	informer := usecase.NewInformer(producer)

	source, closeSource, err := newConsumer(ctx, cfg, client, informer)
	if err != nil {
		return err
	}
	defer closeSource()

	healthService, err := grpcactor.NewHealthService(grpcactor.HealthServiceArgs{Checker: func(ctx context.Context) error {
		exists, err := topic.Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("topic %q does not exist", cfg.PubSub.PublicTopicID)
		}
		return nil
	}})
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer()
	healthService.Register(grpcServer)
	// Register reflection service on gRPC server.
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", *grpcServerEndpoint)
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
	// start consumer
	go func() {
		if err := source.Consume(ctx); err != nil {
			errs <- fmt.Errorf("consumer: %w", err)
			return
		}
		errs <- nil
	}()

	log.
		WithField("grpc-server-addr", *grpcServerEndpoint).
		WithField("store", cfg.Store.Backend).
		WithField("topic", cfg.PubSub.PublicTopicID).
		Info("worker up. listening to SIGTERM, SIGINT, SIGQUIT for stoping the worker")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errs:
		if runErr == nil {
			runErr = errors.New("consumer stopped")
		}
		log.WithError(runErr).Error("worker failed, shutting down")
	}
	grpcServer.GracefulStop()

	return runErr
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.WithError(err).Fatal("worker terminated")
	}
}
