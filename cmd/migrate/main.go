package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoactor "github.com/rbroggi/referralhub/internal/actors/mongo"
	"github.com/rbroggi/referralhub/internal/config"
	log "github.com/sirupsen/logrus"
)

var (
	down          = flag.Bool("down", false, "run migration down")
	migrationsDir = flag.String("dir", "db/migrations", "directory holding the postgres migrations, relative to the working directory")
)

func migratePostgres(url string) error {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return err
	}
	defer db.Close()
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	source := "file:///" + wd + "/" + *migrationsDir
	log.WithField("dir", source).Info("using migrations")
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return err
	}
	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("schema already up to date")
		return nil
	}
	return err
}

// migrateMongo creates the user collection indexes and turns on change stream pre-images.
func migrateMongo(cfg config.StoreConfig) error {
	if *down {
		log.Info("nothing to migrate down on mongo")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	repository, err := mongoactor.NewMongoDB(mongoactor.MongoDBArgs{
		UserCollection: client.Database(cfg.MongoDatabase).Collection(mongoactor.UserCollectionName),
	})
	if err != nil {
		return err
	}
	if err := repository.EnsureIndexes(ctx); err != nil {
		return err
	}
	return repository.EnablePreImages(ctx)
}

func main() {
	flag.Parse()
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("error loading configuration")
	}

	switch cfg.Store.Backend {
	case config.StorePostgres:
		err = migratePostgres(cfg.Store.PostgresURL)
	case config.StoreMongo:
		err = migrateMongo(cfg.Store)
	default:
		log.WithField("store", cfg.Store.Backend).Info("store needs no migration")
	}
	if err != nil {
		log.WithError(err).WithField("store", cfg.Store.Backend).WithField("down", *down).Fatal("migration failed")
	}
	log.WithField("store", cfg.Store.Backend).WithField("down", *down).Info("migration done")
}
