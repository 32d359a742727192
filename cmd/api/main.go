package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/medialib/internal/api"
	"github.com/your-org/medialib/internal/api/handlers"
	"github.com/your-org/medialib/internal/api/ws"
	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/identity"
	"github.com/your-org/medialib/internal/jobs"
	"github.com/your-org/medialib/internal/library"
	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/internal/observability"
	"github.com/your-org/medialib/internal/queue"
	"github.com/your-org/medialib/internal/storage"
	"github.com/your-org/medialib/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting media library API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Build the in-memory library from the durable store.
	index := library.NewIndex()
	resolver := identity.NewResolver(cfg.Identity, db)
	registry := library.NewRegistry()
	generator := library.NewGenerator(index, resolver, cfg.Collections)
	warmStart(db, index, resolver, registry)

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Event consumer: refresh the index from worker results and fan out to
	// WebSocket clients.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeLibraryEvents(ctx, "api-events", func(ctx context.Context, msg jetstream.Msg) error {
		var event dto.WSEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			return err
		}

		switch {
		case event.Kind == "asset_enriched" && event.AssetID != nil:
			if asset := refreshAsset(ctx, db, index, *event.AssetID); asset != nil {
				// Worker-side resolution may have created or updated
				// persons this process has never seen.
				for _, pid := range assetPersonIDs(asset) {
					syncPerson(ctx, db, resolver, pid)
				}
			}
		case event.Kind == "person_updated" && event.PersonID != nil:
			syncPerson(ctx, db, resolver, *event.PersonID)
		}

		hub.BroadcastRaw(msg.Data())
		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Batch queue: items run against the library the API already holds.
	batchQueue := jobs.NewQueue(cfg.Jobs, batchItemHandler(db, minioStore, index, resolver, registry, generator, producer))
	defer batchQueue.Close()

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:    cfg.Server.APIKey,
		Index:     index,
		Resolver:  resolver,
		Registry:  registry,
		Generator: generator,
		Jobs:      batchQueue,
		DB:        db,
		MinIO:     minioStore,
		Producer:  producer,
		Hub:       hub,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// warmStart rebuilds the in-memory library from Postgres.
func warmStart(db *storage.PostgresStore, index *library.Index, resolver *identity.Resolver, registry *library.Registry) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	persons, err := db.ListPersons(ctx)
	if err != nil {
		slog.Warn("load persons", "error", err)
	} else {
		resolver.Load(persons)
	}

	assets, err := db.ListAssets(ctx)
	if err != nil {
		slog.Warn("load assets", "error", err)
	} else {
		for _, a := range assets {
			index.Upsert(a)
		}
	}

	collections, err := db.ListCollections(ctx)
	if err != nil {
		slog.Warn("load collections", "error", err)
	} else {
		var auto []*models.Collection
		for _, c := range collections {
			if c.Type == models.CollectionTypeAuto {
				auto = append(auto, c)
			} else {
				registry.AddManual(c)
			}
		}
		registry.ReplaceAuto(auto)
	}

	slog.Info("library warm start complete",
		"assets", index.Len(),
		"persons", len(persons),
		"collections", len(collections),
	)
}

func refreshAsset(ctx context.Context, db *storage.PostgresStore, index *library.Index, id uuid.UUID) *models.MediaAsset {
	// Worker results land in Postgres before the event is published, so a
	// reload here always sees the enriched record.
	asset, err := db.GetAsset(ctx, id)
	if err != nil {
		slog.Warn("refresh asset", "asset", id, "error", err)
		return nil
	}
	if asset != nil {
		index.Upsert(asset)
	}
	return asset
}

func assetPersonIDs(asset *models.MediaAsset) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, f := range asset.Faces {
		if f.PersonID == nil {
			continue
		}
		if _, ok := seen[*f.PersonID]; ok {
			continue
		}
		seen[*f.PersonID] = struct{}{}
		ids = append(ids, *f.PersonID)
	}
	return ids
}

// syncPerson reconciles one person row from Postgres into this process's
// registry, so changes made by other processes show up without a restart.
func syncPerson(ctx context.Context, db *storage.PostgresStore, resolver *identity.Resolver, id uuid.UUID) {
	p, err := db.GetPerson(ctx, id)
	if err != nil {
		slog.Warn("sync person", "person", id, "error", err)
		return
	}
	if p != nil {
		resolver.Sync(*p)
	}
}

// batchItemHandler routes each batch item to the operation's implementation.
func batchItemHandler(db *storage.PostgresStore, minioStore *storage.MinIOStore, index *library.Index, resolver *identity.Resolver, registry *library.Registry, generator *library.Generator, producer *queue.Producer) jobs.ItemHandler {
	return func(ctx context.Context, op models.BatchOperation, assetID uuid.UUID) error {
		switch op {
		case models.BatchOpEnrich, models.BatchOpReenrich, models.BatchOpRetag:
			asset := index.Get(assetID)
			if asset == nil {
				return fmt.Errorf("asset %s not found", assetID)
			}
			var originalKey string
			for _, v := range asset.Versions {
				if v.Kind == models.VersionOriginal {
					originalKey = v.ObjectKey
					break
				}
			}
			if originalKey == "" {
				return fmt.Errorf("asset %s has no original bytes", assetID)
			}
			task := models.EnrichmentTask{
				AssetID:    asset.ID,
				Filename:   asset.Filename,
				Kind:       asset.Kind,
				ObjectKey:  originalKey,
				MimeType:   asset.Metadata.MimeType,
				UploadedAt: asset.UploadedAt,
			}
			return producer.PublishEnrichTask(ctx, assetID.String(), task)

		case models.BatchOpGenerateCollections:
			generated := generator.Generate()
			registry.ReplaceAuto(generated)
			return db.ReplaceAutoCollections(ctx, generated)

		case models.BatchOpExport:
			asset := index.Get(assetID)
			if asset == nil {
				return fmt.Errorf("asset %s not found", assetID)
			}
			doc := handlers.BuildExportDocument(resolver, registry, []*models.MediaAsset{asset}, true)
			payload, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("marshal export: %w", err)
			}
			key := storage.ExportPrefix + assetID.String() + ".json"
			if _, err := minioStore.Put(ctx, key, payload, "application/json"); err != nil {
				return fmt.Errorf("store export: %w", err)
			}
			return nil

		default:
			return fmt.Errorf("unknown operation %q", op)
		}
	}
}
