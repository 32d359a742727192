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
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/detect"
	"github.com/your-org/medialib/internal/enrich"
	"github.com/your-org/medialib/internal/identity"
	"github.com/your-org/medialib/internal/library"
	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/internal/observability"
	"github.com/your-org/medialib/internal/queue"
	"github.com/your-org/medialib/internal/scoring"
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

	slog.Info("starting media enrichment worker",
		"workers", cfg.Detect.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
	)

	// Initialize ONNX Runtime
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

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

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Detection adapter
	adapter, err := detect.NewONNXAdapter(cfg.Detect)
	if err != nil {
		slog.Error("init detection adapter", "error", err)
		os.Exit(1)
	}
	defer adapter.Close()

	// Identity registry, warm-started from Postgres so worker restarts keep
	// assigning faces to the same persons.
	resolver := identity.NewResolver(cfg.Identity, db)
	loadCtx, loadCancel := context.WithTimeout(context.Background(), time.Minute)
	persons, err := db.ListPersons(loadCtx)
	loadCancel()
	if err != nil {
		slog.Warn("load persons", "error", err)
	} else {
		resolver.Load(persons)
		slog.Info("identity registry loaded", "persons", len(persons))
	}

	index := library.NewIndex()
	engine := scoring.NewEngine(cfg.Scoring)
	pipeline := enrich.NewPipeline(
		cfg.Detect, adapter, engine, resolver, index,
		db, minioStore, &eventPublisher{producer: producer},
	)

	slog.Info("enrichment pipeline initialized")

	// Create NATS consumer
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Follow person changes made by the API (renames, merges, unassigns) so
	// this registry stops assigning to retired persons without a restart.
	err = consumer.ConsumeLibraryEvents(ctx, "worker-events", func(ctx context.Context, msg jetstream.Msg) error {
		var event dto.WSEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			return err
		}
		if event.Kind != "person_updated" || event.PersonID == nil {
			return nil
		}
		p, err := db.GetPerson(ctx, *event.PersonID)
		if err != nil {
			return err
		}
		if p != nil {
			resolver.Sync(*p)
		}
		return nil
	})
	if err != nil {
		slog.Warn("start person event consumer", "error", err)
	}

	// Start consuming enrichment tasks
	err = consumer.ConsumeEnrichTasks(ctx, "enrich-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var task models.EnrichmentTask
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			slog.Error("unmarshal enrich task", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		// Degraded enrichment is finalized inside the pipeline; a returned
		// error means the asset already landed in the error state, so the
		// message is done either way.
		if _, err := pipeline.Process(ctx, &task); err != nil {
			slog.Warn("enrichment degraded", "asset", task.AssetID, "error", err)
		}
		return nil
	}, cfg.Detect.WorkerCount)
	if err != nil {
		slog.Error("start enrich consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}

// eventPublisher forwards terminal enrichment states to the library event
// stream for API-side index refresh and WebSocket fan-out.
type eventPublisher struct {
	producer *queue.Producer
}

func (e *eventPublisher) AssetEnriched(asset *models.MediaAsset) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := asset.ID
	event := dto.WSEvent{
		Kind:    "asset_enriched",
		AssetID: &id,
		Payload: map[string]interface{}{
			"filename": asset.Filename,
			"status":   asset.Status,
			"tags":     len(asset.Tags),
			"faces":    len(asset.Faces),
		},
		Timestamp: time.Now().UTC(),
	}
	if err := e.producer.PublishLibraryEvent(ctx, event.Kind, event); err != nil {
		slog.Warn("publish library event", "asset", asset.ID, "error", err)
	}
}

// getONNXLibPath returns the ONNX Runtime shared library path
// based on the operating system.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
