package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/medialib/internal/queue"
	"github.com/your-org/medialib/internal/storage"
)

type SystemHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	producer *queue.Producer
}

func NewSystemHandler(db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer) *SystemHandler {
	return &SystemHandler{db: db, minio: minio, producer: producer}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz probes every backing service. Any failing check makes the whole
// endpoint report 503 so load balancers stop routing here.
func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	probes := []struct {
		name  string
		check func(context.Context) error
	}{
		{"postgres", h.db.Ping},
		{"minio", h.minio.Ping},
		{"nats", func(context.Context) error { return h.producer.Ping() }},
	}

	checks := make(map[string]string, len(probes))
	ready := true
	for _, p := range probes {
		if err := p.check(ctx); err != nil {
			checks[p.name] = err.Error()
			ready = false
			continue
		}
		checks[p.name] = "ok"
	}

	status := http.StatusOK
	label := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		label = "not ready"
	}
	c.JSON(status, gin.H{"status": label, "checks": checks})
}
