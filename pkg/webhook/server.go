// Package webhook is the thin HTTP surface in front of the ingestion path:
// the hub posts each device event to /webhook/inmet/{device} and the body is
// merged into that device's partition object.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/uva-clima/go-inmet/pkg/ingest"
	"github.com/uva-clima/go-inmet/pkg/rawstore"
)

// ObjectLister lets the diagnostic endpoint enumerate stored partition keys.
type ObjectLister interface {
	List(ctx context.Context) ([]string, error)
}

// Server wires the ingestion service into a gin router.
type Server struct {
	ingestor *ingest.Service
	lister   ObjectLister
	logger   zerolog.Logger
}

// NewServer creates the webhook server. lister may be nil, which disables the
// /objects listing.
func NewServer(ingestor *ingest.Service, lister ObjectLister, logger zerolog.Logger) (*Server, error) {
	if ingestor == nil {
		return nil, errors.New("ingest service cannot be nil")
	}
	return &Server{
		ingestor: ingestor,
		lister:   lister,
		logger:   logger.With().Str("component", "WebhookServer").Logger(),
	}, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/webhook/inmet/:device", s.handleEvent)

	if s.lister != nil {
		router.GET("/objects", s.handleListObjects)
	}
	return router
}

// handleEvent accepts one event body of any supported shape. The response is
// per-event: success with the object key, or a failure reason.
func (s *Server) handleEvent(c *gin.Context) {
	device := c.Param("device")
	if device == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device name required"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	result, err := s.ingestor.Ingest(c.Request.Context(), device, body, time.Now().UTC())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, rawstore.ErrSchemaDrift) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object":    result.ObjectKey,
		"outcome":   result.Outcome,
		"timestamp": result.Timestamp,
	})
}

func (s *Server) handleListObjects(c *gin.Context) {
	keys, err := s.lister.List(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list partition objects")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(keys), "objects": keys})
}
