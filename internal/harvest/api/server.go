package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alert-harvest/internal/harvest/metrics"
	"alert-harvest/internal/harvest/model"
	"alert-harvest/internal/middleware/logger"
)

// Store is the read side of the harvest collections.
type Store interface {
	ListChannels(ctx context.Context) ([]model.Channel, error)
	ListSchedules(ctx context.Context, channelID string, limit int64) ([]model.ExtractionSchedule, error)
	ListCounts(ctx context.Context, channelID string, since time.Time) ([]model.DailyAlertCount, error)
	ListRecords(ctx context.Context, channelID string, page, limit int64) ([]model.ExtractedRecord, error)
}

type Server struct {
	Log     *zap.Logger
	Stores  Store
	Metrics *metrics.Metrics
	// Months is the default trailing window for /counts.
	Months int
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.Gin(s.Log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	r.GET("/channels", s.listChannels)
	ch := r.Group("/channels/:id")
	ch.GET("/schedules", s.listSchedules) // ?limit=20
	ch.GET("/counts", s.listCounts)       // ?months=N
	ch.GET("/records", s.listRecords)     // ?page=1&limit=20
	return r
}

func (s *Server) listChannels(c *gin.Context) {
	out, err := s.Stores.ListChannels(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) listSchedules(c *gin.Context) {
	limit := boundedInt(c.DefaultQuery("limit", "20"), 20, 200)
	out, err := s.Stores.ListSchedules(c, c.Param("id"), int64(limit))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// listCounts returns the channel's daily counts. months=0 returns all of them;
// otherwise only days within that many months of today are included.
func (s *Server) listCounts(c *gin.Context) {
	months := s.Months
	if v := c.Query("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "months must be a non-negative integer"})
			return
		}
		months = n
	}

	var since time.Time
	if months > 0 {
		now := time.Now().UTC()
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, -months, 0)
	}

	out, err := s.Stores.ListCounts(c, c.Param("id"), since)
	if err != nil {
		s.fail(c, err)
		return
	}
	total := 0
	for _, row := range out {
		total += row.Count
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "months": months, "total": total})
}

func (s *Server) listRecords(c *gin.Context) {
	page := boundedInt(c.DefaultQuery("page", "1"), 1, 0)
	limit := boundedInt(c.DefaultQuery("limit", "20"), 20, 200)

	out, err := s.Stores.ListRecords(c, c.Param("id"), int64(page), int64(limit))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  out,
		"page":  page,
		"limit": limit,
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// boundedInt parses v, falling back to def when it is not positive or
// exceeds upper. An upper of zero means unbounded.
func boundedInt(v string, def, upper int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || (upper > 0 && n > upper) {
		return def
	}
	return n
}
