// Package api exposes campaigns and bids over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo"
	"github.com/labstack/gommon/log"

	"bidding/internal/bidding"
	"bidding/internal/campaign"
	"bidding/internal/events"
	"bidding/internal/metrics"
)

// RequestIDHeader is read from bid requests and echoed back.
const RequestIDHeader = "X-Request-Id"

// Bidder places bids.
type Bidder interface {
	TryToBid(ctx context.Context, keywords []string) (bidding.Placement, error)
}

// CampaignParam is the body of POST /campaigns.
type CampaignParam struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Budget   float64  `json:"budget"`
}

// BidParam is the body of POST /bids. Both fields are required.
type BidParam struct {
	BidID    *int64   `json:"bidId"`
	Keywords []string `json:"keywords"`
}

// BidResult is returned for a won bid.
type BidResult struct {
	BidID     int64   `json:"bidId"`
	BidAmount float64 `json:"bidAmount"`
}

// Server wires the handlers onto an echo instance.
type Server struct {
	echo      *echo.Echo
	store     campaign.Store
	bidder    Bidder
	publisher events.Publisher
	logger    *log.Logger
	now       func() time.Time
}

// New builds the API. A nil publisher disables bid events.
func New(store campaign.Store, bidder Bidder, publisher events.Publisher, logger *log.Logger) *Server {
	if publisher == nil {
		publisher = events.Nop{}
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger

	s := &Server{
		echo:      e,
		store:     store,
		bidder:    bidder,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}

	e.Use(requestID)

	e.POST("/campaigns", s.createCampaign)
	e.GET("/campaigns", s.listCampaigns)
	e.GET("/campaigns/:id", s.getCampaign)
	e.POST("/bids", s.createBid)

	return s
}

// Handler returns the server as a plain http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set("request_id", id)
		c.Response().Header().Set(RequestIDHeader, id)

		return next(c)
	}
}

func requestIDOf(c echo.Context) string {
	id, _ := c.Get("request_id").(string)
	return id
}

func (s *Server) createCampaign(c echo.Context) error {
	var p CampaignParam
	if err := c.Bind(&p); err != nil {
		return err
	}

	created, err := s.store.Create(c.Request().Context(), campaign.New(p.Name, p.Keywords, p.Budget))
	if errors.Is(err, campaign.ErrInvalidCampaign) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err != nil {
		return fmt.Errorf("creating campaign: %w", err)
	}

	metrics.CampaignsCreated.Inc()
	s.logger.Infof("created campaign %d %q", created.ID, created.Name)

	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("/campaigns/%d", created.ID))

	return c.JSON(http.StatusCreated, created)
}

func (s *Server) listCampaigns(c echo.Context) error {
	all, err := s.store.List(c.Request().Context())
	if err != nil {
		return fmt.Errorf("listing campaigns: %w", err)
	}

	return c.JSON(http.StatusOK, all)
}

func (s *Server) getCampaign(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, campaign.ErrNotFound.Error())
	}

	found, err := s.store.Get(c.Request().Context(), id)
	if errors.Is(err, campaign.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	if err != nil {
		return fmt.Errorf("loading campaign %d: %w", id, err)
	}

	return c.JSON(http.StatusOK, found)
}

func (s *Server) createBid(c echo.Context) error {
	var p BidParam
	if err := c.Bind(&p); err != nil {
		metrics.BidsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return err
	}

	if p.BidID == nil || p.Keywords == nil {
		metrics.BidsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "bidId and keywords are required")
	}

	ctx := c.Request().Context()
	reqID := requestIDOf(c)

	start := s.now()
	placement, err := s.bidder.TryToBid(ctx, p.Keywords)
	metrics.BidLatency.Observe(s.now().Sub(start).Seconds())

	switch {
	case err == nil:
	case errors.Is(err, bidding.ErrNoCampaign):
		metrics.BidsTotal.WithLabelValues(metrics.OutcomeNoBid).Inc()
		s.logger.Debugf("bid %d [%s]: no campaign available", *p.BidID, reqID)

		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, bidding.ErrTimeout):
		metrics.BidsTotal.WithLabelValues(metrics.OutcomeTimeout).Inc()
		s.logger.Infof("bid %d [%s]: cancelling bid due to timeout", *p.BidID, reqID)

		return c.NoContent(http.StatusNoContent)
	default:
		metrics.BidsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		s.logger.Warnf("bid %d [%s]: placing bid: %v", *p.BidID, reqID, err)

		return c.NoContent(http.StatusNoContent)
	}

	metrics.BidsTotal.WithLabelValues(metrics.OutcomeWon).Inc()
	metrics.SpendingTotal.Add(placement.Amount)

	event := events.BidEvent{
		RequestID:  reqID,
		BidID:      *p.BidID,
		CampaignID: placement.CampaignID,
		Amount:     placement.Amount,
		PlacedAt:   s.now(),
	}
	if err := s.publisher.PublishBid(ctx, event); err != nil {
		metrics.EventPublishFailures.Inc()
		s.logger.Warnf("bid %d [%s]: %v", *p.BidID, reqID, err)
	}

	return c.JSON(http.StatusOK, BidResult{BidID: *p.BidID, BidAmount: placement.Amount})
}
