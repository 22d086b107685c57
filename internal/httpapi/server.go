// Package httpapi exposes the scan pipeline over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/blobstore"
	"github.com/fyrsmithlabs/dispatchd/internal/invoker"
	"github.com/fyrsmithlabs/dispatchd/internal/patcher"
	"github.com/fyrsmithlabs/dispatchd/internal/scan"
	"github.com/fyrsmithlabs/dispatchd/internal/scanner"
)

// deployTimeout bounds a detached patch deployment.
const deployTimeout = 15 * time.Minute

// ApprovalGate records finding verdicts.
type ApprovalGate interface {
	Approve(ctx context.Context, scanID, findingID string) error
	Reject(ctx context.Context, scanID, findingID string) error
}

// DeployRunner applies a scan's patch plan to its repository.
type DeployRunner interface {
	Run(ctx context.Context, req patcher.DeployRequest) (*patcher.ApplyResult, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server wires the pipeline behind the public routes.
type Server struct {
	echo     *echo.Echo
	store    blobstore.Store
	invoker  invoker.Invoker
	gate     ApprovalGate
	deployer DeployRunner
	logger   *zap.Logger
	config   *Config
	wg       sync.WaitGroup
}

// NewServer creates the HTTP server. deployer may be nil, in which case
// POST /apply-patches reports patching as unconfigured.
func NewServer(store blobstore.Store, inv invoker.Invoker, gate ApprovalGate, deployer DeployRunner, logger *zap.Logger, cfg *Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if inv == nil {
		return nil, fmt.Errorf("invoker cannot be nil")
	}
	if gate == nil {
		return nil, fmt.Errorf("approval gate cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		store:    store,
		invoker:  inv,
		gate:     gate,
		deployer: deployer,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/scan", s.handleScan)
	s.echo.GET("/scan/:scan_id", s.handleScanResult)
	s.echo.POST("/approve-finding", s.handleApproveFinding)
	s.echo.POST("/reject-finding", s.handleRejectFinding)
	s.echo.POST("/apply-patches", s.handleApplyPatches)
}

// ScanRequest is the request body for POST /scan.
type ScanRequest struct {
	RepoURL string `json:"repo_url"`
	Branch  string `json:"branch"`
}

// ScanResponse is the response body for POST /scan.
type ScanResponse struct {
	ScanID  string `json:"scan_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// FindingRequest is the request body for the approve and reject routes.
type FindingRequest struct {
	ScanID    string `json:"scan_id"`
	FindingID string `json:"finding_id"`
}

// StatusResponse is a bare status acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}

// ProcessingResponse is returned while a scan document is not yet written.
type ProcessingResponse struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{Status: "healthy"})
}

// handleScan generates a scan id and triggers the scanner asynchronously.
// Clients poll GET /scan/{scan_id} for the result.
func (s *Server) handleScan(c echo.Context) error {
	var req ScanRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid scan request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RepoURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repo_url is required")
	}

	scanID := scan.NewScanID()
	err := s.invoker.InvokeScanner(c.Request().Context(), scanner.Request{
		RepoURL: req.RepoURL,
		Branch:  req.Branch,
		ScanID:  scanID,
	})
	if err != nil {
		s.logger.Error("scanner trigger failed", zap.String("scan_id", scanID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Scanner error: %v", err))
	}

	return c.JSON(http.StatusOK, ScanResponse{
		ScanID:  scanID,
		Status:  "processing",
		Message: fmt.Sprintf("Scan started. Poll /scan/%s for results.", scanID),
	})
}

// handleScanResult returns the stored scan document. A missing document is
// not an error while a scan may still be running: it answers 202.
func (s *Server) handleScanResult(c echo.Context) error {
	scanID := c.Param("scan_id")

	data, err := s.store.Get(c.Request().Context(), scan.Key(scanID))
	if errors.Is(err, blobstore.ErrNotFound) {
		return c.JSON(http.StatusAccepted, ProcessingResponse{ScanID: scanID, Status: "processing"})
	}
	if err != nil {
		s.logger.Error("scan result lookup failed", zap.String("scan_id", scanID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load scan result")
	}

	return c.JSONBlob(http.StatusOK, data)
}

func (s *Server) handleApproveFinding(c echo.Context) error {
	return s.handleVerdict(c, s.gate.Approve)
}

func (s *Server) handleRejectFinding(c echo.Context) error {
	return s.handleVerdict(c, s.gate.Reject)
}

func (s *Server) handleVerdict(c echo.Context, verdict func(ctx context.Context, scanID, findingID string) error) error {
	var req FindingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ScanID == "" || req.FindingID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scan_id and finding_id are required")
	}

	err := verdict(c.Request().Context(), req.ScanID, req.FindingID)
	if errors.Is(err, blobstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("scan %s not found", req.ScanID))
	}
	if err != nil {
		s.logger.Error("verdict failed",
			zap.String("scan_id", req.ScanID),
			zap.String("finding_id", req.FindingID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record verdict")
	}

	return c.JSON(http.StatusOK, StatusResponse{Status: "success"})
}

// ApplyPatchesRequest is the request body for POST /apply-patches.
type ApplyPatchesRequest struct {
	ScanID  string `json:"scan_id"`
	RepoURL string `json:"repo_url"`
	Branch  string `json:"branch"`
}

// handleApplyPatches triggers the deployer asynchronously. The outcome lands
// in the scan document and the patch report blob.
func (s *Server) handleApplyPatches(c echo.Context) error {
	var req ApplyPatchesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ScanID == "" || req.RepoURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scan_id and repo_url are required")
	}
	if s.deployer == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "patch deployment is not configured")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), deployTimeout)
		defer cancel()

		result, err := s.deployer.Run(ctx, patcher.DeployRequest{
			ScanID:  req.ScanID,
			RepoURL: req.RepoURL,
			Branch:  req.Branch,
		})
		if err != nil {
			s.logger.Error("patch deployment failed", zap.String("scan_id", req.ScanID), zap.Error(err))
			return
		}
		s.logger.Info("patch deployment finished",
			zap.String("scan_id", req.ScanID),
			zap.String("branch", result.Branch),
			zap.Int("patched_files", result.PatchedFiles))
	}()

	return c.JSON(http.StatusOK, StatusResponse{Status: "initiated"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops the listener and waits for detached deployments.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	err := s.echo.Shutdown(ctx)
	s.wg.Wait()
	return err
}
