package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/aerostab/internal/aerorpc"
	"github.com/signalsfoundry/aerostab/internal/service"
	"github.com/signalsfoundry/aerostab/model"
)

// Handler handles HTTP requests for the analysis service.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// httpStatus maps an analysis error to an HTTP status through its gRPC code.
func httpStatus(err error) int {
	switch status.Code(aerorpc.ToStatusError(err)) {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

func bindRequest(c *gin.Context) (service.Request, bool) {
	var req service.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return req, false
	}
	return req, true
}

// Evaluate handles POST /v1/evaluate.
func (h *Handler) Evaluate(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}
	res, err := h.svc.Evaluate(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Derivatives handles POST /v1/derivatives. A partial run is a 200 with
// complete set to false.
func (h *Handler) Derivatives(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}
	res, err := h.svc.Derivatives(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// NeutralPoint handles POST /v1/neutral-point.
func (h *Handler) NeutralPoint(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}
	res, err := h.svc.NeutralPoint(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListVehicles handles GET /v1/vehicles.
func (h *Handler) ListVehicles(c *gin.Context) {
	res, err := h.svc.ListVehicles(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CreateVehicle handles POST /v1/vehicles. The ID is generated when absent.
func (h *Handler) CreateVehicle(c *gin.Context) {
	var v model.Vehicle
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid vehicle: %v", err)})
		return
	}
	if v.ID != "" {
		if _, err := h.svc.GetVehicle(c.Request.Context(), v.ID); err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("vehicle %q already exists", v.ID)})
			return
		}
	}
	res, err := h.svc.PutVehicle(c.Request.Context(), v)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GetVehicle handles GET /v1/vehicles/:id.
func (h *Handler) GetVehicle(c *gin.Context) {
	v, err := h.svc.GetVehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// PutVehicle handles PUT /v1/vehicles/:id.
func (h *Handler) PutVehicle(c *gin.Context) {
	var v model.Vehicle
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid vehicle: %v", err)})
		return
	}
	id := c.Param("id")
	if v.ID != "" && v.ID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("body id %q does not match path id %q", v.ID, id)})
		return
	}
	v.ID = id
	res, err := h.svc.PutVehicle(c.Request.Context(), v)
	if err != nil {
		fail(c, err)
		return
	}
	code := http.StatusOK
	if res.Created {
		code = http.StatusCreated
	}
	c.JSON(code, res)
}

// DeleteVehicle handles DELETE /v1/vehicles/:id.
func (h *Handler) DeleteVehicle(c *gin.Context) {
	if err := h.svc.DeleteVehicle(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	if err := h.svc.Ready(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
