package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/rl1809/kitties/internal/core/domain"
)

const (
	accountHeader       = "X-Account"
	authorizationHeader = "Authorization"
	macaroonScheme      = "Macaroon "
)

type HTTPHandler struct {
	registry KittyRegistry
}

type createKittyBody struct {
	DNA   string `json:"dna"`
	Price uint32 `json:"price"`
}

type transferKittyBody struct {
	To string `json:"to"`
}

type KittyListResponse struct {
	Owner   domain.AccountID `json:"owner"`
	Kitties []domain.DNA     `json:"kitties"`
}

type StatsResponse struct {
	Count uint64 `json:"count"`
}

func NewHTTPHandler(registry KittyRegistry) *HTTPHandler {
	return &HTTPHandler{registry: registry}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.POST("/kitties", h.CreateKitty)
	api.GET("/kitties/:dna", h.GetKitty)
	api.POST("/kitties/:dna/transfer", h.TransferKitty)
	api.GET("/owners/:owner/kitties", h.ListKitties)
	api.GET("/stats", h.Stats)
}

func (h *HTTPHandler) CreateKitty(c *gin.Context) {
	var req createKittyBody
	if err := c.ShouldBindJSON(&req); err != nil {
		SendAPIResponse(c, http.StatusBadRequest, false, "invalid request body", nil)
		return
	}
	dna, err := parseDNA(req.DNA)
	if err != nil {
		h.sendError(c, err)
		return
	}

	if err := h.registry.CreateKitty(c.Request.Context(), httpOrigin(c), dna, req.Price); err != nil {
		h.sendError(c, err)
		return
	}

	kitty, err := h.registry.GetKitty(c.Request.Context(), dna)
	if err != nil {
		h.sendError(c, err)
		return
	}
	SendAPIResponse(c, http.StatusCreated, true, "kitty created", kitty)
}

func (h *HTTPHandler) TransferKitty(c *gin.Context) {
	dna, err := parseDNA(c.Param("dna"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	var req transferKittyBody
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.To) == "" {
		SendAPIResponse(c, http.StatusBadRequest, false, "recipient is required", nil)
		return
	}

	to := domain.AccountID(req.To)
	if err := h.registry.TransferKitty(c.Request.Context(), httpOrigin(c), dna, to); err != nil {
		h.sendError(c, err)
		return
	}
	SendAPIResponse(c, http.StatusOK, true, "kitty transferred", gin.H{"dna": dna, "to": to})
}

func (h *HTTPHandler) GetKitty(c *gin.Context) {
	dna, err := parseDNA(c.Param("dna"))
	if err != nil {
		h.sendError(c, err)
		return
	}

	kitty, err := h.registry.GetKitty(c.Request.Context(), dna)
	if err != nil {
		h.sendError(c, err)
		return
	}
	SendAPIResponse(c, http.StatusOK, true, "kitty fetched", kitty)
}

func (h *HTTPHandler) ListKitties(c *gin.Context) {
	owner := domain.AccountID(c.Param("owner"))

	kitties, err := h.registry.KittiesOf(c.Request.Context(), owner)
	if err != nil {
		h.sendError(c, err)
		return
	}
	SendAPIResponse(c, http.StatusOK, true, "kitties fetched", KittyListResponse{
		Owner:   owner,
		Kitties: kitties,
	})
}

func (h *HTTPHandler) Stats(c *gin.Context) {
	count, err := h.registry.KittyCount(c.Request.Context())
	if err != nil {
		h.sendError(c, err)
		return
	}
	SendAPIResponse(c, http.StatusOK, true, "stats fetched", StatsResponse{Count: count})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) sendError(c *gin.Context, err error) {
	status, message := classify(err)
	if status.http == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	SendAPIResponse(c, status.http, false, message, nil)
}

func httpOrigin(c *gin.Context) domain.Origin {
	origin := domain.Origin{Account: domain.AccountID(c.GetHeader(accountHeader))}
	if authz := c.GetHeader(authorizationHeader); strings.HasPrefix(authz, macaroonScheme) {
		origin.Token = strings.TrimSpace(strings.TrimPrefix(authz, macaroonScheme))
	}
	return origin
}
