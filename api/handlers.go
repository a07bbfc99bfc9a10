package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"listing-api/models"
	"listing-api/services"
	"listing-api/utils"
)

const maxBodyBytes = 1 << 20

type ListingHandler struct {
	persist  *services.PersistListing
	update   *services.UpdateListing
	retrieve *services.RetrieveListings
	history  *services.RetrieveListingsPriceHistory
	log      *utils.Logger
}

func NewListingHandler(
	persist *services.PersistListing,
	update *services.UpdateListing,
	retrieve *services.RetrieveListings,
	history *services.RetrieveListingsPriceHistory,
	log *utils.Logger,
) *ListingHandler {
	return &ListingHandler{
		persist:  persist,
		update:   update,
		retrieve: retrieve,
		history:  history,
		log:      log,
	}
}

// POST /listings
func (h *ListingHandler) Create(c *gin.Context) {
	listing, ok := h.bindListing(c)
	if !ok {
		return
	}
	stored, err := h.persist.Perform(c.Request.Context(), listing)
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// GET /listings
func (h *ListingHandler) List(c *gin.Context) {
	listings, err := h.retrieve.Perform(c.Request.Context())
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

// PUT /listings/:id
func (h *ListingHandler) Update(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}
	listing, ok := h.bindListing(c)
	if !ok {
		return
	}
	stored, err := h.update.Perform(c.Request.Context(), id, listing)
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// GET /listings/:id/prices
func (h *ListingHandler) PriceHistory(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}
	points, err := h.history.Perform(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, points)
}

// GET /healthcheck
func (h *ListingHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// bindListing decodes the body into a loose map and validates it. On failure
// the response has already been written.
func (h *ListingHandler) bindListing(c *gin.Context) (models.Listing, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return models.Listing{}, false
		}
		respondError(c, http.StatusBadRequest, "invalid_request", "could not read body")
		return models.Listing{}, false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "body must be a JSON object")
		return models.Listing{}, false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "invalid_request", "body must hold a single JSON object")
		return models.Listing{}, false
	}

	listing, err := models.NewListing(fields)
	if err != nil {
		respondDomainError(c, h.log, err)
		return models.Listing{}, false
	}
	return listing, true
}

func listingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid_id", "listing id must be a positive integer")
		return 0, false
	}
	return id, true
}
