package handler

import (
	"context"
	"net/http"
	"strconv"

	"pathpatrol/internal/geocode"

	"github.com/gin-gonic/gin"
)

type Geocoder interface {
	Search(ctx context.Context, query string) []geocode.Place
	Reverse(ctx context.Context, lat, lon float64) string
}

type GeocodeHandler struct {
	geocoder Geocoder
}

func NewGeocodeHandler(geocoder Geocoder) *GeocodeHandler {
	return &GeocodeHandler{geocoder: geocoder}
}

// Handles GET /geocode/search?q=
func (h *GeocodeHandler) Search(c *gin.Context) {
	places := h.geocoder.Search(c.Request.Context(), c.Query("q"))
	c.JSON(http.StatusOK, gin.H{"results": places})
}

// Handles GET /geocode/reverse?lat=&lon=
func (h *GeocodeHandler) Reverse(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid lat and lon are required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"display_name": h.geocoder.Reverse(c.Request.Context(), lat, lon)})
}
