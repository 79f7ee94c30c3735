package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowmatic/harvester/models"
)

// Scraper runs one scrape request to completion.
type Scraper interface {
	Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResult, error)
}

// Scrape returns a handler for POST /api/v1/scrape.
//
// The orchestrator returns an error only for invalid input; fetch failures
// come back as a result with Success false, which maps to an HTTP status by
// error code.
func Scrape(o Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResult{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		result, err := o.Scrape(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		if !result.Success {
			c.JSON(statusForCode(result.Error.Code), result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// respondError maps an error to the correct HTTP status code and writes a
// structured JSON error response.
func respondError(c *gin.Context, err error) {
	scrapeErr, ok := err.(*models.ScrapeError)
	if !ok {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(statusForCode(scrapeErr.Code), models.ScrapeResult{
		Success: false,
		Error:   scrapeErr.ToDetail(),
	})
}

// statusForCode translates error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeBanned:
		return http.StatusBadGateway // 502
	case models.ErrCodeClientError, models.ErrCodeContentTypeMismatch:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNoProxyAvailable:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
