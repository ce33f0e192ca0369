package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type failureDetail struct {
	ReservationID int64  `json:"reservation_id"`
	Error         string `json:"error"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Error: message, Code: "VALIDATION_ERROR"})
}

// StatusOf maps the error taxonomy onto HTTP statuses.
func StatusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// respondError writes the error body. Infrastructure errors are logged and
// replaced with a generic message.
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	status := StatusOf(err)
	body := Response{Error: err.Error(), Code: domain.Code(err)}

	var partial *domain.PartialFailureError
	var taken *domain.SeatsTakenError
	var missing *domain.SeatsNotFoundError
	switch {
	case errors.As(err, &partial):
		details := make([]failureDetail, 0, len(partial.Failures))
		for _, f := range partial.Failures {
			details = append(details, failureDetail{ReservationID: f.ReservationID, Error: f.Err.Error()})
		}
		body.Details = details
	case errors.As(err, &taken):
		body.Details = gin.H{"seat_ids": taken.SeatIDs}
	case errors.As(err, &missing):
		body.Details = gin.H{"seat_ids": missing.SeatIDs}
	}

	if status == http.StatusInternalServerError {
		log.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"path":       c.FullPath(),
		}).WithError(err).Error("request failed")
		if domain.KindOf(err) == domain.KindInfrastructure {
			body.Error = "internal server error"
		}
	}
	c.JSON(status, body)
}
