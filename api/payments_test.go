package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/Domenick1991/airreservations/internal/service/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestPaymentHandler_Actions(t *testing.T) {
	testCases := []struct {
		method string
		status domain.ReservationStatus
	}{
		{"ConfirmPayment", domain.ReservationStatusPaid},
		{"CancelPayment", domain.ReservationStatusCancelled},
		{"RequestRefund", domain.ReservationStatusPendingRefund},
	}

	for _, tc := range testCases {
		t.Run(tc.method, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			handler := NewPaymentHandler(mockService, silentLogger())
			c, w := newJSONContext("POST", "/payments", paymentRequest{ReservationID: 42, UserID: "u-1"}, nil)

			mockService.On(tc.method, c.Request.Context(), int64(42), "u-1").Return(testReservation(tc.status), nil)

			actions := map[string]paymentAction{
				"ConfirmPayment": mockService.ConfirmPayment,
				"CancelPayment":  mockService.CancelPayment,
				"RequestRefund":  mockService.RequestRefund,
			}
			handler.handle(actions[tc.method])(c)

			assert.Equal(t, http.StatusOK, w.Code)
			var response reservationResponse
			decode(t, w.Body.Bytes(), &response)
			assert.Equal(t, string(tc.status), response.Status)
			mockService.AssertExpectations(t)
		})
	}
}

func TestPaymentHandler_confirm_Conflicts(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"Already confirmed", domain.ErrAlreadyConfirmed, http.StatusConflict, "ALREADY_CONFIRMED"},
		{"No pending event", domain.ErrNoPendingEvent, http.StatusNotFound, "NO_PENDING_EVENT"},
		{"Other user", domain.ErrReservationNotFound, http.StatusNotFound, "RESERVATION_NOT_FOUND"},
		{"Database down", errors.New("dial tcp: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			handler := NewPaymentHandler(mockService, silentLogger())
			c, w := newJSONContext("POST", "/payments/confirm", paymentRequest{ReservationID: 42, UserID: "u-1"}, nil)

			mockService.On("ConfirmPayment", mock.Anything, int64(42), "u-1").Return(nil, tc.err)

			handler.handle(mockService.ConfirmPayment)(c)

			assert.Equal(t, tc.wantStatus, w.Code)
			resp := decode(t, w.Body.Bytes(), nil)
			assert.Equal(t, tc.wantCode, resp.Code)
		})
	}
}

func TestPaymentHandler_InfrastructureErrorIsHidden(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewPaymentHandler(mockService, silentLogger())
	c, w := newJSONContext("POST", "/payments/cancel", paymentRequest{ReservationID: 42, UserID: "u-1"}, nil)

	mockService.On("CancelPayment", mock.Anything, int64(42), "u-1").Return(nil, errors.New("pq: password authentication failed"))

	handler.handle(mockService.CancelPayment)(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w.Body.Bytes(), nil).Error)
}

func TestPaymentHandler_fail(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewPaymentHandler(mockService, silentLogger())
	c, w := newJSONContext("POST", "/payments/fail", paymentFailureRequest{ReservationID: 42, UserID: "u-1", Reason: "CARD_DECLINED"}, nil)

	mockService.On("FailPayment", c.Request.Context(), booking.PaymentFailure{
		ReservationID: 42, UserID: "u-1", Reason: "CARD_DECLINED",
	}).Return(testReservation(domain.ReservationStatusFailed), nil)

	handler.fail(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestPaymentHandler_fail_Duplicate(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewPaymentHandler(mockService, silentLogger())
	c, w := newJSONContext("POST", "/payments/fail", paymentFailureRequest{ReservationID: 42, UserID: "u-1"}, nil)

	mockService.On("FailPayment", mock.Anything, mock.Anything).Return(nil, domain.ErrDuplicateEvent)

	handler.fail(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_EVENT", decode(t, w.Body.Bytes(), nil).Code)
}
