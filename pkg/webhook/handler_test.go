package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tumaini/pesaflow/pkg/store/memory"
)

func confirmationBody(t *testing.T, req ConfirmationRequest) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestHandleConfirmation_StoresRow(t *testing.T) {
	st := memory.New()
	defer st.Close()
	h := NewHandler(st, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/confirmation", confirmationBody(t, ConfirmationRequest{
		TransactionType: "Pay Bill",
		TransID:         "RKTQDM7W6S",
		TransTime:       "20240101090000",
		TransAmount:     "100",
		MSISDN:          "254700000001",
		FirstName:       "John",
	}))
	w := httptest.NewRecorder()

	h.HandleConfirmation(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, 0, result.ResultCode)

	rows, err := st.TransactionsSince(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "RKTQDM7W6S", rows[0].TransactionID)
	require.Equal(t, "254700000001", rows[0].MSISDN)
}

func TestHandleConfirmation_MissingTransID(t *testing.T) {
	st := memory.New()
	defer st.Close()
	h := NewHandler(st, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/confirmation", confirmationBody(t, ConfirmationRequest{
		TransAmount: "100",
		MSISDN:      "254700000001",
	}))
	w := httptest.NewRecorder()

	h.HandleConfirmation(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	rows, err := st.TransactionsSince(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestHandleConfirmation_InvalidJSON(t *testing.T) {
	st := memory.New()
	defer st.Close()
	h := NewHandler(st, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/confirmation", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()

	h.HandleConfirmation(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleConfirmation_StoresMalformedAmountAsIs(t *testing.T) {
	st := memory.New()
	defer st.Close()
	h := NewHandler(st, zerolog.Nop())

	// Confirmation is append-only; bad amounts are the pipeline's concern.
	req := httptest.NewRequest(http.MethodPost, "/api/confirmation", confirmationBody(t, ConfirmationRequest{
		TransID:     "RKTQDM7W6S",
		TransTime:   "20240101090000",
		TransAmount: "bogus",
		MSISDN:      "254700000001",
	}))
	w := httptest.NewRecorder()

	h.HandleConfirmation(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	rows, err := st.TransactionsSince(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "bogus", rows[0].TransactionAmount)
}

func TestHandleValidation(t *testing.T) {
	tests := []struct {
		name       string
		req        ConfirmationRequest
		wantCode   int
		wantResult int
	}{
		{
			name: "well-formed row accepted",
			req: ConfirmationRequest{
				TransID:     "RKTQDM7W6S",
				TransTime:   "20240101090000",
				TransAmount: "100.50",
				MSISDN:      "254700000001",
			},
			wantCode:   http.StatusOK,
			wantResult: 0,
		},
		{
			name: "invalid amount rejected",
			req: ConfirmationRequest{
				TransID:     "RKTQDM7W6S",
				TransTime:   "20240101090000",
				TransAmount: "one hundred",
				MSISDN:      "254700000001",
			},
			wantCode:   http.StatusOK,
			wantResult: 1,
		},
		{
			name: "invalid time rejected",
			req: ConfirmationRequest{
				TransID:     "RKTQDM7W6S",
				TransTime:   "2024-01-01 09:00:00",
				TransAmount: "100",
				MSISDN:      "254700000001",
			},
			wantCode:   http.StatusOK,
			wantResult: 1,
		},
	}

	st := memory.New()
	defer st.Close()
	h := NewHandler(st, zerolog.Nop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/validation", confirmationBody(t, tt.req))
			w := httptest.NewRecorder()

			h.HandleValidation(w, req)

			require.Equal(t, tt.wantCode, w.Code)
			var result Result
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
			require.Equal(t, tt.wantResult, result.ResultCode)

			// Validation never persists anything.
			rows, err := st.TransactionsSince(context.Background(), nil)
			require.NoError(t, err)
			require.Empty(t, rows)
		})
	}
}
