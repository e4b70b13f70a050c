package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudfusionadmin/filevaults/pkg/payment"
)

func setupTestClient(t *testing.T, handler http.HandlerFunc) payment.Gateway {
	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)
	return New("sk_test_123", WithBaseUrl(testServer.URL))
}

func TestClient_CreateIntent(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1500", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))

		w.Write([]byte(`{
			"id": "pi_123",
			"client_secret": "pi_123_secret",
			"amount": 1500,
			"currency": "usd",
			"status": "requires_payment_method",
			"created": 1700000000
		}`))
	})

	intent, err := client.CreateIntent(context.Background(), 1500, "usd")
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.Id)
	assert.Equal(t, "pi_123_secret", intent.ClientSecret)
	assert.EqualValues(t, 1500, intent.Amount)
	assert.Equal(t, payment.StatusCreated, intent.Status)
}

func TestClient_ConfirmDeclined(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error": {"type": "card_error", "code": "card_declined", "message": "Your card was declined."}}`))
	})

	_, err := client.ConfirmIntent(context.Background(), "pi_123")
	assert.ErrorIs(t, err, payment.ErrDeclined)
}

func TestClient_TransientFailure(t *testing.T) {
	for _, statusCode := range []int{http.StatusInternalServerError, http.StatusTooManyRequests} {
		client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(statusCode)
		})

		_, err := client.GetIntent(context.Background(), "pi_123")
		assert.ErrorIs(t, err, payment.ErrUnavailable)
	}
}

func TestClient_IntentNotFound(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "No such payment_intent"}}`))
	})

	_, err := client.GetIntent(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, payment.ErrIntentNotFound)
}

func TestClient_CancelAlreadyCanceled(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"id": "pi_123", "status": "canceled"}`))
			return
		}

		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"type": "invalid_request_error", "code": "payment_intent_unexpected_state", "message": "already canceled"}}`))
	})

	assert.NoError(t, client.CancelIntent(context.Background(), "pi_123"))
}

func TestClient_CancelCapturedIntent(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"id": "pi_123", "status": "succeeded"}`))
			return
		}

		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"type": "invalid_request_error", "code": "payment_intent_unexpected_state", "message": "already captured"}}`))
	})

	err := client.CancelIntent(context.Background(), "pi_123")
	assert.ErrorIs(t, err, payment.ErrNotCancelable)
}
