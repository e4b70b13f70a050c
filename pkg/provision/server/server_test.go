package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	payment_memory "github.com/cloudfusionadmin/filevaults/pkg/payment/memory"
	"github.com/cloudfusionadmin/filevaults/pkg/provision"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data"
)

func setupTestServer(t *testing.T) *httptest.Server {
	coordinator := provision.NewCoordinator(
		data.NewTestDataProvider(),
		payment_memory.New(),
		provision.WithEnvConfigs(),
	)

	mux := http.NewServeMux()
	for path, handler := range NewProvisionServer(coordinator).GetHandlers() {
		mux.HandleFunc(path, handler)
	}

	testServer := httptest.NewServer(mux)
	t.Cleanup(testServer.Close)
	return testServer
}

func postProvision(t *testing.T, testServer *httptest.Server, body map[string]any) (int, map[string]any) {
	marshalled, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(testServer.URL+"/v1/provision", "application/json", bytes.NewReader(marshalled))
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp.StatusCode, parsed
}

func validRequestBody(key, username string) map[string]any {
	return map[string]any{
		"idempotencyKey":   key,
		"username":         username,
		"email":            username + "@example.com",
		"plan":             "standard",
		"credentialRef":    "cred_" + username,
		"paymentMethodRef": "pm_" + username,
	}
}

func TestServer_Provision(t *testing.T) {
	testServer := setupTestServer(t)

	statusCode, body := postProvision(t, testServer, validRequestBody("key1", "alice"))
	assert.Equal(t, http.StatusOK, statusCode)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["accountId"])
	assert.Equal(t, "active", body["status"])

	// Replays return the same outcome
	statusCode, replayed := postProvision(t, testServer, validRequestBody("key1", "alice"))
	assert.Equal(t, http.StatusOK, statusCode)
	assert.Equal(t, body["accountId"], replayed["accountId"])
}

func TestServer_ProvisionWithoutPaymentMethod(t *testing.T) {
	testServer := setupTestServer(t)

	body := validRequestBody("key1", "alice")
	delete(body, "paymentMethodRef")

	statusCode, parsed := postProvision(t, testServer, body)
	assert.Equal(t, http.StatusOK, statusCode)
	assert.Equal(t, "pending", parsed["status"])
	assert.NotEmpty(t, parsed["clientSecret"])
}

func TestServer_ProvisionValidation(t *testing.T) {
	testServer := setupTestServer(t)

	statusCode, parsed := postProvision(t, testServer, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, statusCode)
	assert.Equal(t, false, parsed["success"])

	resp, err := http.Get(testServer.URL + "/v1/provision")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ProvisionConflict(t *testing.T) {
	testServer := setupTestServer(t)

	statusCode, _ := postProvision(t, testServer, validRequestBody("key1", "alice"))
	require.Equal(t, http.StatusOK, statusCode)

	statusCode, parsed := postProvision(t, testServer, validRequestBody("key1", "bob"))
	assert.Equal(t, http.StatusConflict, statusCode)
	assert.Equal(t, false, parsed["success"])
}

func TestServer_GetStatus(t *testing.T) {
	testServer := setupTestServer(t)

	resp, err := http.Get(testServer.URL + "/v1/provisionStatus?key=missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	statusCode, _ := postProvision(t, testServer, validRequestBody("key1", "alice"))
	require.Equal(t, http.StatusOK, statusCode)

	resp, err = http.Get(testServer.URL + "/v1/provisionStatus?key=key1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, "active", parsed["status"])

	resp, err = http.Get(testServer.URL + "/v1/provisionStatus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
