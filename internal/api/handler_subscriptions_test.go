package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutSubscription_Invalid(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPut, "/api/subscriptions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPut, "/api/subscriptions", `{"endpoint":"https://push.example.com/1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	endpoint := "https://push.example.com/send/abc?x=1"

	w := env.do(http.MethodPut, "/api/subscriptions",
		`{"endpoint":"`+endpoint+`","p256dh":"k","auth":"a","subscribed_machines":["IMB","MLT"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/subscriptions?endpoint="+url.QueryEscape(endpoint), "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		SubscribedMachines []string `json:"subscribed_machines"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{"IMB", "MLT"}, body.SubscribedMachines)

	w = env.do(http.MethodDelete, "/api/subscriptions", `{"endpoint":"`+endpoint+`"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/api/subscriptions?endpoint="+url.QueryEscape(endpoint), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/subscriptions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
