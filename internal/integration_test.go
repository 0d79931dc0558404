package internal

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"prodtrack-backend/config"
	"prodtrack-backend/internal/api"
	"prodtrack-backend/internal/db"
	"prodtrack-backend/internal/model"
	"prodtrack-backend/internal/notification"
	"prodtrack-backend/internal/scan"
	"prodtrack-backend/internal/store"
	"prodtrack-backend/internal/tracker"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

const extractedSheet = `{"scheda": 204, "mcoil": "mc-9910", "mcoil_kg": "2.450", "spessore": "0,25",
	"mcoil_larghezza": 310, "mcoil_lega": "Ottone", "mcoil_stato_fisico": "", "conferma_voce": "SI",
	"id_cliente": "GENERICO", "cliente_nome": "", "ordine_kg_richiesto": 1200, "misura": 0.25}`

// pushService records the web push deliveries it receives.
type pushService struct {
	mu       sync.Mutex
	received int
}

func (p *pushService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)
	p.mu.Lock()
	p.received++
	p.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (p *pushService) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received
}

type app struct {
	router *gin.Engine
	store  store.Store
	push   *pushService
	pushAt string
}

func newApp(t *testing.T) *app {
	gin.SetMode(gin.TestMode)

	testDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(testDB))

	cfg, err := config.Parse([]byte(`
server:
  rate_limit_per_sec: 1000
  rate_limit_burst: 1000
extraction:
  api_key: test-key
worker_pool:
  size: 2
`))
	require.NoError(t, err)

	// Fake extraction endpoint.
	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		answer, _ := json.Marshal(extractedSheet)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":`+string(answer)+`}]}}]}`)
	}))
	t.Cleanup(gemini.Close)
	cfg.Extraction.BaseURL = gemini.URL + "/"

	push := &pushService{}
	pushServer := httptest.NewServer(push)
	t.Cleanup(pushServer.Close)

	appStore := store.NewGormStore(testDB)
	ctx := context.Background()
	require.NoError(t, appStore.UpsertMachines(ctx, []model.Machine{
		{ID: "CAS", Name: "Cassonatura"},
		{ID: "IMB", Name: "Imballo"},
		{ID: "MLT", Name: "Multilama"},
		{ID: "SBN", Name: "Sbavatrice nuova"},
		{ID: "SBV", Name: "Sbavatrice vecchia"},
	}))
	require.NoError(t, appStore.UpsertPhases(ctx, []model.Phase{
		{ID: model.PhaseTSB, Name: "Taglio sbavatura"},
		{ID: model.PhaseMST, Name: "Master"},
		{ID: model.PhaseTDI, Name: "Taglio disco"},
	}))

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		Subscriber:      "ops@example.com",
		TTL:             60,
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.Queue, testDB, webpushOptions)
	pool.Start(workerCtx)

	extractor, err := scan.NewGeminiModel(ctx, cfg.Extraction)
	require.NoError(t, err)
	scans := scan.NewService(extractor, cfg.Workflow.StagingTTL)
	trackerSvc := tracker.NewService(appStore, scans, pool, cfg.Workflow.HandoffTTL)

	handler := api.NewHandler(appStore, trackerSvc, scans, webpushOptions, api.ShareOptions{QREndpoint: cfg.Server.QREndpoint})
	return &app{
		router: api.NewRouter(handler, cfg.Server),
		store:  appStore,
		push:   push,
		pushAt: pushServer.URL + "/push/sbv",
	}
}

func (a *app) call(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(api.DeviceHeader, "tablet-1")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

// upload posts a sheet photo as a multipart form.
func (a *app) upload(t *testing.T) scan.Staged {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "scheda.png")
	require.NoError(t, err)
	_, err = part.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/scans", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var staged scan.Staged
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &staged))
	return staged
}

func subscriberKeys(t *testing.T) (p256dh, auth string) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

// TestProductionLifecycle drives a sheet from the scanner through a TSB close
// with an operator-picked destination and checks the day's list afterwards.
func TestProductionLifecycle(t *testing.T) {
	a := newApp(t)

	// Operators at SBV listen for incoming work.
	p256dh, auth := subscriberKeys(t)
	code := a.call(t, http.MethodPut, "/api/subscriptions", map[string]any{
		"endpoint": a.pushAt, "p256dh": p256dh, "auth": auth,
		"subscribed_machines": []string{"SBV"},
	}, nil)
	require.Equal(t, http.StatusCreated, code)

	var selected map[string]any
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPut, "/api/selection", map[string]string{"machine_id": "MLT"}, &selected))

	var boot tracker.Bootstrap
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/api/bootstrap", nil, &boot))
	require.NotNil(t, boot.Selected)
	assert.Equal(t, "MLT", boot.Selected.ID)

	// --- Scan and stage ---
	staged := a.upload(t)
	assert.Equal(t, 204, staged.Sheet.Sheet)
	assert.Equal(t, 2, staged.Sheet.CoilKg, "leading integer of \"2.450\"")
	assert.Equal(t, 0.25, staged.Sheet.Thickness)
	assert.Equal(t, "N/D", staged.Sheet.PhysicalState)
	assert.Equal(t, "Cliente Generico", staged.Sheet.ClientName)

	// --- Start production from the staged sheet ---
	var order model.WorkOrder
	code = a.call(t, http.MethodPost, "/api/scans/"+staged.Token+"/start",
		map[string]any{"machine_id": "MLT", "phase_id": "TSB"}, &order)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, model.StatusInProduction, order.StatusID)
	orderPath := "/api/orders/" + order.ID.Format(time.RFC3339Nano)

	assert.Equal(t, http.StatusNotFound, a.call(t, http.MethodGet, "/api/scans/"+staged.Token, nil, nil), "staged sheet is consumed")

	// --- Terminate: TSB asks for a destination ---
	var pendingRes tracker.TerminateResult
	code = a.call(t, http.MethodPost, orderPath+"/terminate", map[string]any{"worked_kg": "1150 kg"}, &pendingRes)
	require.Equal(t, http.StatusAccepted, code)
	require.NotNil(t, pendingRes.Handoff)
	assert.Equal(t, model.StatusInProduction, pendingRes.Order.StatusID)
	require.Len(t, pendingRes.Handoff.Choices, 2)

	handoffPath := "/api/handoffs/" + pendingRes.Handoff.Token
	assert.Equal(t, http.StatusBadRequest, a.call(t, http.MethodPost, handoffPath+"/pick", map[string]string{"machine_id": "IMB"}, nil))

	var done tracker.TerminateResult
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPost, handoffPath+"/pick", map[string]string{"machine_id": "SBV"}, &done))
	assert.Equal(t, model.StatusTerminated, done.Order.StatusID)
	require.NotNil(t, done.FollowUp)
	assert.Equal(t, "SBV", done.FollowUp.MachineID)
	assert.Equal(t, 1150, *done.FollowUp.WorkedKg)
	assert.Equal(t, "mc-9910", done.FollowUp.CoilCode)

	assert.Equal(t, http.StatusNotFound, a.call(t, http.MethodPost, handoffPath+"/pick", map[string]string{"machine_id": "SBV"}, nil))
	assert.Equal(t, http.StatusConflict, a.call(t, http.MethodPost, orderPath+"/terminate", map[string]any{"worked_kg": 1}, nil))

	// The SBV subscriber hears about the new order.
	assert.Eventually(t, func() bool { return a.push.count() == 1 }, 5*time.Second, 20*time.Millisecond)

	// --- Day list on MLT ---
	day := order.ID.Format("2006-01-02")
	var list tracker.OrderList
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/api/machines/MLT/orders?date="+day, nil, &list))
	require.Len(t, list.Orders, 1)
	assert.Equal(t, 1150, list.TotalWorkedKg)
	assert.Equal(t, "TERMINATA", list.Orders[0].StatusName)
	assert.Equal(t, "Cliente Generico", list.Orders[0].ClientName)
	assert.Equal(t, "Taglio sbavatura", list.Orders[0].PhaseName)

	// --- The follow-up continues at SBV ---
	followPath := "/api/orders/" + done.FollowUp.ID.Format(time.RFC3339Nano)
	var started model.WorkOrder
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPost, followPath+"/start", map[string]string{"phase_id": "MST"}, &started))
	assert.Equal(t, model.StatusInProduction, started.StatusID)

	var outbound tracker.TerminateResult
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPost, followPath+"/terminate", nil, &outbound))
	assert.Equal(t, model.StatusOutbound, outbound.Order.StatusID)
	require.NotNil(t, outbound.FollowUp)
	assert.Equal(t, "IMB", outbound.FollowUp.MachineID)
	assert.Equal(t, 1200, *outbound.Order.WorkedKg, "empty entry falls back to the requested weight")

	// Reassignment moves an order without touching its status.
	var moved model.WorkOrder
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPut, "/api/orders/"+outbound.FollowUp.ID.Format(time.RFC3339Nano)+"/machine",
		map[string]string{"machine_id": "CAS"}, &moved))
	assert.Equal(t, "CAS", moved.MachineID)
	assert.Equal(t, model.StatusWaiting, moved.StatusID)
}

// TestCancelledHandoff checks that abandoning the destination pick leaves the
// order in production.
func TestCancelledHandoff(t *testing.T) {
	a := newApp(t)

	staged := a.upload(t)
	var order model.WorkOrder
	require.Equal(t, http.StatusCreated, a.call(t, http.MethodPost, "/api/scans/"+staged.Token+"/start",
		map[string]any{"machine_id": "MLT", "phase_id": "TSB", "sheet": map[string]any{"sheet": 9, "client_id": "kme", "client_name": "KME Italy"}}, &order))
	assert.Equal(t, 9, order.Sheet)
	assert.Equal(t, "kme", order.ClientID)

	var res tracker.TerminateResult
	orderPath := "/api/orders/" + order.ID.Format(time.RFC3339Nano)
	require.Equal(t, http.StatusAccepted, a.call(t, http.MethodPost, orderPath+"/terminate", map[string]any{"worked_kg": 0}, &res))
	require.Equal(t, http.StatusNoContent, a.call(t, http.MethodDelete, "/api/handoffs/"+res.Handoff.Token, nil, nil))

	stored, err := a.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProduction, stored.StatusID)
	assert.Nil(t, stored.EndedAt)

	// Terminating with the destination in the request skips the handoff.
	var direct tracker.TerminateResult
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPost, orderPath+"/terminate",
		map[string]any{"worked_kg": "0", "destination": "SBN"}, &direct))
	assert.Equal(t, 0, *direct.Order.WorkedKg)
	assert.Equal(t, "SBN", direct.FollowUp.MachineID)
	assert.Zero(t, a.push.count(), "nobody listens at SBN")
	assert.Equal(t, "kme", direct.FollowUp.ClientID)
}
