package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairlens/escrow-engine/internal/confirm"
	"github.com/fairlens/escrow-engine/internal/escrow"
	"github.com/fairlens/escrow-engine/internal/facade"
	"github.com/fairlens/escrow-engine/internal/ledger"
	"github.com/fairlens/escrow-engine/internal/metrics"
	"github.com/fairlens/escrow-engine/internal/models"
	"github.com/fairlens/escrow-engine/internal/notify"
	"github.com/fairlens/escrow-engine/internal/query"
	"github.com/fairlens/escrow-engine/internal/storage"
	"github.com/fairlens/escrow-engine/internal/txbuilder"
	"github.com/fairlens/escrow-engine/internal/wallet"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

type serverFixture struct {
	api        *httptest.Server
	ledger     *ledger.EmbeddedLedger
	government string
	contractor string
	verifier   string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	store, err := storage.NewStorage(&storage.Config{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "server_test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	machine := escrow.NewMachine(escrow.DefaultMachineConfig())
	embedded := ledger.NewEmbeddedLedger("test-net", machine)
	nodeManager := ledger.NewNodeManager(embedded, time.Minute)
	require.NoError(t, nodeManager.HealthCheck(context.Background()))

	_, govKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer := wallet.NewLocalSigner(govKey, time.Hour, nil)
	government, err := signer.Connect(context.Background())
	require.NoError(t, err)
	embedded.Fund(government, 1_000_000)

	contractorPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	verifierPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	notifier := notify.NewManager(notify.DefaultConfig())
	require.NoError(t, notifier.AddChannel(notify.NewLogChannel()))
	require.NoError(t, notifier.Start(context.Background()))
	t.Cleanup(func() { notifier.Stop() })

	registry := prometheus.NewRegistry()
	promMetrics := metrics.NewPrometheusMetrics(registry)

	escrowFacade := facade.New(facade.Options{
		Machine:  machine,
		Builder:  txbuilder.NewBuilder(embedded),
		Wallet:   signer,
		Deployer: embedded,
		State:    embedded,
		Submitter: confirm.NewSubmitter(embedded, confirm.Config{
			PollInterval: time.Millisecond,
			MaxPolls:     3,
		}),
		Store:    store,
		Notifier: notifier,
		Metrics:  promMetrics,
	})

	httpServer := NewHTTPServer(
		&Config{EnableMetrics: true, EnableHealth: true},
		escrowFacade,
		query.NewService(store),
		store,
		nodeManager,
		notifier,
		promMetrics,
		registry,
	)

	api := httptest.NewServer(httpServer.router)
	t.Cleanup(api.Close)

	return &serverFixture{
		api:        api,
		ledger:     embedded,
		government: government,
		contractor: utils.EncodeAddress(contractorPub),
		verifier:   utils.EncodeAddress(verifierPub),
	}
}

func (f *serverFixture) request(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, f.api.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, payload
}

func (f *serverFixture) deploy(t *testing.T) *models.Contract {
	t.Helper()

	resp, body := f.request(t, http.MethodPost, "/api/v1/contracts/deploy", map[string]interface{}{
		"tender_id":          "tender-2026-042",
		"government_address": f.government,
		"contractor_address": f.contractor,
		"verifier_address":   f.verifier,
		"total_amount":       50_000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var contract models.Contract
	require.NoError(t, json.Unmarshal(body, &contract))
	return &contract
}

func TestHealthEndpoints(t *testing.T) {
	f := newServerFixture(t)

	resp, body := f.request(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	resp, body = f.request(t, http.MethodGet, "/api/v1/health/detailed", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var detailed struct {
		Status     string          `json:"status"`
		Components map[string]bool `json:"components"`
	}
	require.NoError(t, json.Unmarshal(body, &detailed))
	assert.Equal(t, "healthy", detailed.Status)
	assert.True(t, detailed.Components["storage"])
	assert.True(t, detailed.Components["ledger"])
}

func TestContractEndpoints(t *testing.T) {
	f := newServerFixture(t)
	contract := f.deploy(t)

	t.Run("get by id", func(t *testing.T) {
		resp, body := f.request(t, http.MethodGet, "/api/v1/contracts/"+contract.ID, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var loaded models.Contract
		require.NoError(t, json.Unmarshal(body, &loaded))
		assert.Equal(t, "tender-2026-042", loaded.TenderID)
		assert.Equal(t, models.ContractActive, loaded.Status)
	})

	t.Run("list", func(t *testing.T) {
		resp, body := f.request(t, http.MethodGet, "/api/v1/contracts", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var listing struct {
			Total int `json:"total"`
		}
		require.NoError(t, json.Unmarshal(body, &listing))
		assert.Equal(t, 1, listing.Total)
	})

	t.Run("unknown contract maps to 404", func(t *testing.T) {
		resp, _ := f.request(t, http.MethodGet, "/api/v1/contracts/no-such", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("deployment event recorded", func(t *testing.T) {
		resp, body := f.request(t, http.MethodGet, "/api/v1/contracts/"+contract.ID+"/events", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "deployContract")
	})
}

func TestMilestoneEndpoints(t *testing.T) {
	f := newServerFixture(t)
	contract := f.deploy(t)
	base := "/api/v1/contracts/" + contract.ID

	resp, body := f.request(t, http.MethodPost, base+"/milestones", map[string]interface{}{
		"index":    0,
		"amount":   20_000,
		"due_date": time.Now().Add(90 * 24 * time.Hour).Unix(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result facade.TransactionResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, facade.ResultConfirmed, result.Status)
	assert.NotEmpty(t, result.TxID)

	t.Run("confirmed milestone is queryable", func(t *testing.T) {
		resp, body := f.request(t, http.MethodGet, base+"/milestones/0", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var milestone models.Milestone
		require.NoError(t, json.Unmarshal(body, &milestone))
		assert.Equal(t, uint64(20_000), milestone.Amount)
		assert.Equal(t, models.MilestonePending, milestone.Status)
	})

	t.Run("transaction record is queryable", func(t *testing.T) {
		resp, body := f.request(t, http.MethodGet, "/api/v1/transactions/"+result.TxID, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var record models.TransactionRecord
		require.NoError(t, json.Unmarshal(body, &record))
		assert.Equal(t, models.TransactionConfirmed, record.Status)
	})

	t.Run("duplicate index maps to 409", func(t *testing.T) {
		resp, _ := f.request(t, http.MethodPost, base+"/milestones", map[string]interface{}{
			"index":    0,
			"amount":   5000,
			"due_date": time.Now().Unix(),
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("budget excess maps to 422", func(t *testing.T) {
		resp, _ := f.request(t, http.MethodPost, base+"/milestones", map[string]interface{}{
			"index":    1,
			"amount":   40_000,
			"due_date": time.Now().Unix(),
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("malformed index maps to 400", func(t *testing.T) {
		resp, _ := f.request(t, http.MethodGet, base+"/milestones/not-a-number", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAdministrationEndpoints(t *testing.T) {
	f := newServerFixture(t)
	contract := f.deploy(t)
	base := "/api/v1/contracts/" + contract.ID

	resp, body := f.request(t, http.MethodPost, base+"/pause", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var paused models.Contract
	_, body = f.request(t, http.MethodGet, base, nil)
	require.NoError(t, json.Unmarshal(body, &paused))
	assert.Equal(t, models.ContractPaused, paused.Status)

	resp, _ = f.request(t, http.MethodPost, base+"/resume", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("terminate refunds and closes", func(t *testing.T) {
		resp, _ := f.request(t, http.MethodPost, base+"/terminate", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		_, body := f.request(t, http.MethodGet, base, nil)
		var terminated models.Contract
		require.NoError(t, json.Unmarshal(body, &terminated))
		assert.Equal(t, models.ContractTerminated, terminated.Status)
	})

	t.Run("operations on a terminated contract map to 409", func(t *testing.T) {
		resp, _ := f.request(t, http.MethodPost, base+"/pause", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestMetricsAndStats(t *testing.T) {
	f := newServerFixture(t)
	f.deploy(t)

	resp, body := f.request(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fairlens_")

	resp, body = f.request(t, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		Storage struct {
			TotalContracts int64 `json:"total_contracts"`
		} `json:"storage"`
	}
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, int64(1), stats.Storage.TotalContracts)
}

func TestPendingResolutionEndpoint(t *testing.T) {
	f := newServerFixture(t)
	contract := f.deploy(t)
	f.ledger.SetAutoConfirm(false)

	resp, body := f.request(t, http.MethodPost, "/api/v1/contracts/"+contract.ID+"/milestones", map[string]interface{}{
		"index":    0,
		"amount":   1000,
		"due_date": time.Now().Unix(),
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var result facade.TransactionResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, facade.ResultPending, result.Status)

	f.ledger.AdvanceRound()

	resp, body = f.request(t, http.MethodPost, "/api/v1/transactions/resolve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var resolution struct {
		Resolved int `json:"resolved"`
	}
	require.NoError(t, json.Unmarshal(body, &resolution))
	assert.Equal(t, 1, resolution.Resolved)
}
