package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	runconfig "github.com/agentstation/enrollsync/internal/config"
	"github.com/agentstation/enrollsync/pkg/audit"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/recordstore"
	"github.com/agentstation/enrollsync/pkg/recordstore/memory"
)

const benefitsHeader = "加入者コード,企業事業所コード,企業事業所名,社員コード,資格喪失年齢到達予定日,資格取得日,資格喪失日,拠出限度額区分,定時拠出金額,休止,事業主掛金"

const identityHeader = "加入者ｺｰﾄﾞ,加入者名(漢字),加入者名(ｶﾅ),生年月日,性別,郵便番号,住所1(漢字),住所2(漢字),住所3(漢字),基礎年金番号,入社年月日,加入資格取得年月日,拠出開始年月"

func writeFeed(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	encoded, _, err := transform.String(japanese.ShiftJIS.NewEncoder(), strings.Join(lines, "\r\n")+"\r\n")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export.txt"), []byte(encoded), 0o600))
	return dir
}

// testRun is a valid run configuration over one participant.
func testRun(t *testing.T, baseURL string) *runconfig.Run {
	t.Helper()
	return &runconfig.Run{
		BaseURL:   baseURL,
		PageSize:  500,
		ChunkSize: 100,
		Feeds: runconfig.Feeds{
			Benefits: runconfig.Feed{Location: writeFeed(t,
				benefitsHeader,
				"0001,E01,テスト商事,S100,20550331,20200401,99999999,1,25000,0,5000",
			)},
			Identity: runconfig.Feed{Location: writeFeed(t,
				identityHeader,
				"0001,山田　太郎,ﾔﾏﾀﾞ ﾀﾛｳ,19900115,1,1000001,東京都,千代田区,１丁目,1234567890,20150401,20200401,202004",
			)},
		},
		Targets: []runconfig.Target{
			{Name: "ledger", App: runconfig.App{AppID: "3759", Token: "ledger-token"}, Join: "exact"},
			{Name: "registry", App: runconfig.App{AppID: "3744", Token: "registry-token"}, Join: "fuzzy"},
		},
	}
}

func testConfig() *Config {
	return &Config{Format: formatYAML, LogFormat: "json", LogOutput: "discard"}
}

// memoryStores opens one in-memory application per app id.
type memoryStores struct {
	mu   sync.Mutex
	apps map[string]*memory.App
}

func newMemoryStores() *memoryStores {
	return &memoryStores{apps: make(map[string]*memory.App)}
}

func (s *memoryStores) app(id string) *memory.App {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.apps[id]; ok {
		return a
	}
	a := memory.New(id)
	s.apps[id] = a
	return a
}

func (s *memoryStores) factory(_ *runconfig.Run, app runconfig.App) (recordstore.App, error) {
	if _, err := app.Credential(); err != nil {
		return nil, err
	}
	return s.app(app.AppID), nil
}

func newTestApp(t *testing.T, run *runconfig.Run, stores *memoryStores) *App {
	t.Helper()
	opts := []Option{WithConfig(testConfig()), WithRunConfig(run)}
	if stores != nil {
		opts = append(opts, WithStoreFactory(stores.factory))
	}
	app, err := New("1.0.0", "abc123", "2024-01-01", "test", opts...)
	require.NoError(t, err)
	return app
}

func execute(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := app.createRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNew(t *testing.T) {
	app, err := New("1.0.0", "abc123", "2024-01-01", "test", WithConfig(testConfig()))
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", app.Version())
	assert.Equal(t, "abc123", app.Commit())
	assert.Equal(t, "2024-01-01", app.Date())
	assert.Equal(t, "test", app.BuiltBy())
	assert.NotNil(t, app.Logger())
	assert.NotNil(t, app.Config())
}

func TestNewRejectsInvalidRunConfig(t *testing.T) {
	run := testRun(t, "https://example.cybozu.com")
	run.Targets = nil

	_, err := New("1.0.0", "", "", "", WithConfig(testConfig()), WithRunConfig(run))
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestRunConfigSingleton(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enrollsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: https://example.cybozu.com
feeds: {benefits: {location: a}, identity: {location: b}}
targets: [{name: ledger, app_id: "3759", credential: x, join: exact}]
`), 0o600))

	cfg := testConfig()
	cfg.ConfigFile = path
	app, err := New("1.0.0", "", "", "", WithConfig(cfg))
	require.NoError(t, err)

	const goroutines = 20
	var wg sync.WaitGroup
	runs := make([]*runconfig.Run, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			run, err := app.RunConfig()
			assert.NoError(t, err)
			runs[idx] = run
		}(i)
	}
	wg.Wait()

	for _, run := range runs {
		assert.Same(t, runs[0], run)
	}
	assert.Equal(t, 500, runs[0].PageSize)
}

func TestRunCommand(t *testing.T) {
	stores := newMemoryStores()
	app := newTestApp(t, testRun(t, "https://example.cybozu.com"), stores)

	out, err := execute(t, app, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "1 participants")

	ledger := stores.app("3759")
	require.Len(t, ledger.All(), 1)
	assert.Equal(t, "0001", ledger.All()[0].String("加入者コード"))
	assert.Empty(t, stores.app("3744").WriteCalls())
}

func TestRunCommandStageFailure(t *testing.T) {
	stores := newMemoryStores()
	stores.app("3759").FailCreate = func(int, []recordstore.Record) error {
		return errors.NewAPIError("3759", http.StatusBadRequest, "invalid record")
	}
	app := newTestApp(t, testRun(t, "https://example.cybozu.com"), stores)

	out, err := execute(t, app, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile:ledger")
	assert.Contains(t, out, "1 stages failed")
}

func TestRunCommandMissingFeed(t *testing.T) {
	run := testRun(t, "https://example.cybozu.com")
	run.Feeds.Identity.Location = t.TempDir()
	app := newTestApp(t, run, newMemoryStores())

	_, err := execute(t, app, "run")
	require.Error(t, err)
	assert.True(t, errors.IsBatchFatal(err))
}

func TestRunCommandMissingCredential(t *testing.T) {
	run := testRun(t, "https://example.cybozu.com")
	run.Targets[0].Token = ""
	run.Targets[0].CredentialEnv = "ENROLLSYNC_TEST_UNSET_TOKEN"
	app := newTestApp(t, run, newMemoryStores())

	_, err := execute(t, app, "run")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCredentialRequired)
}

func TestRunCommandAuditAndMetrics(t *testing.T) {
	dir := t.TempDir()
	run := testRun(t, "https://example.cybozu.com")
	run.AuditDB = filepath.Join(dir, "audit.db")
	run.MetricsFile = filepath.Join(dir, "enrollsync.prom")
	app := newTestApp(t, run, newMemoryStores())

	_, err := execute(t, app, "run")
	require.NoError(t, err)

	metrics, err := os.ReadFile(run.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "enrollsync_records_total")

	ledger, err := audit.OpenSQLite(run.AuditDB)
	require.NoError(t, err)
	defer ledger.Close()

	runs, err := ledger.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)

	entries, err := ledger.Entries(context.Background(), runs[0])
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, audit.ActionInsert, entries[0].Action)
	assert.Equal(t, "0001", entries[0].Key)
}

// kintoneStub answers record queries with no records and fails on writes.
func kintoneStub(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var apps []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.Equal(t, http.MethodGet, r.Method, "plan must not write") {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		assert.Equal(t, "/k/v1/records.json", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Cybozu-API-Token"))

		mu.Lock()
		apps = append(apps, r.URL.Query().Get("app"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"records": []any{}})
	}))
	t.Cleanup(server.Close)
	return server, &apps
}

func TestPlanCommandOverKintone(t *testing.T) {
	server, apps := kintoneStub(t)
	app := newTestApp(t, testRun(t, server.URL), nil)

	out, err := execute(t, app, "plan")
	require.NoError(t, err)

	assert.Contains(t, out, "target: ledger")
	assert.Contains(t, out, "0001")
	assert.Contains(t, out, "target: registry")
	assert.ElementsMatch(t, []string{"3759", "3744"}, *apps)
}

func TestPlanCommandJSON(t *testing.T) {
	stores := newMemoryStores()
	app := newTestApp(t, testRun(t, "https://example.cybozu.com"), stores)

	out, err := execute(t, app, "plan", "--format", "json")
	require.NoError(t, err)

	var report planReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Participants)
	require.Len(t, report.Targets, 2)
	assert.Equal(t, "ledger", report.Targets[0].Target)
	require.Len(t, report.Targets[0].ToInsert, 1)
	assert.Equal(t, "0001", report.Targets[0].ToInsert[0].Key)
	assert.Len(t, report.Targets[1].NotFound, 1)

	assert.Empty(t, stores.app("3759").WriteCalls())
}

func TestPlanCommandRejectsFormat(t *testing.T) {
	app := newTestApp(t, testRun(t, "https://example.cybozu.com"), newMemoryStores())

	_, err := execute(t, app, "plan", "--format", "table")
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestTranscribeCommandWithoutEvents(t *testing.T) {
	stores := newMemoryStores()
	app := newTestApp(t, testRun(t, "https://example.cybozu.com"), stores)

	out, err := execute(t, app, "transcribe")
	require.NoError(t, err)
	assert.Contains(t, out, "0 participants")
	assert.Empty(t, stores.app("3759").Calls())
}

func TestVersionCommand(t *testing.T) {
	app := newTestApp(t, testRun(t, "https://example.cybozu.com"), nil)

	out, err := execute(t, app, "version", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "enrollsync 1.0.0")
	assert.Contains(t, out, "commit:   abc123")
}

func TestKintoneStore(t *testing.T) {
	run := testRun(t, "https://example.cybozu.com")

	store, err := KintoneStore(run, run.Targets[0].App)
	require.NoError(t, err)
	assert.Equal(t, "3759", store.ID())

	_, err = KintoneStore(run, runconfig.App{AppID: "1"})
	assert.ErrorIs(t, err, errors.ErrCredentialRequired)
}
