package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"distill-go/internal/cache"
	"distill-go/internal/config"
	"distill-go/internal/models"
	"distill-go/internal/repository"
	"distill-go/internal/service"
	"distill-go/internal/utils"
	"distill-go/pkg/model_caller"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	engine *gin.Engine
	rm     *service.RunManager
	cfg    *config.Config
	jwt    *utils.JWTManager
	token  string
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Total   int64           `json:"total"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.Admin.Username = "admin"
	cfg.Admin.Password = "pw"
	cfg.Generation.Requirements = "结构清晰;语言简洁"
	cfg.Generation.DefaultRequirements = []string{"结构清晰"}
	cfg.Generation.SamplesPerSeed = 1
	cfg.Generation.Workers = 1
	cfg.Generation.RandomSeed = 1
	cfg.Output.Path = filepath.Join(dir, "out.jsonl")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := models.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store, err := cache.OpenFileStore(filepath.Join(dir, "cache.jsonl"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	jwtManager := utils.NewJWTManager("test-secret", "HS256", time.Hour)
	authService, err := service.NewAuthService(jwtManager, cfg)
	require.NoError(t, err)

	rm := service.NewRunManager(
		repository.NewRunRepository(db),
		repository.NewRunRecordRepository(db),
		repository.NewSkipEventRepository(db),
		&model_caller.MockTeacher{Model: "mock"},
		store,
		cfg,
		logger,
	)

	engine := SetupRouter(Dependencies{
		Config:      cfg,
		JWTManager:  jwtManager,
		Logger:      logger,
		AuthService: authService,
		RunManager:  rm,
		Store:       store,
	})
	return &testServer{engine: engine, rm: rm, cfg: cfg, jwt: jwtManager}
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func (s *testServer) login(t *testing.T) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/login", map[string]string{"username": "admin", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.AccessToken)
	s.token = resp.AccessToken
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "distill_active_runs")
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/login", map[string]string{"username": "admin", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/login", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.login(t)
	w = s.do(t, http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	decode(t, w, &me)
	assert.Equal(t, "admin", me.Username)
	assert.Equal(t, utils.RoleAdmin, me.Role)
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	w := s.do(t, http.MethodPost, "/api/runs", map[string]interface{}{"text": "需要润色的段落。"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var started struct {
		RunID   string `json:"run_id"`
		StartID int    `json:"start_id"`
	}
	decode(t, w, &started)
	require.NotEmpty(t, started.RunID)
	assert.Equal(t, 0, started.StartID)

	_, err := s.rm.Wait(started.RunID)
	require.NoError(t, err)

	w = s.do(t, http.MethodGet, "/api/runs/"+started.RunID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info struct {
		Status string `json:"status"`
		Stats  struct {
			Emitted int `json:"emitted"`
		} `json:"stats"`
	}
	decode(t, w, &info)
	assert.Equal(t, models.RunStatusFinished, info.Status)
	assert.Equal(t, 1, info.Stats.Emitted)

	w = s.do(t, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w, nil).Total)

	w = s.do(t, http.MethodGet, "/api/runs/"+started.RunID+"/records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recs []struct {
		RecordID int    `json:"record_id"`
		Input    string `json:"input"`
		Output   string `json:"output"`
	}
	env := decode(t, w, &recs)
	assert.EqualValues(t, 1, env.Total)
	require.Len(t, recs, 1)
	assert.Equal(t, "需要润色的段落。", recs[0].Input)
	assert.Equal(t, "【润色示范】需要润色的段落。", recs[0].Output)

	w = s.do(t, http.MethodGet, "/api/runs/"+started.RunID+"/skips", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var skips struct {
		Total int64 `json:"total"`
	}
	decode(t, w, &skips)
	assert.Zero(t, skips.Total)

	w = s.do(t, http.MethodGet, "/api/runs/"+started.RunID+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, `"type":"connected"`)
	assert.Contains(t, body, `"type":"emit"`)
	assert.Contains(t, body, `"type":"finished"`)

	w = s.do(t, http.MethodPost, "/api/runs/"+started.RunID+"/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodPost, "/api/runs/missing/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartRunValidation(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	w := s.do(t, http.MethodPost, "/api/runs", map[string]interface{}{"text": "段落", "workers": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/runs", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	root := filepath.Dir(s.cfg.Output.Path)
	w = s.do(t, http.MethodPost, "/api/runs", map[string]interface{}{"seeds_file": filepath.Join(root, "none.txt")})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPathsOutsideDataRootRejected(t *testing.T) {
	s := newTestServer(t)
	s.login(t)
	outside := filepath.Join(t.TempDir(), "victim.jsonl")
	require.NoError(t, os.WriteFile(outside, []byte("{\"id\":0}\n"), 0644))

	w := s.do(t, http.MethodPost, "/api/runs", map[string]interface{}{"text": "段落", "output_path": outside})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/api/runs", map[string]interface{}{"seeds_file": outside})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	data, err := os.ReadFile(outside)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":0}\n", string(data))

	q := url.Values{"path": {outside}}
	for _, target := range []string{"/api/dataset/stats", "/api/dataset/records", "/api/dataset/export"} {
		w = s.do(t, http.MethodGet, target+"?"+q.Encode(), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}

	q = url.Values{"path": {filepath.Join(filepath.Dir(s.cfg.Output.Path), "..", "x.jsonl")}}
	w = s.do(t, http.MethodGet, "/api/dataset/stats?"+q.Encode(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheAndDatasetEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	w := s.do(t, http.MethodGet, "/api/dataset/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Exists  bool `json:"exists"`
		Records int  `json:"records"`
	}
	decode(t, w, &stats)
	assert.False(t, stats.Exists)
	assert.Zero(t, stats.Records)

	seedsPath := filepath.Join(filepath.Dir(s.cfg.Output.Path), "seeds.txt")
	require.NoError(t, os.WriteFile(seedsPath, []byte("第一段。\n第二段。\n"), 0644))
	w = s.do(t, http.MethodPost, "/api/runs", map[string]interface{}{"seeds_file": seedsPath})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var started struct {
		RunID string `json:"run_id"`
	}
	decode(t, w, &started)
	_, err := s.rm.Wait(started.RunID)
	require.NoError(t, err)

	w = s.do(t, http.MethodGet, "/api/dataset/stats", nil)
	decode(t, w, &stats)
	assert.True(t, stats.Exists)
	assert.Equal(t, 2, stats.Records)

	q := url.Values{"text": {"第一段。"}, "requirements": {"语言简洁;结构清晰"}}
	w = s.do(t, http.MethodGet, "/api/cache/lookup?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var lookup struct {
		Key    string `json:"key"`
		Hit    bool   `json:"hit"`
		Output string `json:"output"`
	}
	decode(t, w, &lookup)
	assert.True(t, lookup.Hit)
	assert.Equal(t, "【润色示范】第一段。", lookup.Output)

	w = s.do(t, http.MethodGet, "/api/cache/lookup?key="+lookup.Key, nil)
	decode(t, w, &lookup)
	assert.True(t, lookup.Hit)

	w = s.do(t, http.MethodGet, "/api/cache/lookup?key=deadbeef", nil)
	decode(t, w, &lookup)
	assert.False(t, lookup.Hit)

	w = s.do(t, http.MethodGet, "/api/cache/lookup", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/dataset/records?per_page=1&page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recs []struct {
		ID    int    `json:"id"`
		Input string `json:"input"`
	}
	env := decode(t, w, &recs)
	assert.EqualValues(t, 2, env.Total)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].ID)
	assert.Equal(t, "第二段。", recs[0].Input)

	w = s.do(t, http.MethodGet, "/api/dataset/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "out.csv")
	lines := strings.Split(strings.TrimPrefix(w.Body.String(), "\xEF\xBB\xBF"), "\n")
	assert.Equal(t, "id,input,output,requirements,variant,cache_key", lines[0])

	w = s.do(t, http.MethodGet, "/api/dataset/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWriteRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	token, err := s.jwt.GenerateToken("viewer", "viewer")
	require.NoError(t, err)
	s.token = token

	w := s.do(t, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/runs", map[string]interface{}{"text": "段落"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// SSE 通过查询参数携带 token
	s.token = ""
	w = s.do(t, http.MethodGet, "/api/runs?token="+token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
