package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/untoldecay/mission-control/internal/engine"
	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/workspace"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine, workspace.Layout) {
	t.Helper()
	layout := workspace.New(t.TempDir(), "mission-control/active", "mission-control/completed", "memory", "WORKING.md", "dashboard/state.json")
	eng := engine.New(engine.Options{Layout: layout, Roster: []string{"forge", "scout"}})
	if err := eng.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	srv := httptest.NewServer(New(Config{Engine: eng}))
	t.Cleanup(srv.Close)
	return srv, eng, layout
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

type wireMission struct {
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Priority   string   `json:"priority"`
	AssignedTo *string  `json:"assigned_to"`
	StorageKey string   `json:"storage_key"`
	Tags       []string `json:"tags"`
}

type wireBoard struct {
	Queue    []wireMission `json:"queue"`
	Progress []wireMission `json:"progress"`
	Review   []wireMission `json:"review"`
	Done     []wireMission `json:"done"`
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var h Health
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/health", nil, &h); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if h.Status != "ok" || h.Websocket.Clients != 0 {
		t.Errorf("health = %+v", h)
	}
}

func TestCreateAndBoard(t *testing.T) {
	srv, _, layout := newTestServer(t)

	var created wireMission
	code := doJSON(t, http.MethodPost, srv.URL+"/api/missions", engine.MissionDraft{
		Title:      "Fix login redirect",
		AssignedTo: "forge",
		Priority:   "high",
		Status:     "progress",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	if created.StorageKey != "forge-fix-login-redirect.md" {
		t.Errorf("storage key = %q", created.StorageKey)
	}
	if created.AssignedTo == nil || *created.AssignedTo != "FORGE" {
		t.Errorf("assigned_to = %v", created.AssignedTo)
	}
	if _, err := os.Stat(layout.ActivePath(created.StorageKey)); err != nil {
		t.Errorf("mission file not written: %v", err)
	}

	var board wireBoard
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/missions", nil, &board); code != http.StatusOK {
		t.Fatalf("board status = %d", code)
	}
	if len(board.Progress) != 1 || board.Progress[0].Title != "Fix login redirect" {
		t.Errorf("progress column = %+v", board.Progress)
	}
	if board.Queue == nil || len(board.Queue) != 0 {
		t.Errorf("queue column = %+v, want empty array", board.Queue)
	}

	code = doJSON(t, http.MethodPost, srv.URL+"/api/missions", engine.MissionDraft{Title: "Fix login redirect", AssignedTo: "forge"}, nil)
	if code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", code)
	}
}

func TestCreateValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body errorBody
	code := doJSON(t, http.MethodPost, srv.URL+"/api/missions", engine.MissionDraft{Title: "   "}, &body)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if !strings.Contains(body.Error, "title is required") {
		t.Errorf("error = %q", body.Error)
	}

	resp, err := http.Post(srv.URL+"/api/missions", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestCompleteMission(t *testing.T) {
	srv, eng, layout := newTestServer(t)
	m, err := eng.CreateMission(engine.MissionDraft{Title: "Ship docs"})
	if err != nil {
		t.Fatalf("CreateMission: %v", err)
	}
	key := strings.TrimSuffix(m.StorageKey, ".md")

	var result struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/missions/"+key+"/complete", nil, &result); code != http.StatusOK {
		t.Fatalf("complete status = %d", code)
	}
	if !result.Success || result.ID != m.StorageKey {
		t.Errorf("result = %+v", result)
	}
	if _, err := os.Stat(layout.ArchivePath(m.StorageKey)); err != nil {
		t.Errorf("archived file missing: %v", err)
	}

	var board wireBoard
	doJSON(t, http.MethodGet, srv.URL+"/api/missions", nil, &board)
	if len(board.Done) != 1 || board.Done[0].Status != "done" {
		t.Errorf("done column = %+v", board.Done)
	}

	var archive struct {
		Missions []wireMission `json:"missions"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/api/missions/archive?limit=5", nil, &archive)
	if len(archive.Missions) != 1 {
		t.Errorf("archive = %+v", archive.Missions)
	}

	if code := doJSON(t, http.MethodPost, srv.URL+"/api/missions/"+key+"/complete", nil, nil); code != http.StatusNotFound {
		t.Errorf("second complete status = %d, want 404", code)
	}
}

func TestMissionNotFoundSuggests(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	if _, err := eng.CreateMission(engine.MissionDraft{Title: "Fix login", AssignedTo: "forge"}); err != nil {
		t.Fatal(err)
	}

	var body errorBody
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/missions/forge-fix-logn", nil, &body); code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if len(body.Suggestions) != 1 || body.Suggestions[0] != "forge-fix-login.md" {
		t.Errorf("suggestions = %v", body.Suggestions)
	}

	var m wireMission
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/missions/forge-fix-login", nil, &m); code != http.StatusOK || m.Title != "Fix login" {
		t.Errorf("get = %d %+v", code, m)
	}
}

func TestFeed(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	for _, title := range []string{"One", "Two", "Three"} {
		if _, err := eng.CreateMission(engine.MissionDraft{Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	var got struct {
		Feed []types.ActivityEvent `json:"feed"`
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/feed?limit=2", nil, &got); code != http.StatusOK {
		t.Fatalf("feed status = %d", code)
	}
	if len(got.Feed) != 2 || got.Feed[0].Target != "Three" || got.Feed[0].Agent != types.AgentHuman {
		t.Errorf("feed = %+v", got.Feed)
	}

	since := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	doJSON(t, http.MethodGet, srv.URL+"/api/feed?since="+since, nil, &got)
	if len(got.Feed) != 3 {
		t.Errorf("feed since = %d entries, want 3", len(got.Feed))
	}

	for _, q := range []string{"limit=-1", "limit=abc", "since=yesterday"} {
		if code := doJSON(t, http.MethodGet, srv.URL+"/api/feed?"+q, nil, nil); code != http.StatusBadRequest {
			t.Errorf("feed?%s status = %d, want 400", q, code)
		}
	}
}

func TestAgents(t *testing.T) {
	srv, _, layout := newTestServer(t)
	marker := layout.MarkerPath("forge")
	if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(marker, []byte("Current Task: Refactor API\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var list struct {
		Agents []types.AgentLiveness `json:"agents"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/api/agents", nil, &list)
	if len(list.Agents) != 2 {
		t.Fatalf("agents = %+v", list.Agents)
	}
	if list.Agents[0].ID != "forge" || list.Agents[0].Status != types.LivenessWorking {
		t.Errorf("first agent = %+v, want forge working", list.Agents[0])
	}
	if list.Agents[1].Status != types.LivenessOffline {
		t.Errorf("second agent = %+v, want offline", list.Agents[1])
	}

	var one types.AgentLiveness
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/agents/FORGE", nil, &one); code != http.StatusOK {
		t.Fatalf("agent status = %d", code)
	}
	if one.CurrentTask != "Refactor API" {
		t.Errorf("currentTask = %q", one.CurrentTask)
	}
	if one.Role != "Builder/Developer" || one.Emoji != "🔨" || one.Type != types.AgentTypeSpecialist {
		t.Errorf("agent metadata = %+v", one.AgentMeta)
	}
	var body errorBody
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/agents/forj", nil, &body); code != http.StatusNotFound {
		t.Errorf("unknown agent status = %d, want 404", code)
	}
	if len(body.Suggestions) == 0 || body.Suggestions[0] != "forge" {
		t.Errorf("suggestions = %v", body.Suggestions)
	}
}

func TestWebsocketReceivesAck(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var env struct {
		Type string `json:"type"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != string(types.EventConnected) {
		t.Errorf("first message = %q, want %q", env.Type, types.EventConnected)
	}

	if _, err := eng.CreateMission(engine.MissionDraft{Title: "Live"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != string(types.EventMissionNew) {
		t.Errorf("second message = %q, want %q", env.Type, types.EventMissionNew)
	}
}
