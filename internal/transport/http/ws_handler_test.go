package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classquiz/internal/app"
	"classquiz/internal/domain"
	"classquiz/internal/infra/memory"
	"classquiz/internal/logging"
)

type testServer struct {
	server   *httptest.Server
	attempts *memory.AttemptStore
	results  *memory.ResultLog
}

func newTestServer(t *testing.T, duration, poll time.Duration) *testServer {
	t.Helper()
	attempts := memory.NewAttemptStore()
	results := memory.NewResultLog()
	bankRepo := memory.NewBankRepository(memory.NewStaticBankLoader(sampleBank()), time.Minute)
	service := app.NewExamService(attempts, bankRepo, results, duration, logging.Discard())
	wsHandler := NewWSHandler(service, logging.Discard()).WithPollInterval(poll)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.Handle("/report", NewReportHandler(service, logging.Discard()))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testServer{server: server, attempts: attempts, results: results}
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + s.server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestWebSocketExamFlow(t *testing.T) {
	srv := newTestServer(t, 30*time.Minute, time.Second)
	conn := srv.dial(t, "name=Alice&class=Class+2")
	defer conn.Close()

	_, started := readNext(conn, t, "started")
	questions, ok := started["questions"].([]any)
	if !ok || len(questions) != 4 {
		t.Fatalf("expected 4 questions, got %v", started["questions"])
	}
	first := questions[0].(map[string]any)
	if _, leaked := first["answer"]; leaked {
		t.Fatalf("answer key must not be sent to the client")
	}
	if first["stem"] != "What does print(1) output?" || first["code"] != "print(1)" {
		t.Fatalf("unexpected question view %v", first)
	}

	for _, a := range []map[string]any{{"questionId": 1, "option": "A"}, {"questionId": 2, "option": "b"}} {
		if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": a}); err != nil {
			t.Fatalf("write answer: %v", err)
		}
		_, ack := readNext(conn, t, "answerAck")
		if ack["option"] != strings.ToLower(a["option"].(string)) {
			t.Fatalf("unexpected ack %v", ack)
		}
	}

	if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"questionId": 99, "option": "a"}}); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readNext(conn, t, "error")

	if err := conn.WriteJSON(map[string]any{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	_, payload := readNext(conn, t, "result")
	result := payload["result"].(map[string]any)
	if result["score"].(float64) != 28.6 {
		t.Fatalf("expected score 28.6, got %v", result["score"])
	}
	snapshot, ok := payload["snapshot"].(map[string]any)
	if !ok {
		t.Fatalf("expected snapshot in result payload")
	}
	summary := snapshot["summary"].(map[string]any)
	if summary["total"].(float64) != 1 {
		t.Fatalf("expected one graded attempt in the class summary, got %v", summary["total"])
	}

	records, _ := srv.results.LoadAll(context.Background())
	if len(records) != 1 || records[0].Name != "Alice" || records[0].Answers[1] != "a" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestWebSocketDeadlineForcesSubmission(t *testing.T) {
	srv := newTestServer(t, 30*time.Millisecond, 10*time.Millisecond)
	conn := srv.dial(t, "name=Bob&class=Class+1")
	defer conn.Close()

	readNext(conn, t, "started")
	_, payload := readNext(conn, t, "result")
	result := payload["result"].(map[string]any)
	if result["forced"] != true {
		t.Fatalf("expected forced result, got %v", result)
	}
	if result["score"].(float64) != 0 {
		t.Fatalf("expected score 0 for an empty attempt, got %v", result["score"])
	}
	waitFor(t, func() bool { return srv.attempts.Len() == 0 })
}

func TestWebSocketDiscardAndDisconnect(t *testing.T) {
	srv := newTestServer(t, 30*time.Minute, time.Second)

	conn := srv.dial(t, "name=Cleo&class=Class+1")
	readNext(conn, t, "started")
	if err := conn.WriteJSON(map[string]any{"type": "discard"}); err != nil {
		t.Fatalf("write discard: %v", err)
	}
	readNext(conn, t, "discarded")
	conn.Close()

	abandoned := srv.dial(t, "name=Dan&class=Class+1")
	readNext(abandoned, t, "started")
	abandoned.Close()

	waitFor(t, func() bool { return srv.attempts.Len() == 0 })
	records, _ := srv.results.LoadAll(context.Background())
	if len(records) != 0 {
		t.Fatalf("discarded attempts must not be recorded, got %d", len(records))
	}
}

func TestWebSocketUnavailableBankLeavesNoAttempt(t *testing.T) {
	attempts := memory.NewAttemptStore()
	bankRepo := memory.NewBankRepository(memory.NewStaticBankLoader(domain.Bank{}), time.Minute)
	service := app.NewExamService(attempts, bankRepo, memory.NewResultLog(), time.Minute, logging.Discard())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(service, logging.Discard()).ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[len("http"):]+"/ws?name=Eve&class=1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "error")
	if attempts.Len() != 0 {
		t.Fatalf("expected no attempt to be created, got %d", attempts.Len())
	}
}

func TestWebSocketRequiresLearner(t *testing.T) {
	srv := newTestServer(t, time.Minute, time.Second)
	u := "ws" + srv.server.URL[len("http"):] + "/ws?name=Alice"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without a class")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func sampleBank() domain.Bank {
	return domain.Bank{Questions: []domain.Question{
		{ID: 1, Prompt: "What does print(1) output?\n\nprint(1)", OptionA: "1", OptionB: "None", OptionC: "error", Answer: "a", Category: "syntax", Difficulty: domain.Easy},
		{ID: 2, Prompt: "Which keyword defines a function?", OptionA: "func", OptionB: "def", OptionC: "fn", Answer: "b", Category: "syntax", Difficulty: domain.Easy},
		{ID: 3, Prompt: "type(1.0)?", OptionA: "int", OptionB: "str", OptionC: "float", Answer: "c", Category: "types", Difficulty: domain.Medium},
		{ID: 4, Prompt: "Is a tuple immutable?", OptionA: "yes", OptionB: "no", OptionC: "sometimes", Answer: "a", Category: "types", Difficulty: domain.Hard},
	}}
}
