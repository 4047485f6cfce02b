//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/proctorstem-backend/internal/config"
	"github.com/stemsi/proctorstem-backend/internal/database"
	"github.com/stemsi/proctorstem-backend/internal/logger"
	"github.com/stemsi/proctorstem-backend/internal/service"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultBaseURL      = "http://localhost:8080/api/v1"
	participantUsername = "e2e_participant"
	participantPass     = "password123"
	participantName     = "E2E Participant"
)

var (
	baseURL          string
	rdb              *redis.Client
	participantID    int
	participantToken string
	testID           string
	questionID       string
	freeTextID       string
	sessionID        string
	optionPerm       []int
	plainTestID      string
	plainQuestionID  string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	if err := seed(); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// seed wipes previous e2e data, inserts one participant and one test with
// two questions, and issues a participant token.
func seed() error {
	ctx := context.Background()
	cfg := config.Load()

	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	// Cleanup previous test data (order matters due to FK)
	tables := []string{"violation_events", "attempt_answers", "attempt_sessions", "questions", "tests", "participants"}
	for _, table := range tables {
		if _, err := conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("cleanup %s: %w", table, err)
		}
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(participantPass), bcrypt.DefaultCost)
	err = conn.QueryRow(ctx,
		`INSERT INTO participants (name, username, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		participantName, participantUsername, string(hash),
	).Scan(&participantID)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}

	err = conn.QueryRow(ctx,
		`INSERT INTO tests (title, duration_minutes, violation_limit, randomize_options)
		 VALUES ('E2E Test', 10, 3, TRUE) RETURNING id`,
	).Scan(&testID)
	if err != nil {
		return fmt.Errorf("insert test: %w", err)
	}

	err = conn.QueryRow(ctx,
		`INSERT INTO questions (test_id, question_text, question_type, payload, answer_key, weight, order_num)
		 VALUES ($1, 'What is 2+2?', 'SINGLE_CHOICE',
			'{"options": ["3", "4", "5", "6"]}'::jsonb,
			'{"kind": "choice", "choice": 1}'::jsonb, 10, 1)
		 RETURNING id`, testID,
	).Scan(&questionID)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	err = conn.QueryRow(ctx,
		`INSERT INTO questions (test_id, question_text, question_type, payload, answer_key, weight, order_num)
		 VALUES ($1, 'Explain your reasoning.', 'FREE_TEXT', '{}'::jsonb,
			'{"kind": "text"}'::jsonb, 5, 2)
		 RETURNING id`, testID,
	).Scan(&freeTextID)
	if err != nil {
		return fmt.Errorf("insert free text question: %w", err)
	}

	// Second test without randomization: its paper renders in authored order.
	err = conn.QueryRow(ctx,
		`INSERT INTO tests (title, duration_minutes, violation_limit, randomize_options)
		 VALUES ('E2E Plain Test', 10, 3, FALSE) RETURNING id`,
	).Scan(&plainTestID)
	if err != nil {
		return fmt.Errorf("insert plain test: %w", err)
	}
	err = conn.QueryRow(ctx,
		`INSERT INTO questions (test_id, question_text, question_type, payload, answer_key, weight, order_num)
		 VALUES ($1, 'Pick the even number.', 'SINGLE_CHOICE',
			'{"options": ["1", "2", "3", "5"]}'::jsonb,
			'{"kind": "choice", "choice": 1}'::jsonb, 10, 1)
		 RETURNING id`, plainTestID,
	).Scan(&plainQuestionID)
	if err != nil {
		return fmt.Errorf("insert plain question: %w", err)
	}

	// Issue a token the same way the operator tool does. The Redis client
	// stays open for the mirror assertions.
	log := logger.Setup("error", "json")
	rdb, err = database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}

	authService := service.NewAuthService(cfg, rdb)
	participantToken, err = authService.GenerateParticipantToken(ctx, participantID)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	return nil
}

func TestAttemptFlow(t *testing.T) {
	// Step 1: Start the attempt
	t.Run("StartAttempt", func(t *testing.T) {
		resp, err := post(fmt.Sprintf("/participant/tests/%s/start", testID), nil, participantToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Session struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"session"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		sessionID = body.Data.Session.ID
		if sessionID == "" {
			t.Fatal("session ID missing")
		}
		if body.Data.Session.Status != "ACTIVE" {
			t.Fatalf("expected ACTIVE, got %s", body.Data.Session.Status)
		}
	})

	// Step 2: Start again, must resume the same session
	t.Run("StartIdempotent", func(t *testing.T) {
		resp, err := post(fmt.Sprintf("/participant/tests/%s/start", testID), nil, participantToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Data struct {
				Session struct {
					ID string `json:"id"`
				} `json:"session"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.Session.ID != sessionID {
			t.Fatalf("second start created a new session: %s != %s", body.Data.Session.ID, sessionID)
		}
	})

	// Step 3: Fetch the paper: answer keys must not leak, and the shuffled
	// option order must be a valid permutation
	t.Run("GetPaper", func(t *testing.T) {
		resp, err := get(fmt.Sprintf("/participant/tests/%s/paper", testID), participantToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		raw := readBody(resp)
		if strings.Contains(raw, "answer_key") {
			t.Fatal("paper leaks answer keys")
		}

		var body struct {
			Data struct {
				Paper struct {
					Questions []struct {
						ID      string   `json:"id"`
						Options []string `json:"options"`
					} `json:"questions"`
					OptionOrder map[string][]int `json:"option_order"`
				} `json:"paper"`
			} `json:"data"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			t.Fatalf("json decode: %v", err)
		}
		if len(body.Data.Paper.Questions) != 2 {
			t.Fatalf("expected 2 questions, got %d", len(body.Data.Paper.Questions))
		}

		perm, ok := body.Data.Paper.OptionOrder[questionID]
		if !ok {
			t.Fatal("option order missing for choice question")
		}
		seen := make(map[int]bool)
		for _, idx := range perm {
			if idx < 0 || idx >= 4 || seen[idx] {
				t.Fatalf("invalid permutation: %v", perm)
			}
			seen[idx] = true
		}
		if len(perm) != 4 {
			t.Fatalf("permutation length %d, want 4", len(perm))
		}
		optionPerm = perm
	})

	// Step 4: Drop the Redis permutation mirror; the paper must fall back to
	// the session row and heal the mirror
	t.Run("PaperMirrorHeals", func(t *testing.T) {
		ctx := context.Background()
		key := config.CacheKey.SessionOptionOrderKey(sessionID)
		if err := rdb.Del(ctx, key).Err(); err != nil {
			t.Fatalf("redis del: %v", err)
		}

		resp, err := get(fmt.Sprintf("/participant/tests/%s/paper", testID), participantToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Data struct {
				Paper struct {
					OptionOrder map[string][]int `json:"option_order"`
				} `json:"paper"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)

		perm := body.Data.Paper.OptionOrder[questionID]
		if len(perm) != len(optionPerm) {
			t.Fatalf("permutation changed shape: %v vs %v", perm, optionPerm)
		}
		for i := range perm {
			if perm[i] != optionPerm[i] {
				t.Fatalf("reload reshuffled options: %v vs %v", perm, optionPerm)
			}
		}

		n, err := rdb.Exists(ctx, key).Result()
		if err != nil {
			t.Fatalf("redis exists: %v", err)
		}
		if n != 1 {
			t.Fatal("permutation mirror not healed after fallback")
		}
	})

	// Step 5: A test without randomization renders the identity permutation
	t.Run("PaperWithoutRandomization", func(t *testing.T) {
		resp, err := post(fmt.Sprintf("/participant/tests/%s/start", plainTestID), nil, participantToken)
		if err != nil {
			t.Fatalf("start request failed: %v", err)
		}
		resp.Body.Close()

		resp, err = get(fmt.Sprintf("/participant/tests/%s/paper", plainTestID), participantToken)
		if err != nil {
			t.Fatalf("paper request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Data struct {
				Paper struct {
					OptionOrder map[string][]int `json:"option_order"`
				} `json:"paper"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)

		perm, ok := body.Data.Paper.OptionOrder[plainQuestionID]
		if !ok {
			t.Fatal("option order missing for unrandomized paper")
		}
		for i, idx := range perm {
			if idx != i {
				t.Fatalf("expected identity permutation, got %v", perm)
			}
		}
		if len(perm) != 4 {
			t.Fatalf("permutation length %d, want 4", len(perm))
		}
	})

	// Step 6: WebSocket: answer, get a saved ack, then submit
	t.Run("StreamAnswerAndSubmit", func(t *testing.T) {
		wsURL := strings.Replace(baseURL, "http://", "ws://", 1)
		wsURL = strings.Replace(wsURL, "/api/v1", "/ws/v1", 1)
		url := fmt.Sprintf("%s/participant/tests/%s/stream?token=%s", wsURL, testID, participantToken)

		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("ws dial: %v", err)
		}
		defer conn.Close()

		// Answer in original indices: "4" is correct regardless of shuffle.
		answer := map[string]interface{}{
			"action":      "answer",
			"question_id": questionID,
			"value":       map[string]interface{}{"kind": "choice", "choice": 1},
		}
		if err := conn.WriteJSON(answer); err != nil {
			t.Fatalf("ws write: %v", err)
		}

		waitForEvent(t, conn, "saved")

		// Free text rides the debounce; submit flushes it even if the saved
		// ack has not arrived yet.
		freeText := map[string]interface{}{
			"action":      "answer",
			"question_id": freeTextID,
			"value":       map[string]interface{}{"kind": "text", "text": "Because 2+2=4."},
		}
		if err := conn.WriteJSON(freeText); err != nil {
			t.Fatalf("ws write free text: %v", err)
		}

		if err := conn.WriteJSON(map[string]string{"action": "submit"}); err != nil {
			t.Fatalf("ws write submit: %v", err)
		}

		ev := waitForEvent(t, conn, "submitted")
		score, _ := ev["score"].(float64)
		// Single choice correct (10) out of weight 15; free text excluded.
		if score < 99.9 || score > 100.1 {
			t.Fatalf("expected score 100 (free text excluded), got %v", score)
		}
	})

	// Step 7: State after submit is terminal with the final score; the
	// session's answer mirror is reaped and the snapshot lands in the state
	// mirror
	t.Run("StateAfterSubmit", func(t *testing.T) {
		ctx := context.Background()

		// Submission reaps the engine and its answer mirror asynchronously.
		answersKey := config.CacheKey.SessionAnswersKey(sessionID)
		deadline := time.Now().Add(3 * time.Second)
		for {
			n, err := rdb.Exists(ctx, answersKey).Result()
			if err != nil {
				t.Fatalf("redis exists: %v", err)
			}
			if n == 0 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("answer mirror not reaped after submit")
			}
			time.Sleep(50 * time.Millisecond)
		}

		resp, err := get(fmt.Sprintf("/participant/tests/%s/state", testID), participantToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				State struct {
					Status     string   `json:"status"`
					FinalScore *float64 `json:"final_score"`
				} `json:"state"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.State.Status != "SUBMITTED" {
			t.Fatalf("expected SUBMITTED, got %s", body.Data.State.Status)
		}
		if body.Data.State.FinalScore == nil {
			t.Fatal("final score missing")
		}

		// The terminal snapshot is immutable and cached for later reloads.
		n, err := rdb.Exists(ctx, config.CacheKey.SessionStateKey(sessionID)).Result()
		if err != nil {
			t.Fatalf("redis exists: %v", err)
		}
		if n != 1 {
			t.Fatal("terminal state not cached")
		}
	})
}

// Helpers

// waitForEvent reads ws messages until one with the wanted event arrives,
// skipping time ticks and other noise.
func waitForEvent(t *testing.T, conn *websocket.Conn, want string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ws read: %v", err)
		}
		if ev, _ := msg["event"].(string); ev == want {
			return msg
		}
	}
	t.Fatalf("event %q never arrived", want)
	return nil
}

func post(path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest("POST", baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func get(path string, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
