package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/"}, nil)
}

func writeMessage(w http.ResponseWriter, content string, outputTokens int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-3-haiku-20240307",
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content": []map[string]interface{}{
			{"type": "text", "text": content},
		},
		"usage": map[string]interface{}{
			"input_tokens":  10,
			"output_tokens": outputTokens,
		},
	})
}

func writeError(w http.ResponseWriter, status int, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"type":  "error",
		"error": map[string]string{"type": errType, "message": "test failure"},
	})
}

func TestCompleteSendsRequest(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		if key := r.Header.Get("X-Api-Key"); key != "sk-test" {
			t.Errorf("api key = %q, want sk-test", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeMessage(w, "Rewritten text", 7)
	})

	resp, err := client.Complete(context.Background(), Request{
		APIKey:    "sk-test",
		Model:     "claude-3-sonnet-20240229",
		System:    "be brief",
		Prompt:    "Summarise\n\nContent: hello",
		MaxTokens: 8000,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Text != "Rewritten text" || resp.OutputTokens != 7 {
		t.Errorf("response = %+v", resp)
	}
	if got["model"] != "claude-3-sonnet-20240229" {
		t.Errorf("model = %v", got["model"])
	}
	if got["max_tokens"] != float64(8000) {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
	if got["temperature"] != float64(0) {
		t.Errorf("temperature = %v, want 0", got["temperature"])
	}
	if _, ok := got["system"]; !ok {
		t.Error("system prompt was not sent")
	}
}

func TestCompleteClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		errType   string
		wantKind  Kind
		wantFatal bool
	}{
		{"unauthorized", http.StatusUnauthorized, "authentication_error", KindAuth, true},
		{"forbidden", http.StatusForbidden, "permission_error", KindAuth, true},
		{"rate limited", http.StatusTooManyRequests, "rate_limit_error", KindRateLimit, true},
		{"server error", http.StatusInternalServerError, "api_error", KindProvider, true},
		{"bad request", http.StatusBadRequest, "invalid_request_error", KindProvider, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				writeError(w, tt.status, tt.errType)
			})

			_, err := client.Complete(context.Background(), Request{APIKey: "k", Model: "m", Prompt: "p", MaxTokens: 10})
			if err == nil {
				t.Fatal("expected error")
			}

			var llmErr *Error
			if !errors.As(err, &llmErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if llmErr.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", llmErr.Kind, tt.wantKind)
			}
			if IsFatal(err) != tt.wantFatal {
				t.Errorf("IsFatal = %v, want %v", IsFatal(err), tt.wantFatal)
			}
			if llmErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", llmErr.StatusCode, tt.status)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1 (no retries)", calls)
			}
		})
	}
}

func TestCompleteWithoutTextBlockIsNotFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg","type":"message","role":"assistant","model":"m","content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`))
	})

	_, err := client.Complete(context.Background(), Request{APIKey: "k", Model: "m", Prompt: "p", MaxTokens: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindOther {
		t.Errorf("KindOf = %s, want other", KindOf(err))
	}
	if IsFatal(err) {
		t.Error("empty content should not be fatal")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(errors.New("boom")) != KindOther {
		t.Error("unclassified errors should be KindOther")
	}
	if IsFatal(errors.New("boom")) {
		t.Error("unclassified errors should not be fatal")
	}
}
