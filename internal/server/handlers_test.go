package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/events"
	"github.com/conclave-ai/conclave/internal/gateway/gatewaytest"
	"github.com/conclave-ai/conclave/internal/storage"
)

func TestProcessCouncilStreamsEvents(t *testing.T) {
	srv := newTestServer(t, councilGateway())

	recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/council/process", gin.H{
		"content": "What is Go?",
	})

	if recorder.Code != http.StatusOK {
		t.Fatalf("Status: got %d, want %d, body: %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}
	if ct := recorder.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type: got %q, want text/event-stream", ct)
	}

	traceID := recorder.Header().Get("X-Trace-Id")
	if traceID == "" {
		t.Error("Missing X-Trace-Id header")
	}

	evts := parseSSE(t, recorder.Body.String())
	wantTypes := []string{
		events.TypeStreamStart,
		events.TypeStage1Start,
		events.TypeStage1Complete,
		events.TypeStage2Start,
		events.TypeStage2Complete,
		events.TypeStage3Start,
		events.TypeStage3Complete,
		events.TypeComplete,
	}
	if got := eventTypes(evts); !reflect.DeepEqual(got, wantTypes) {
		t.Errorf("Event sequence:\ngot  %v\nwant %v", got, wantTypes)
	}

	for _, event := range evts {
		if event.Type != events.TypeStage2Complete {
			continue
		}
		metadata, ok := event.Metadata.(map[string]interface{})
		if !ok {
			t.Fatalf("stage2_complete metadata has type %T", event.Metadata)
		}
		labelToModel, ok := metadata["label_to_model"].(map[string]interface{})
		if !ok || len(labelToModel) != 2 {
			t.Errorf("label_to_model: got %v, want 2 entries", metadata["label_to_model"])
		}
		if _, ok := metadata["aggregate_rankings"]; !ok {
			t.Error("stage2_complete metadata missing aggregate_rankings")
		}
	}

	// The status endpoint reflects the finished deliberation.
	statusRecorder := doJSON(t, srv.Router(), http.MethodGet, "/api/council/status/"+traceID, nil)
	if statusRecorder.Code != http.StatusOK {
		t.Fatalf("Status endpoint: got %d, want %d", statusRecorder.Code, http.StatusOK)
	}
	var entry struct {
		TraceID string `json:"trace_id"`
		State   string `json:"state"`
	}
	decodeJSON(t, statusRecorder, &entry)
	if entry.TraceID != traceID {
		t.Errorf("trace_id: got %q, want %q", entry.TraceID, traceID)
	}
	if entry.State != council.StateComplete {
		t.Errorf("state: got %q, want %q", entry.State, council.StateComplete)
	}
}

func TestProcessCouncilGeneratesTitle(t *testing.T) {
	srv := newTestServer(t, councilGateway())

	recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/council/process", gin.H{
		"content":        "What is Go?",
		"generate_title": true,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Status: got %d, want %d", recorder.Code, http.StatusOK)
	}

	evts := parseSSE(t, recorder.Body.String())
	var titleEvent *events.Event
	for i := range evts {
		if evts[i].Type == events.TypeTitleComplete {
			titleEvent = &evts[i]
		}
	}
	if titleEvent == nil {
		t.Fatalf("Missing title_complete event in %v", eventTypes(evts))
	}

	data, ok := titleEvent.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("title_complete data has type %T", titleEvent.Data)
	}
	if data["title"] != "Go Basics" {
		t.Errorf("title: got %v, want %q", data["title"], "Go Basics")
	}

	// title_complete precedes the terminal complete event.
	types := eventTypes(evts)
	if types[len(types)-1] != events.TypeComplete || types[len(types)-2] != events.TypeTitleComplete {
		t.Errorf("Tail of sequence: %v", types)
	}
}

func TestProcessCouncilValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		body     gin.H
		contains []string
	}{
		{
			name:     "missing content",
			body:     gin.H{},
			contains: []string{"Invalid request"},
		},
		{
			name: "no api key anywhere",
			mutate: func(cfg *config.Config) {
				cfg.APIKey = ""
			},
			body:     gin.H{"content": "What is Go?"},
			contains: []string{"api key is not configured"},
		},
		{
			name:     "council too small",
			body:     gin.H{"content": "What is Go?", "council_models": []string{"model/solo"}},
			contains: []string{"council requires at least 2 distinct models"},
		},
		{
			name:     "duplicate models count once",
			body:     gin.H{"content": "What is Go?", "council_models": []string{"model/a", "model/a", "model/a"}},
			contains: []string{"council requires at least 2 distinct models"},
		},
		{
			name: "multiple problems joined",
			mutate: func(cfg *config.Config) {
				cfg.APIKey = ""
				cfg.ChairmanModel = ""
			},
			body:     gin.H{"content": "What is Go?", "council_models": []string{"model/solo"}},
			contains: []string{"api key is not configured", "council requires at least 2 distinct models", "chairman model is not configured", "; "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutators := []func(*config.Config){}
			if tt.mutate != nil {
				mutators = append(mutators, tt.mutate)
			}
			srv := newTestServer(t, councilGateway(), mutators...)

			recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/council/process", tt.body)
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("Status: got %d, want %d, body: %s", recorder.Code, http.StatusBadRequest, recorder.Body.String())
			}

			var response map[string]string
			decodeJSON(t, recorder, &response)
			for _, want := range tt.contains {
				if !strings.Contains(response["error"], want) {
					t.Errorf("Error %q missing %q", response["error"], want)
				}
			}
		})
	}
}

func TestProcessCouncilOversized(t *testing.T) {
	srv := newTestServer(t, councilGateway())

	oversized := make([]string, council.MaxCouncilSize+1)
	for i := range oversized {
		oversized[i] = fmt.Sprintf("model/%d", i)
	}

	recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/council/process", gin.H{
		"content":        "What is Go?",
		"council_models": oversized,
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("Status: got %d, want %d", recorder.Code, http.StatusBadRequest)
	}

	var response map[string]string
	decodeJSON(t, recorder, &response)
	if !strings.Contains(response["error"], "maximum") {
		t.Errorf("Error %q should mention the council size maximum", response["error"])
	}
}

func TestProcessCouncilStreamsErrorEvent(t *testing.T) {
	srv := newTestServer(t, gatewaytest.ErrorHandler(http.StatusInternalServerError, "boom"))

	recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/council/process", gin.H{
		"content": "What is Go?",
	})

	// The stream was already open, so the failure arrives as an event.
	if recorder.Code != http.StatusOK {
		t.Fatalf("Status: got %d, want %d", recorder.Code, http.StatusOK)
	}

	evts := parseSSE(t, recorder.Body.String())
	wantTypes := []string{events.TypeStreamStart, events.TypeStage1Start, events.TypeError}
	if got := eventTypes(evts); !reflect.DeepEqual(got, wantTypes) {
		t.Errorf("Event sequence:\ngot  %v\nwant %v", got, wantTypes)
	}

	last := evts[len(evts)-1]
	if !strings.Contains(last.Message, "failed to respond") {
		t.Errorf("Error message: got %q", last.Message)
	}
}

func TestGenerateTitleEndpoint(t *testing.T) {
	srv := newTestServer(t, councilGateway())

	recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/council/generate-title", gin.H{
		"content": "What is the Go programming language?",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Status: got %d, want %d", recorder.Code, http.StatusOK)
	}

	var response map[string]string
	decodeJSON(t, recorder, &response)
	if response["title"] != "Go Basics" {
		t.Errorf("title: got %q, want %q", response["title"], "Go Basics")
	}
}

func TestGenerateTitleEndpointValidation(t *testing.T) {
	srv := newTestServer(t, councilGateway())

	recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/council/generate-title", gin.H{})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Missing content: got %d, want %d", recorder.Code, http.StatusBadRequest)
	}

	srv = newTestServer(t, councilGateway(), func(cfg *config.Config) {
		cfg.APIKey = ""
	})
	recorder = doJSON(t, srv.Router(), http.MethodPost, "/api/council/generate-title", gin.H{
		"content": "What is Go?",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Missing credential: got %d, want %d", recorder.Code, http.StatusBadRequest)
	}
}

func TestGenerateTitleEndpointFallsBack(t *testing.T) {
	srv := newTestServer(t, gatewaytest.ErrorHandler(http.StatusInternalServerError, "boom"))

	recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/council/generate-title", gin.H{
		"content": "What is Go?",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Status: got %d, want %d", recorder.Code, http.StatusOK)
	}

	var response map[string]string
	decodeJSON(t, recorder, &response)
	if response["title"] != council.DefaultTitle {
		t.Errorf("title: got %q, want %q", response["title"], council.DefaultTitle)
	}
}

func TestCouncilStatusUnknownTrace(t *testing.T) {
	srv := newTestServer(t, councilGateway())

	recorder := doJSON(t, srv.Router(), http.MethodGet, "/api/council/status/nope", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Status: got %d, want %d", recorder.Code, http.StatusNotFound)
	}
}

func TestConversationLifecycle(t *testing.T) {
	srv := newTestServer(t, councilGateway())

	// Create.
	recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/conversations", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Create: got %d, want %d", recorder.Code, http.StatusOK)
	}
	var created storage.Conversation
	decodeJSON(t, recorder, &created)
	if created.ID == "" {
		t.Fatal("Created conversation has no id")
	}
	if created.Title != council.DefaultTitle {
		t.Errorf("Title: got %q, want %q", created.Title, council.DefaultTitle)
	}

	// List.
	recorder = doJSON(t, srv.Router(), http.MethodGet, "/api/conversations", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("List: got %d, want %d", recorder.Code, http.StatusOK)
	}
	var listing []storage.ConversationMetadata
	decodeJSON(t, recorder, &listing)
	if len(listing) != 1 || listing[0].ID != created.ID {
		t.Errorf("Listing: got %+v, want the created conversation", listing)
	}

	// Send a message through the full deliberation.
	recorder = doJSON(t, srv.Router(), http.MethodPost, "/api/conversations/"+created.ID+"/message", gin.H{
		"content": "What is Go?",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Message: got %d, want %d, body: %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}
	var result council.Result
	decodeJSON(t, recorder, &result)
	if len(result.Stage1) != 2 {
		t.Errorf("Stage1: got %d responses, want 2", len(result.Stage1))
	}
	if result.Stage3.Response == "" {
		t.Error("Stage3 response should not be empty")
	}

	// The conversation now holds the user and assistant turns.
	recorder = doJSON(t, srv.Router(), http.MethodGet, "/api/conversations/"+created.ID, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Get: got %d, want %d", recorder.Code, http.StatusOK)
	}
	var loaded storage.Conversation
	decodeJSON(t, recorder, &loaded)
	if len(loaded.Messages) != 2 {
		t.Fatalf("Messages: got %d, want 2", len(loaded.Messages))
	}
	if loaded.Messages[0].Role != "user" || loaded.Messages[1].Role != "assistant" {
		t.Errorf("Roles: got [%s, %s], want [user, assistant]",
			loaded.Messages[0].Role, loaded.Messages[1].Role)
	}

	// Delete.
	recorder = doJSON(t, srv.Router(), http.MethodDelete, "/api/conversations/"+created.ID, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Delete: got %d, want %d", recorder.Code, http.StatusOK)
	}
	recorder = doJSON(t, srv.Router(), http.MethodGet, "/api/conversations/"+created.ID, nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Get after delete: got %d, want %d", recorder.Code, http.StatusNotFound)
	}
}

func TestConversationNotFound(t *testing.T) {
	srv := newTestServer(t, councilGateway())

	recorder := doJSON(t, srv.Router(), http.MethodGet, "/api/conversations/does-not-exist", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Get: got %d, want %d", recorder.Code, http.StatusNotFound)
	}

	recorder = doJSON(t, srv.Router(), http.MethodPost, "/api/conversations/does-not-exist/message", gin.H{
		"content": "hello",
	})
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Message: got %d, want %d", recorder.Code, http.StatusNotFound)
	}

	recorder = doJSON(t, srv.Router(), http.MethodDelete, "/api/conversations/does-not-exist", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Delete: got %d, want %d", recorder.Code, http.StatusNotFound)
	}
}

func TestSendMessageStream(t *testing.T) {
	srv := newTestServer(t, councilGateway())

	recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/conversations", nil)
	var created storage.Conversation
	decodeJSON(t, recorder, &created)

	recorder = doJSON(t, srv.Router(), http.MethodPost, "/api/conversations/"+created.ID+"/message/stream", gin.H{
		"content": "What is Go?",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Stream: got %d, want %d, body: %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	evts := parseSSE(t, recorder.Body.String())
	types := eventTypes(evts)

	// The first turn also carries a title event.
	wantTypes := []string{
		events.TypeStreamStart,
		events.TypeStage1Start,
		events.TypeStage1Complete,
		events.TypeStage2Start,
		events.TypeStage2Complete,
		events.TypeStage3Start,
		events.TypeStage3Complete,
		events.TypeTitleComplete,
		events.TypeComplete,
	}
	if !reflect.DeepEqual(types, wantTypes) {
		t.Errorf("Event sequence:\ngot  %v\nwant %v", types, wantTypes)
	}

	// The turn and the generated title are persisted once the stream ends.
	recorder = doJSON(t, srv.Router(), http.MethodGet, "/api/conversations/"+created.ID, nil)
	var loaded storage.Conversation
	decodeJSON(t, recorder, &loaded)
	if len(loaded.Messages) != 2 {
		t.Fatalf("Messages: got %d, want 2", len(loaded.Messages))
	}
	if loaded.Title != "Go Basics" {
		t.Errorf("Title: got %q, want %q", loaded.Title, "Go Basics")
	}
	if loaded.Messages[1].Stage3 == nil || loaded.Messages[1].Stage3.Response == "" {
		t.Error("Assistant message missing synthesis")
	}

	// A second turn must not regenerate the title.
	recorder = doJSON(t, srv.Router(), http.MethodPost, "/api/conversations/"+created.ID+"/message/stream", gin.H{
		"content": "Tell me more.",
	})
	evts = parseSSE(t, recorder.Body.String())
	for _, event := range evts {
		if event.Type == events.TypeTitleComplete {
			t.Error("Second turn should not emit title_complete")
		}
	}
}

func TestFetchURLEndpoint(t *testing.T) {
	page := `<html><head><title>Go FAQ</title></head><body><article>Go compiles fast.</article></body></html>`
	contentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer contentServer.Close()

	srv := newTestServer(t, councilGateway())

	recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/fetch-url", gin.H{
		"url": contentServer.URL,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Status: got %d, want %d, body: %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	var response map[string]string
	decodeJSON(t, recorder, &response)
	if response["title"] != "Go FAQ" {
		t.Errorf("title: got %q, want %q", response["title"], "Go FAQ")
	}
	if !strings.Contains(response["content"], "Go compiles fast.") {
		t.Errorf("content: got %q", response["content"])
	}
}

func TestFetchURLEndpointValidation(t *testing.T) {
	srv := newTestServer(t, councilGateway())

	recorder := doJSON(t, srv.Router(), http.MethodPost, "/api/fetch-url", gin.H{})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Missing url: got %d, want %d", recorder.Code, http.StatusBadRequest)
	}

	recorder = doJSON(t, srv.Router(), http.MethodPost, "/api/fetch-url", gin.H{
		"url": "ftp://example.com/file",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Bad scheme: got %d, want %d", recorder.Code, http.StatusBadRequest)
	}
}
