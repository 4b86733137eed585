package competitionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vibestore237/live-competition/internal/types"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "secret-token")
}

func TestGetCompetition(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/competitions/42" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"42","title":"Friday Night","organizer_id":"org-1","duration":30}`)
	})

	competition, err := client.GetCompetition(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetCompetition failed: %v", err)
	}
	if competition.Title != "Friday Night" || competition.OrganizerID != "org-1" || competition.DurationMinutes != 30 {
		t.Fatalf("unexpected competition: %+v", competition)
	}
}

func TestGetParticipantsAndChat(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/competitions/42/participants":
			io.WriteString(w, `[{"id":"p1","status":"waiting","user":{"id":"u1","display_name":"Ada"}}]`)
		case "/api/competitions/42/chat":
			io.WriteString(w, `[{"id":"m1","author":"Ada","body":"hello"}]`)
		default:
			http.NotFound(w, r)
		}
	})

	participants, err := client.GetParticipants(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetParticipants failed: %v", err)
	}
	if len(participants) != 1 || participants[0].Name() != "Ada" {
		t.Fatalf("unexpected participants: %+v", participants)
	}

	messages, err := client.GetChat(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Body != "hello" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
}

func TestReact_SendsJSON(t *testing.T) {
	var received ReactRequest
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/competitions/react" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("invalid body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.React(context.Background(), ReactRequest{CompetitionID: "42", ParticipantID: "p1", ReactionType: types.ReactionFire})
	if err != nil {
		t.Fatalf("React failed: %v", err)
	}
	if received.ParticipantID != "p1" || received.ReactionType != types.ReactionFire {
		t.Fatalf("unexpected request body: %+v", received)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus int
		wantAuth   bool
	}{
		{name: "server error", status: http.StatusInternalServerError, wantStatus: http.StatusInternalServerError},
		{name: "unauthorized", status: http.StatusUnauthorized, wantStatus: http.StatusUnauthorized, wantAuth: true},
		{name: "forbidden", status: http.StatusForbidden, wantStatus: http.StatusForbidden, wantAuth: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			})

			err := client.Vote(context.Background(), VoteRequest{CompetitionID: "42", ParticipantID: "p1"})
			var netErr *NetworkError
			if !errors.As(err, &netErr) {
				t.Fatalf("unexpected error: %v", err)
			}
			if netErr.StatusCode != tc.wantStatus {
				t.Fatalf("unexpected status: got=%d want=%d", netErr.StatusCode, tc.wantStatus)
			}
			if errors.Is(err, ErrUnauthorized) != tc.wantAuth {
				t.Fatalf("unexpected unauthorized classification: %v", err)
			}
		})
	}
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	err := NewClient(srv.URL, "").PostChat(context.Background(), ChatRequest{CompetitionID: "42", Message: "hi"})
	var netErr *NetworkError
	if !errors.As(err, &netErr) || netErr.StatusCode != 0 {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSubmitPerformance_Multipart(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("invalid multipart body: %v", err)
			return
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("missing audio part: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		json.NewEncoder(w).Encode(SubmitResult{
			ID:     "perf-1",
			Title:  r.FormValue("title") + "|" + header.Filename + "|" + string(data),
			Artist: r.FormValue("artist"),
		})
	})

	// タグのないデータなのでファイル名がタイトルになる
	result, err := client.SubmitPerformance(context.Background(), PerformanceUpload{
		CompetitionID: "42",
		Artist:        "Ada",
		FileName:      "/tmp/my-song.ogg",
		Audio:         bytes.NewReader([]byte("raw-audio")),
	})
	if err != nil {
		t.Fatalf("SubmitPerformance failed: %v", err)
	}
	if result.Title != "my-song.ogg|my-song.ogg|raw-audio" || result.Artist != "Ada" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestReadMetadata_RewindsOnError(t *testing.T) {
	r := bytes.NewReader([]byte("not an audio file"))
	if _, err := ReadMetadata(r); err == nil {
		t.Fatalf("expected error for untagged data")
	}
	if pos, _ := r.Seek(0, io.SeekCurrent); pos != 0 {
		t.Fatalf("reader should be rewound: pos=%d", pos)
	}
}
