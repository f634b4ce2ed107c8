package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Start(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantOK    bool
		wantErr   bool
	}{
		{
			name: "processing started",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var req ConvertRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				if req.VideoID != "v1" {
					t.Errorf("video id = %s, want v1", req.VideoID)
				}
				json.NewEncoder(w).Encode(convertResponse{Status: "processing_started"})
			},
			wantOK: true,
		},
		{
			name: "worker rejects",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(convertResponse{Status: "error", Error: "unsupported codec"})
			},
			wantOK:  false,
			wantErr: true,
		},
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantOK:  false,
			wantErr: true,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
			wantOK:  false,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := New()
			ok, err := c.Start(context.Background(), srv.URL, time.Second, ConvertRequest{
				VideoID: "v1", SourceURL: "http://core/source/v1", TargetHeight: 720,
			})
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Start_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode(convertResponse{Status: "processing_started"})
	}))
	defer srv.Close()

	c := New()
	ok, err := c.Start(context.Background(), srv.URL, 5*time.Millisecond, ConvertRequest{VideoID: "v1"})
	if ok {
		t.Error("expected ok=false on timeout")
	}
	if err == nil {
		t.Error("expected a timeout error")
	}
}

func TestClient_Poll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status/v1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(statusResponse{Status: StatusCompleted})
	}))
	defer srv.Close()

	c := New()
	status, _, err := c.Poll(context.Background(), srv.URL, time.Second, "v1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != StatusCompleted {
		t.Errorf("status = %s, want completed", status)
	}
}

func TestClient_Poll_ReportsWorkerReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(statusResponse{Status: StatusError, Error: "ffmpeg exited with status 1"})
	}))
	defer srv.Close()

	c := New()
	status, reason, err := c.Poll(context.Background(), srv.URL, time.Second, "v1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != StatusError {
		t.Errorf("status = %s, want error", status)
	}
	if reason != "ffmpeg exited with status 1" {
		t.Errorf("reason = %q, want the worker's reported error", reason)
	}
}

func TestClient_Poll_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New()
	_, _, err := c.Poll(context.Background(), srv.URL, time.Second, "v1")
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound(err) to be true, got %v", err)
	}
}

func TestClient_Poll_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New()
	_, _, err := c.Poll(context.Background(), srv.URL, time.Second, "v1")
	if !IsMalformed(err) {
		t.Errorf("expected IsMalformed(err) to be true, got %v", err)
	}
}

func TestClient_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/v1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(filesResponse{Files: []string{"playlist.m3u8", "segment000.ts"}})
	}))
	defer srv.Close()

	c := New()
	files, err := c.List(context.Background(), srv.URL, time.Second, "v1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || files[0] != "playlist.m3u8" {
		t.Errorf("files = %v", files)
	}
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/v1/segment000.ts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte("ts-bytes"))
	}))
	defer srv.Close()

	c := New()
	var buf bytes.Buffer
	if err := c.Fetch(context.Background(), srv.URL, time.Second, "v1", "segment000.ts", &buf); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if buf.String() != "ts-bytes" {
		t.Errorf("content = %q", buf.String())
	}
}

func TestClient_Fetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New()
	var buf bytes.Buffer
	err := c.Fetch(context.Background(), srv.URL, time.Second, "v1", "missing.ts", &buf)
	if err == nil {
		t.Error("expected error on HTTP 404")
	}
}
