package ics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchReturnsBody(t *testing.T) {
	const payload = "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	body, err := NewFetcher().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if string(body) != payload {
		t.Fatalf("body mismatch: got %q", body)
	}
}

func TestFetchNonSuccessStatusIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher().Fetch(context.Background(), srv.URL)
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected *NetworkError, got %v", err)
	}
	if ne.Status != http.StatusNotFound {
		t.Fatalf("status mismatch: got %d", ne.Status)
	}
}

func TestFetchHTMLResponseIsFormatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>sign in</html>"))
	}))
	defer srv.Close()

	_, err := NewFetcher().Fetch(context.Background(), srv.URL)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FormatError, got %v", err)
	}
}

func TestFetchUnreachableHostIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewFetcher().Fetch(context.Background(), url)
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected *NetworkError, got %v", err)
	}
}

func TestFetchEmptyURL(t *testing.T) {
	_, err := NewFetcher().Fetch(context.Background(), "")
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected *NetworkError, got %v", err)
	}
}

func TestRedactURLHidesPathAndQuery(t *testing.T) {
	got := RedactURL("https://example.com/private/abcd1234/basic.ics?token=s3cret")
	if strings.Contains(got, "s3cret") || strings.Contains(got, "abcd1234") {
		t.Fatalf("secret leaked: %q", got)
	}
	if want := "https://example.com/...(redacted)"; got != want {
		t.Fatalf("redaction mismatch: got %q want %q", got, want)
	}
}
