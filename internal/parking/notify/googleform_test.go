package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"parking-monitor/internal/parking/domain"
)

func TestGoogleFormSubmitter_PostsEntries(t *testing.T) {
	var got url.Values
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		contentType = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got = r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	submitter := NewGoogleFormSubmitter(srv.URL, DefaultFormEntries())
	gd := domain.APIRecord{ParkingGroupName: "GreenDay", CurrentFreeGroupCounterValue: domain.NewFreeCount(42), Timestamp: "2024-05-01 10:04:00"}
	uni := domain.APIRecord{ParkingGroupName: "Bank_1", Timestamp: "2024-05-01 10:03:00"}
	submitter.Submit(context.Background(), gd, uni)

	if contentType != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	if got.Get("entry.2026993163") != "42" {
		t.Fatalf("expected greenday value 42, got %q", got.Get("entry.2026993163"))
	}
	if got.Get("entry.51469670") != "2024-05-01 10:04:00" {
		t.Fatalf("unexpected greenday time %q", got.Get("entry.51469670"))
	}
	if got.Get("entry.1412144904") != "0" {
		t.Fatalf("expected null uni value to post 0, got %q", got.Get("entry.1412144904"))
	}
	if got.Get("entry.364658642") != "2024-05-01 10:03:00" {
		t.Fatalf("unexpected uni time %q", got.Get("entry.364658642"))
	}
}

func TestGoogleFormSubmitter_SwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	submitter := NewGoogleFormSubmitter(srv.URL, DefaultFormEntries())
	if err := submitter.post(context.Background(), url.Values{}); err == nil {
		t.Fatalf("expected error for 500")
	}
	submitter.Submit(context.Background(), domain.APIRecord{}, domain.APIRecord{})
}

func TestNewGoogleFormSubmitter_DefaultURL(t *testing.T) {
	submitter := NewGoogleFormSubmitter("", DefaultFormEntries())
	if submitter.url != DefaultFormURL {
		t.Fatalf("expected default url, got %s", submitter.url)
	}
}
