package momo

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"
)

func TestCollectSendsAuthorizedRequest(t *testing.T) {
    var got CollectRequest
    var gotAuth string
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/collect" {
            t.Errorf("path = %s, want /collect", r.URL.Path)
        }
        gotAuth = r.Header.Get("Authorization")
        if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
            t.Errorf("decode request: %v", err)
        }
        w.Header().Set("Content-Type", "application/json")
        _ = json.NewEncoder(w).Encode(Result{Accepted: true, TransactionID: "mm-1"})
    }))
    defer srv.Close()

    c := NewClient(srv.URL, "secret-key", time.Second)
    res, err := c.Collect(context.Background(), CollectRequest{
        Reference:   "BF-ABC-1234",
        Amount:      1000,
        Contact:     "237650123456",
        CallbackURL: "https://api.example.test/webhook",
    })
    if err != nil {
        t.Fatalf("Collect: %v", err)
    }
    if !res.Accepted || res.TransactionID != "mm-1" {
        t.Errorf("result = %+v, want accepted with mm-1", res)
    }
    if gotAuth != "Bearer secret-key" {
        t.Errorf("Authorization = %q, want Bearer secret-key", gotAuth)
    }
    if got.Reference != "BF-ABC-1234" || got.Amount != 1000 || got.Contact != "237650123456" {
        t.Errorf("gateway saw %+v", got)
    }
}

func TestNon2xxIsARejectionNotAnError(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "application/json")
        w.WriteHeader(http.StatusUnprocessableEntity)
        _ = json.NewEncoder(w).Encode(Result{Message: "account blocked"})
    }))
    defer srv.Close()

    c := NewClient(srv.URL, "k", time.Second)
    res, err := c.Disburse(context.Background(), DisburseRequest{Reference: "RF-X", Amount: 500, Contact: "237650123456"})
    if err != nil {
        t.Fatalf("Disburse: %v", err)
    }
    if res.Accepted {
        t.Error("rejection must not be accepted")
    }
    if res.Message != "account blocked" {
        t.Errorf("message = %q, want account blocked", res.Message)
    }
}

func TestTransportFailureIsAnError(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
    srv.Close()

    c := NewClient(srv.URL, "k", 200*time.Millisecond)
    if _, err := c.Collect(context.Background(), CollectRequest{Reference: "BF-Y"}); err == nil {
        t.Fatal("expected a transport error from a closed server")
    }
}
