package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Medi-Pal/medipal/internal/app"
	"github.com/Medi-Pal/medipal/internal/config"
	"github.com/Medi-Pal/medipal/internal/reminder"
	"github.com/Medi-Pal/medipal/internal/store"
	"github.com/Medi-Pal/medipal/internal/store/storetest"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T, baseURL string) *app.App {
	t.Helper()
	cfg := config.Defaults(t.TempDir())
	cfg.Remote.BaseURL = baseURL
	a := app.New(cfg, storetest.New(t), zap.NewNop(), app.Options{Version: "test", LogLevel: zap.NewAtomicLevel()})
	t.Cleanup(a.Close)
	return a
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"08:30", 8, 30, false},
		{"23:59", 23, 59, false},
		{" 7:05 ", 7, 5, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		hour, minute, err := parseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (hour != tt.hour || minute != tt.minute) {
			t.Errorf("parseClock(%q) = %d:%d, want %d:%d", tt.in, hour, minute, tt.hour, tt.minute)
		}
	}
}

func TestPrintFunctions(t *testing.T) {
	var buf bytes.Buffer
	PrintExtendedHelp(&buf)
	PrintTimesHelp(&buf)
	PrintContactsHelp(&buf)
	PrintConfigHelp(&buf)
	if !strings.Contains(buf.String(), "medipal times set") {
		t.Error("expected times usage in help output")
	}
}

func TestHandleTimesCommand(t *testing.T) {
	a := newTestApp(t, "")
	var buf bytes.Buffer

	if err := HandleTimesCommand(a, []string{"set", "Morning", "07:15"}, &buf); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := a.Times.Get(reminder.Morning)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Hour != 7 || got.Minute != 15 {
		t.Errorf("expected 7:15, got %d:%d", got.Hour, got.Minute)
	}

	buf.Reset()
	if err := HandleTimesCommand(a, nil, &buf); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(buf.String(), "7:15 AM") {
		t.Errorf("expected updated time in %q", buf.String())
	}

	if err := HandleTimesCommand(a, []string{"set", "brunch", "10:00"}, &buf); err == nil {
		t.Error("expected unknown slot to fail")
	}
	if err := HandleTimesCommand(a, []string{"set"}, &buf); !errors.Is(err, ErrUsage) {
		t.Errorf("expected ErrUsage, got %v", err)
	}
}

func TestHandleContactsCommand(t *testing.T) {
	a := newTestApp(t, "")
	ctx := context.Background()
	var buf bytes.Buffer

	if err := HandleContactsCommand(ctx, a, []string{"add", "Mom", "+91 98000 00000"}, &buf); err != nil {
		t.Fatalf("add: %v", err)
	}
	contacts, err := a.Store.ListContacts(ctx)
	if err != nil || len(contacts) != 1 {
		t.Fatalf("expected one contact, got %v (%v)", contacts, err)
	}

	buf.Reset()
	if err := HandleContactsCommand(ctx, a, nil, &buf); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(buf.String(), "Mom") {
		t.Errorf("expected contact in %q", buf.String())
	}

	if err := HandleContactsCommand(ctx, a, []string{"rm", contacts[0].ID}, &buf); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if err := HandleContactsCommand(ctx, a, []string{"rm", contacts[0].ID}, &buf); err == nil {
		t.Error("expected second removal to fail")
	}
}

func TestHandleStatusCommand(t *testing.T) {
	a := newTestApp(t, "")
	ctx := context.Background()

	p := storetest.Prescription("P1", "+91", "Paracetamol", "tablet", store.MedicineTiming{TimeOfDay: "morning", Dosage: 2})
	if err := a.Store.UpsertPrescription(ctx, &p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := a.Flags.SetEnabled("P1", true); err != nil {
		t.Fatalf("flag: %v", err)
	}

	var buf bytes.Buffer
	if err := HandleStatusCommand(ctx, a, &buf); err != nil {
		t.Fatalf("status: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"not signed in", "Prescriptions (1)", "Paracetamol Brand", "reminders on"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in status output", want)
		}
	}
}

func TestHandleRestoreCommand(t *testing.T) {
	a := newTestApp(t, "")
	a.Start()
	ctx := context.Background()

	p := storetest.Prescription("P1", "+91", "Paracetamol", "tablet", store.MedicineTiming{TimeOfDay: "night", Dosage: 1})
	if err := a.Store.UpsertPrescription(ctx, &p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := a.Flags.SetEnabled("P1", true); err != nil {
		t.Fatalf("flag: %v", err)
	}

	var buf bytes.Buffer
	if err := HandleRestoreCommand(ctx, a, &buf); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !strings.Contains(buf.String(), "restored 1") {
		t.Errorf("unexpected report %q", buf.String())
	}
}

func TestHandleSyncCommandRequiresBackend(t *testing.T) {
	a := newTestApp(t, "")
	var buf bytes.Buffer
	if err := HandleSyncCommand(context.Background(), a, &buf); err == nil {
		t.Error("expected sync without a backend URL to fail")
	}
}

func TestHandleLoginCommand(t *testing.T) {
	var sent string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/otp/send", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		sent = req["phoneNumber"]
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/auth/otp/verify", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["otp"] != "123456" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"backend-token","expiresIn":3600,"user":{"phoneNumber":"+919876543210","name":"Asha"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := newTestApp(t, srv.URL)
	ctx := context.Background()

	var out bytes.Buffer
	err := HandleLoginCommand(ctx, a, []string{"+91 98765 43210"}, strings.NewReader("123456\n"), &out)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sent != "+919876543210" {
		t.Errorf("expected code sent to +919876543210, got %q", sent)
	}
	if !strings.Contains(out.String(), "Signed in as Asha") {
		t.Errorf("unexpected output %q", out.String())
	}

	user, err := a.Store.CurrentUser(ctx)
	if err != nil || user == nil || user.PhoneNumber != "+919876543210" {
		t.Fatalf("expected current user +919876543210, got %v (%v)", user, err)
	}
	tok, err := a.Sessions.Token()
	if err != nil || tok.AccessToken != "backend-token" {
		t.Errorf("expected stored backend token, got %v (%v)", tok, err)
	}

	if err := HandleLoginCommand(ctx, a, []string{"+919876543210", "000000"}, strings.NewReader(""), &out); err == nil {
		t.Error("expected wrong code to fail")
	}

	if err := HandleLogoutCommand(ctx, a, &out); err != nil {
		t.Fatalf("logout: %v", err)
	}
	user, _ = a.Store.CurrentUser(ctx)
	if user != nil {
		t.Errorf("expected no current user after logout, got %v", user)
	}
}

func TestHandleConfigCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	var buf bytes.Buffer

	if err := HandleConfigCommand([]string{"init"}, path, dir, &buf); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file: %v", err)
	}

	buf.Reset()
	if err := HandleConfigCommand([]string{"init"}, path, dir, &buf); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if !strings.Contains(buf.String(), "already exists") {
		t.Errorf("expected existing file to be kept, got %q", buf.String())
	}

	if err := HandleConfigCommand([]string{"bogus"}, path, dir, &buf); !errors.Is(err, ErrUsage) {
		t.Errorf("expected ErrUsage, got %v", err)
	}
}
