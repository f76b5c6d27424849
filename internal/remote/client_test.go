package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/Medi-Pal/medipal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, handler http.Handler, tokens oauth2.TokenSource) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger, _ := zap.NewDevelopment()
	return NewClient(Options{
		BaseURL:            srv.URL,
		Timeout:            2 * time.Second,
		BreakerMaxFailures: 2,
		BreakerOpen:        time.Minute,
	}, tokens, logger, nil)
}

func staticToken() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret", TokenType: "Bearer"})
}

const prescriptionJSON = `{
	"prescriptionId": "P1",
	"createdAt": "2024-05-01T10:00:00Z",
	"expiryDate": "2024-06-01",
	"phoneNumber": "+911234",
	"diagnosis": "Fever",
	"doctor": {"registrationNo": "R1", "name": "Dr. Rao", "clinicAddress": "MG Road"},
	"medicineList": [{
		"medicineId": 7,
		"brandName": "Crocin",
		"drugName": "Paracetamol",
		"type": "tablet",
		"dosageType": "TABLET",
		"dosage": 1,
		"duration": 3,
		"timings": [{"timeOfDay": "morning", "dosage": 2}]
	}]
}`

func TestClient_FetchPrescriptionsForPhone(t *testing.T) {
	var auth, phone string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		phone = r.URL.Query().Get("phone")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[" + prescriptionJSON + "]"))
	}), staticToken())

	list, err := c.FetchPrescriptionsForPhone(context.Background(), "+911234")
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "+911234", phone)

	p := list[0]
	assert.Equal(t, "P1", p.ID)
	assert.Equal(t, "MG Road", p.Doctor.Clinic)
	require.Len(t, p.Medicines, 1)
	assert.Equal(t, "Crocin", p.Medicines[0].DisplayName())
	require.NotNil(t, p.Medicines[0].Duration)
	assert.Equal(t, 3, *p.Medicines[0].Duration)
	assert.Equal(t, 2, p.Medicines[0].Timing("morning").Dosage)
}

func TestClient_FetchByIDNotFoundIsNil(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}), staticToken())

	p, err := c.FetchPrescriptionByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, apperrors.ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, apperrors.ErrRateLimited},
		{"bad request", http.StatusBadRequest, apperrors.ErrRemoteStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}), staticToken())

			_, err := c.FetchDoctors(context.Background())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_DecodeFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}), staticToken())

	_, err := c.FetchDoctors(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrRemoteDecode)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}), staticToken())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.FetchDoctors(ctx)
		assert.ErrorIs(t, err, apperrors.ErrRemoteStatus)
	}

	_, err := c.FetchDoctors(ctx)
	assert.ErrorIs(t, err, apperrors.ErrRemoteUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, "open", c.BreakerState())
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}), staticToken())

	for i := 0; i < 5; i++ {
		p, err := c.FetchPrescriptionByID(context.Background(), "x")
		require.NoError(t, err)
		assert.Nil(t, p)
	}
	assert.Equal(t, "closed", c.BreakerState())
}

func TestClient_AuthedCallWithoutTokens(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), nil)

	_, err := c.FetchDoctors(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNoSession)
}

func TestClient_MissingBaseURL(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	c := NewClient(Options{}, staticToken(), logger, nil)

	_, err := c.FetchDoctors(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestClient_OTPFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/otp/send", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/auth/otp/verify", func(w http.ResponseWriter, r *http.Request) {
		var req otpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.OTP != "123456" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(otpResponse{
			Token:     "jwt-from-backend",
			ExpiresIn: 3600,
			User:      userDTO{Name: "Asha"},
		})
	})

	c := newTestClient(t, mux, nil)
	ctx := context.Background()

	require.NoError(t, c.SendOTP(ctx, "+911"))

	_, err := c.VerifyOTP(ctx, "+911", "000000")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	sess, err := c.VerifyOTP(ctx, "+911", "123456")
	require.NoError(t, err)
	assert.Equal(t, "jwt-from-backend", sess.Token)
	assert.Equal(t, "+911", sess.User.PhoneNumber)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, time.Minute)
}

func TestClient_UpdateUsage(t *testing.T) {
	var gotPhone, gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req usageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotPhone = req.PhoneNumber
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(prescriptionJSON))
	}), staticToken())

	p, err := c.UpdateUsage(context.Background(), "P1", "+911234")
	require.NoError(t, err)
	assert.Equal(t, "P1", p.ID)
	assert.Equal(t, "+911234", gotPhone)
	assert.Equal(t, "/prescriptions/P1/usage", gotPath)
}

func TestSessionStore_TokenSource(t *testing.T) {
	kv, err := store.OpenInMemoryKV()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	sessions := NewSessionStore(kv)

	_, err = sessions.Token()
	assert.ErrorIs(t, err, apperrors.ErrNoSession)

	require.NoError(t, sessions.Save(Session{
		Token:     "abc",
		ExpiresAt: time.Now().Add(time.Hour),
		User:      store.User{PhoneNumber: "+911"},
	}))

	tok, err := sessions.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.True(t, tok.Valid())

	var auth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("[]"))
	}), sessions)
	_, err = c.FetchDoctors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", auth)

	require.NoError(t, sessions.Clear())
	_, err = c.FetchDoctors(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
