package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/segflow/internal/engine"
)

func TestPostmarkSend(t *testing.T) {
	var gotToken string
	var gotBody postmarkMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/email", r.URL.Path)
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ErrorCode":0,"Message":"OK"}`))
	}))
	defer srv.Close()

	p := NewPostmark("server-token")
	p.baseURL = srv.URL

	err := p.Send(context.Background(), "hello@x", "a@x", "Welcome, A", "<p>Hi A</p>")
	require.NoError(t, err)

	assert.Equal(t, "server-token", gotToken)
	assert.Equal(t, "hello@x", gotBody.From)
	assert.Equal(t, "a@x", gotBody.To)
	assert.Equal(t, "Welcome, A", gotBody.Subject)
	assert.Equal(t, "<p>Hi A</p>", gotBody.HTMLBody)
	assert.Equal(t, "outbound", gotBody.MessageStream)
}

func TestPostmarkSendNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid 'To' address"}`))
	}))
	defer srv.Close()

	p := NewPostmark("server-token")
	p.baseURL = srv.URL

	err := p.Send(context.Background(), "hello@x", "not-an-address", "s", "<p></p>")
	require.Error(t, err)

	var transport *engine.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, "postmark", transport.Provider)
	assert.Contains(t, transport.Msg, "Invalid 'To' address")
}

func TestProviderConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantErr bool
	}{
		{"postmark ok", ProviderConfig{Name: "postmark", APIKey: "k"}, false},
		{"postmark missing key", ProviderConfig{Name: "postmark"}, true},
		{"ses ok", ProviderConfig{Name: "ses", AccessKeyID: "a", SecretAccessKey: "s", Region: "us-east-1"}, false},
		{"ses missing region", ProviderConfig{Name: "ses", AccessKeyID: "a", SecretAccessKey: "s"}, true},
		{"unknown", ProviderConfig{Name: "sendgrid"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewBuildsProviderByTag(t *testing.T) {
	sender, err := New(ProviderConfig{Name: "postmark", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Postmark{}, sender)

	sender, err = New(ProviderConfig{Name: "ses", AccessKeyID: "a", SecretAccessKey: "s", Region: "r"})
	require.NoError(t, err)
	assert.IsType(t, &SES{}, sender)

	_, err = New(ProviderConfig{Name: "pigeon"})
	assert.Error(t, err)
}
