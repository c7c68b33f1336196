package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jaslr/orchon/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSender_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "enabled without smtp host",
			config: Config{
				Enabled:     true,
				FromAddress: "alerts@example.com",
			},
			wantErr: "SMTP host is required",
		},
		{
			name: "enabled without from address",
			config: Config{
				Enabled:  true,
				SMTPHost: "smtp.example.com",
			},
			wantErr: "from address is required",
		},
		{
			name:    "disabled skips validation",
			config:  Config{Enabled: false},
			wantErr: "",
		},
		{
			name: "valid config",
			config: Config{
				Enabled:     true,
				SMTPHost:    "smtp.example.com",
				FromAddress: "alerts@example.com",
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, sender)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, sender)
			}
		})
	}
}

func TestNewSender_DefaultPort(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    "smtp.example.com",
		FromAddress: "alerts@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 587, sender.config.SMTPPort)
}

func TestSender_DisabledSendIsNoop(t *testing.T) {
	sender, err := NewSender(Config{Enabled: false})
	require.NoError(t, err)

	assert.NoError(t, sender.Send(context.Background(), "ops@example.com", "subject", "body"))
}

func TestBuildMessage(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    "smtp.example.com",
		FromAddress: "Orchon Alerts <alerts@example.com>",
	})
	require.NoError(t, err)

	msg := string(sender.buildMessage("ops@example.com", "app is down", "details"))
	assert.Contains(t, msg, "From: Orchon Alerts <alerts@example.com>\r\n")
	assert.Contains(t, msg, "To: ops@example.com\r\n")
	assert.Contains(t, msg, "Subject: app is down\r\n")
	assert.Contains(t, msg, "\r\n\r\ndetails")
}

func TestExtractEmail(t *testing.T) {
	assert.Equal(t, "a@b.com", extractEmail("a@b.com"))
	assert.Equal(t, "a@b.com", extractEmail("Name <a@b.com>"))
	assert.Equal(t, "Name <a@b.com", extractEmail("Name <a@b.com"))
}

func TestSender_DeliversThroughSMTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	mailpit, err := testutil.NewMailpitContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mailpit.Terminate(ctx); err != nil {
			t.Logf("terminate mailpit: %v", err)
		}
	})

	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    mailpit.SMTPHost,
		SMTPPort:    mailpit.SMTPPort,
		FromAddress: "alerts@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, sender.Send(ctx, "ops@example.com", "[orchon] Project One: down", "app-one is down"))

	messagesURL := fmt.Sprintf("http://%s:%d/api/v1/messages", mailpit.APIHost, mailpit.APIPort)

	var listing struct {
		Total    int `json:"total"`
		Messages []struct {
			Subject string `json:"Subject"`
		} `json:"messages"`
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get(messagesURL)
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
			return false
		}
		return listing.Total == 1
	}, 10*time.Second, 200*time.Millisecond)

	require.Len(t, listing.Messages, 1)
	assert.Equal(t, "[orchon] Project One: down", listing.Messages[0].Subject)
}
