package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  request_updated_topic_name: "request.updated"
redis:
  host: "localhost"
  port: 6379
sendgrid:
  from_email: "noreply@ecocycle.io"
  sandbox: true
pickupdesk:
  http_addr: ":8080"
  kafka_consumer_group: "pickup-api"
  jwt_secret: "s3cret"
  otp_ttl_seconds: 600
  response_deadline_hours: 12
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "request.updated", cfg.Kafka.RequestUpdatedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.PickupDesk.HTTPAddr)
	require.True(t, cfg.SendGrid.Sandbox)
	require.Equal(t, 600, cfg.PickupDesk.OTPTTLSeconds)
	require.Equal(t, 12, cfg.PickupDesk.ResponseDeadlineHours)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
