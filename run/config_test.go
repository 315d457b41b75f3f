package run

import (
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
)

const testConfigYaml = `
input:
  brokers: [localhost:9092]
  topic: session_recording_events
  group: session-sink
  teamAllowlist: ["team-*"]
buffer:
  rootPath: /tmp/session-sink
session:
  maxBufferSize: 100KB
  maxBufferAge: 60s
remote:
  bucket: session-archive
  region: eu-west-1
  folder: recordings/prod
  endpoint: http://localhost:9000
  accessKeyID: minio
  secretAccessKey: minio123
  pathStyle: true
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfigString(testConfigYaml)
	assert.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.Input.Brokers)
	assert.Equal(t, "session_recording_events", cfg.Input.Topic)
	// defaults filled by verification
	assert.Equal(t, "session-sink", cfg.Input.ClientID)
	assert.Equal(t, "oldest", cfg.Input.InitialOffset)

	assert.Equal(t, "/tmp/session-sink", cfg.Buffer.RootPath)

	assert.Equal(t, 100*datasize.KB, cfg.Session.MaxBufferSize)
	assert.Equal(t, 60*time.Second, cfg.Session.MaxBufferAge)
	assert.Equal(t, 0.1, cfg.Session.CompressionRatioEstimate)
	assert.Equal(t, 5*time.Minute, cfg.Session.MaxPendingAge)
	assert.Equal(t, 15*time.Minute, cfg.Session.IdleTimeout)

	assert.Equal(t, "session-archive", cfg.Remote.Bucket)
	assert.True(t, cfg.Remote.PathStyle)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfigString(`
input:
  topic: t
  group: g
buffer:
  rootPath: /tmp/x
session:
  maxBufferSize: 100KB
  maxBufferAge: 60s
remote:
  bucket: b
  region: r
  folder: f
`)
	assert.ErrorContains(t, err, "input: .brokers is unspecified")

	_, err = LoadConfigString(`
input:
  brokers: [localhost:9092]
  topic: t
  group: g
buffer:
  rootPath: /tmp/x
session:
  maxBufferSize: 100KB
  maxBufferAge: 60s
  idleTimeout: 30s
remote:
  bucket: b
  region: r
  folder: f
`)
	assert.ErrorContains(t, err, "session: .idleTimeout must be above .maxBufferAge")

	_, err = LoadConfigString(`
unknownSection: true
`)
	assert.Error(t, err)
}
