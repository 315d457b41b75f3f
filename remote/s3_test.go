package remote

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/stretchr/testify/assert"
)

type fakeUploaderAPI struct {
	inputs  []*s3.PutObjectInput
	bodies  []string
	failing bool
}

func (api *fakeUploaderAPI) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if api.failing {
		return nil, fmt.Errorf("injected S3 failure")
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	api.inputs = append(api.inputs, input)
	api.bodies = append(api.bodies, string(body))
	return &manager.UploadOutput{}, nil
}

func TestS3StoreUpload(t *testing.T) {
	api := &fakeUploaderAPI{}
	store := newS3StoreWithAPI(logger.WithField("test", t.Name()), "session-archive", api, promreg.NewMetricFactory("test_", nil, nil))

	err := store.Upload(context.Background(), "folder/team_id/t1/session_id/s1/data/123", strings.NewReader("compressed bytes"))
	assert.NoError(t, err)
	if assert.Equal(t, 1, len(api.inputs)) {
		assert.Equal(t, "session-archive", *api.inputs[0].Bucket)
		assert.Equal(t, "folder/team_id/t1/session_id/s1/data/123", *api.inputs[0].Key)
		assert.Equal(t, "application/octet-stream", *api.inputs[0].ContentType)
		assert.Equal(t, "compressed bytes", api.bodies[0])
	}
}

func TestS3StoreUploadError(t *testing.T) {
	api := &fakeUploaderAPI{failing: true}
	store := newS3StoreWithAPI(logger.WithField("test", t.Name()), "session-archive", api, promreg.NewMetricFactory("test_", nil, nil))

	err := store.Upload(context.Background(), "some/key", strings.NewReader("x"))
	assert.ErrorContains(t, err, "upload object 'some/key'")
	assert.ErrorContains(t, err, "injected S3 failure")
}
