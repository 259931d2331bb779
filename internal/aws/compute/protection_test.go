package compute

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTaskMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v4/task", r.URL.Path)
		w.Write([]byte(`{"Cluster":"puzzle","TaskARN":"arn:aws:ecs:task/abc"}`))
	}))
	defer srv.Close()
	t.Setenv(metadataUriEnv, srv.URL+"/v4")

	client := NewClient(nil, Config{})
	require.NoError(t, client.LoadTaskMetadata(context.Background()))
	assert.Equal(t, "puzzle", aws.ToString(client.cfg.ClusterName))
	assert.Equal(t, "arn:aws:ecs:task/abc", aws.ToString(client.cfg.TaskArn))
}

func TestLoadTaskMetadataOutsideEcs(t *testing.T) {
	t.Setenv(metadataUriEnv, "")

	client := NewClient(nil, Config{})
	require.ErrorIs(t, client.LoadTaskMetadata(context.Background()), ErrNotRunningOnEcs)
	require.ErrorIs(t, client.UpdateServerProtection(context.Background(), true), ErrMissingTaskMetadata)
}

func TestLoadTaskMetadataKeepsConfigured(t *testing.T) {
	t.Setenv(metadataUriEnv, "")

	client := NewClient(nil, Config{ClusterName: aws.String("c"), TaskArn: aws.String("t")})
	require.NoError(t, client.LoadTaskMetadata(context.Background()))
}
