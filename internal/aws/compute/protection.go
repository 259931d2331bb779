package compute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
)

var (
	ErrMissingTaskMetadata = errors.New("missing task metadata")
	ErrNotRunningOnEcs     = errors.New("not running on ecs")
)

const metadataUriEnv = "ECS_CONTAINER_METADATA_URI_V4"

type TaskMetadata struct {
	TaskArn     string `json:"TaskARN"`
	ClusterName string `json:"Cluster"`
}

// LoadTaskMetadata fills the cluster and task of the running container from
// the ECS task metadata endpoint. Explicitly configured values are kept.
func (client *Client) LoadTaskMetadata(ctx context.Context) error {
	if client.cfg.ClusterName != nil && client.cfg.TaskArn != nil {
		return nil
	}
	uri := os.Getenv(metadataUriEnv)
	if uri == "" {
		return ErrNotRunningOnEcs
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri+"/task", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to get task metadata: status %d", resp.StatusCode)
	}
	var metadata TaskMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return fmt.Errorf("failed to decode body: %w", err)
	}
	if client.cfg.ClusterName == nil {
		client.cfg.ClusterName = aws.String(metadata.ClusterName)
	}
	if client.cfg.TaskArn == nil {
		client.cfg.TaskArn = aws.String(metadata.TaskArn)
	}
	return nil
}

// UpdateServerProtection toggles ECS scale-in protection of this task, so a
// process holding match timers is not stopped by the service scheduler.
func (client *Client) UpdateServerProtection(
	ctx context.Context,
	enabled bool,
) error {
	if client.cfg.ClusterName == nil || client.cfg.TaskArn == nil {
		return ErrMissingTaskMetadata
	}
	_, err := client.ecs.UpdateTaskProtection(ctx, &ecs.UpdateTaskProtectionInput{
		Cluster:           client.cfg.ClusterName,
		Tasks:             []string{*client.cfg.TaskArn},
		ProtectionEnabled: enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to update task protection: %w", err)
	}
	return nil
}
