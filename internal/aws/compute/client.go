package compute

import (
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ecs"
)

type Config struct {
	ClusterName *string
	TaskArn     *string
}

type Client struct {
	ecs  *ecs.Client
	http *http.Client
	cfg  Config
}

func NewClient(ecsClient *ecs.Client, cfg Config) *Client {
	return &Client{
		ecs:  ecsClient,
		http: &http.Client{Timeout: 5 * time.Second},
		cfg:  cfg,
	}
}
