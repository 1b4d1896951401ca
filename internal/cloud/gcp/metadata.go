package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/option"
)

const metadataBaseURL = "http://metadata.google.internal/computeMetadata/v1/"

// StatusKeyPrefix prefixes the per-agent instance metadata key.
const StatusKeyPrefix = "wikiagent-status-"

// StatusPublisher publishes an agent's status snapshot.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, status AgentStatusMetadata) error
	Close() error
}

// AgentStatusMetadata is the JSON value written under the agent's key so
// operators can see swarm members from the instance page.
type AgentStatusMetadata struct {
	Agent            string    `json:"agent"`
	Mode             string    `json:"mode"`
	State            string    `json:"state"`
	Loops            int       `json:"loops"`
	SeenQuestions    int       `json:"seen_questions"`
	SubmittedAnswers int       `json:"submitted_answers"`
	LastError        string    `json:"last_error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MetadataAPI is a thin interface around the Compute API methods needed
// for metadata updates. This enables testing with mocks.
type MetadataAPI interface {
	GetInstance(ctx context.Context, project, zone, instance string) (*compute.Instance, error)
	SetMetadata(ctx context.Context, project, zone, instance string, metadata *compute.Metadata) error
}

type computeMetadataAPI struct {
	service *compute.Service
}

func (a *computeMetadataAPI) GetInstance(ctx context.Context, project, zone, instance string) (*compute.Instance, error) {
	return a.service.Instances.Get(project, zone, instance).Context(ctx).Do()
}

func (a *computeMetadataAPI) SetMetadata(ctx context.Context, project, zone, instance string, metadata *compute.Metadata) error {
	_, err := a.service.Instances.SetMetadata(project, zone, instance, metadata).Context(ctx).Do()
	return err
}

// ComputeStatusPublisher writes agent status into instance metadata.
type ComputeStatusPublisher struct {
	api      MetadataAPI
	key      string
	project  string
	zone     string
	instance string
}

// NewComputeStatusPublisher discovers project, zone and instance name from
// the metadata server. slug selects the metadata key.
func NewComputeStatusPublisher(ctx context.Context, slug string, opts ...option.ClientOption) (*ComputeStatusPublisher, error) {
	service, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute service: %w", err)
	}

	project, err := getInstanceMetadataField(ctx, "project/project-id")
	if err != nil {
		return nil, fmt.Errorf("failed to get project ID: %w", err)
	}
	zoneRaw, err := getInstanceMetadataField(ctx, "instance/zone")
	if err != nil {
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}
	// "projects/PROJECT/zones/ZONE"
	zone := zoneRaw[strings.LastIndex(zoneRaw, "/")+1:]

	instance, err := getInstanceMetadataField(ctx, "instance/name")
	if err != nil {
		return nil, fmt.Errorf("failed to get instance name: %w", err)
	}

	return NewComputeStatusPublisherWithAPI(&computeMetadataAPI{service: service}, slug, project, zone, instance), nil
}

// NewComputeStatusPublisherWithAPI creates a publisher with an injected
// MetadataAPI.
func NewComputeStatusPublisherWithAPI(api MetadataAPI, slug, project, zone, instance string) *ComputeStatusPublisher {
	return &ComputeStatusPublisher{
		api:      api,
		key:      StatusKeyPrefix + slug,
		project:  project,
		zone:     zone,
		instance: instance,
	}
}

// Key returns the metadata key this publisher writes.
func (p *ComputeStatusPublisher) Key() string {
	return p.key
}

// PublishStatus upserts the agent's key. The instance is read first so the
// write carries the current fingerprint.
func (p *ComputeStatusPublisher) PublishStatus(ctx context.Context, status AgentStatusMetadata) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	inst, err := p.api.GetInstance(ctx, p.project, p.zone, p.instance)
	if err != nil {
		return fmt.Errorf("failed to get instance metadata: %w", err)
	}

	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	value := string(statusJSON)

	metadata := inst.Metadata
	if metadata == nil {
		metadata = &compute.Metadata{}
	}
	found := false
	for _, item := range metadata.Items {
		if item.Key == p.key {
			item.Value = &value
			found = true
			break
		}
	}
	if !found {
		metadata.Items = append(metadata.Items, &compute.MetadataItems{Key: p.key, Value: &value})
	}

	if err := p.api.SetMetadata(ctx, p.project, p.zone, p.instance, metadata); err != nil {
		return fmt.Errorf("failed to set instance metadata: %w", err)
	}
	return nil
}

// Close is a no-op; the compute service holds no connections to release.
func (p *ComputeStatusPublisher) Close() error {
	return nil
}

func getInstanceMetadataField(ctx context.Context, field string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataBaseURL+field, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create metadata request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch metadata field %s: %w", field, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata server returned status %d for field %s", resp.StatusCode, field)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metadata response: %w", err)
	}

	value := strings.TrimSpace(string(body))
	if value == "" {
		return "", fmt.Errorf("empty value for metadata field %s", field)
	}
	return value, nil
}
