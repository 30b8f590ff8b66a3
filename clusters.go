package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// fields the create endpoint rejects or computes itself
var clusterReadOnlyFields = []string{"cluster_id", "state", "default_tags"}

// Cluster is kept as a raw mapping so every attribute the source returns is
// carried over to the target untouched.
type Cluster map[string]any

func (c Cluster) Name() string {
	name, _ := c["cluster_name"].(string)
	return name
}

type clusterListResponse struct {
	Clusters []Cluster `json:"clusters"`
}

type ClusterResults struct {
	Created map[string]error
	Skipped []string
}

func (r *ClusterResults) Failed() map[string]error {
	failed := make(map[string]error)
	for name, err := range r.Created {
		if err != nil {
			failed[name] = err
		}
	}
	return failed
}

func (w *WorkspaceClient) ListClusters(ctx context.Context) ([]Cluster, error) {
	var listing clusterListResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetSuccessResult(&listing).
		Get(v2ClustersList)
	if err := handleAPIError(resp, err, "clusters list"); err != nil {
		return nil, err
	}

	return listing.Clusters, nil
}

func (w *WorkspaceClient) CreateCluster(ctx context.Context, cluster Cluster) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(cluster).
		Post(v2ClustersCreate)

	return handleAPIError(resp, err, "clusters create "+cluster.Name())
}

func exportClusters(ctx context.Context, source *WorkspaceClient, stagingFile string) ([]Cluster, error) {
	log.Info(fmt.Sprintf("Exporting clusters from %s...", source.Name()))
	clusters, err := source.ListClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("Failed to export clusters: %w", err)
	}

	staged, err := json.MarshalIndent(clusters, "", "    ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(stagingFile, staged, 0o600); err != nil {
		return nil, fmt.Errorf("write staging file %s: %w", stagingFile, err)
	}
	log.Info(fmt.Sprintf("Exported %d clusters to '%s'.", len(clusters), stagingFile))

	return clusters, nil
}

func loadStagedClusters(stagingFile string) ([]Cluster, error) {
	raw, err := os.ReadFile(stagingFile)
	if err != nil {
		return nil, err
	}

	var clusters []Cluster
	if err := json.Unmarshal(raw, &clusters); err != nil {
		return nil, fmt.Errorf("parse staging file %s: %w", stagingFile, err)
	}

	return clusters, nil
}

// recreateClusters creates each staged cluster in the target unless a
// cluster with the same name is already there.
func recreateClusters(ctx context.Context, target *WorkspaceClient, clusters []Cluster) (*ClusterResults, error) {
	log.Info(fmt.Sprintf("Recreating clusters in %s...", target.Name()))
	results := &ClusterResults{Created: make(map[string]error), Skipped: make([]string, 0)}

	existing, err := target.ListClusters(ctx)
	if err != nil {
		return results, fmt.Errorf("list target clusters: %w", err)
	}
	existingNames := mapset.NewThreadUnsafeSet[string]()
	for _, c := range existing {
		existingNames.Add(c.Name())
	}

	for _, cluster := range clusters {
		clusterConfig := make(Cluster, len(cluster))
		for k, v := range cluster {
			clusterConfig[k] = v
		}
		for _, field := range clusterReadOnlyFields {
			delete(clusterConfig, field)
		}

		name := clusterConfig.Name()
		if existingNames.Contains(name) {
			log.Info(fmt.Sprintf("Cluster '%s' already exists in %s. skipping...", name, target.Name()))
			results.Skipped = append(results.Skipped, name)
			continue
		}

		createErr := target.CreateCluster(ctx, clusterConfig)
		results.Created[name] = createErr
		if createErr != nil {
			log.Warn(fmt.Sprintf("Failed to create cluster '%s': %s", name, createErr))
			continue
		}
		existingNames.Add(name)
		log.Info(fmt.Sprintf("Cluster '%s' created successfully.", name))
	}
	sort.Strings(results.Skipped)

	return results, nil
}
