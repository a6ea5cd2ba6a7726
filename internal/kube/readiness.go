// Package kube is the readiness data source: a short-lived, per-cluster
// connection to the EKS control plane that resolves each node's Ready
// condition. All access configuration (bearer token, CA, endpoint) is built
// in memory and scoped to the call; nothing is written to disk or to the
// process environment, so concurrent probes cannot cross-contaminate.
package kube

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/patchops/eks-inventory/internal/aws/eks"
	"github.com/patchops/eks-inventory/internal/logging"
)

const (
	// accessTimeout bounds building and authenticating the cluster client.
	accessTimeout = 30 * time.Second
	// queryTimeout bounds each control-plane API call.
	queryTimeout = 10 * time.Second

	// providerIDPrefix is how EKS nodes encode their backing instance:
	// aws:///<az>/<instance-id>.
	providerIDPrefix = "aws:///"
)

// Status is a node's readiness as reported by the control plane.
type Status string

const (
	StatusReady    Status = "Ready"
	StatusNotReady Status = "NotReady"
	StatusUnknown  Status = "Unknown"
)

// NodeLister is the one control-plane operation the probe needs.
type NodeLister interface {
	ListNodes(ctx context.Context) ([]corev1.Node, error)
}

type clientsetLister struct {
	cs *kubernetes.Clientset
}

func (l *clientsetLister) ListNodes(ctx context.Context) ([]corev1.Node, error) {
	list, err := l.cs.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// Probe resolves node readiness for one cluster at a time. The lister
// constructor is injectable for tests.
type Probe struct {
	newLister func(ctx context.Context, cfg aws.Config, cluster eks.Cluster) (NodeLister, error)
}

func NewProbe() *Probe {
	return &Probe{newLister: newClusterLister}
}

// NewProbeWithLister injects the lister constructor. Used by tests.
func NewProbeWithLister(fn func(ctx context.Context, cfg aws.Config, cluster eks.Cluster) (NodeLister, error)) *Probe {
	return &Probe{newLister: fn}
}

func newClusterLister(ctx context.Context, cfg aws.Config, cluster eks.Cluster) (NodeLister, error) {
	ca, err := base64.StdEncoding.DecodeString(cluster.CertAuthority)
	if err != nil {
		return nil, fmt.Errorf("decoding CA for %s: %w", cluster.Name, err)
	}

	token, err := bearerToken(ctx, cfg, cluster.Name)
	if err != nil {
		return nil, err
	}

	restCfg := &rest.Config{
		Host:        cluster.Endpoint,
		BearerToken: token,
		TLSClientConfig: rest.TLSClientConfig{
			CAData: ca,
		},
		Timeout: queryTimeout,
	}

	cs, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("building client for %s: %w", cluster.Name, err)
	}
	return &clientsetLister{cs: cs}, nil
}

// NodeReadiness resolves readiness for the given instances. On any failure
// (auth, timeout, API error) every requested instance reports Unknown; a
// probe failure degrades the readiness column only and never aborts the
// cluster's records.
func (p *Probe) NodeReadiness(ctx context.Context, cfg aws.Config, cluster eks.Cluster, instanceIDs []string) map[string]Status {
	unknown := func() map[string]Status {
		m := make(map[string]Status, len(instanceIDs))
		for _, id := range instanceIDs {
			m[id] = StatusUnknown
		}
		return m
	}

	if len(instanceIDs) == 0 {
		return map[string]Status{}
	}

	ctx, cancel := context.WithTimeout(ctx, accessTimeout)
	defer cancel()

	lister, err := p.newLister(ctx, cfg, cluster)
	if err != nil {
		logging.Warn("cluster %s: readiness probe unavailable: %v", cluster.Name, err)
		return unknown()
	}

	nodes, err := lister.ListNodes(ctx)
	if err != nil {
		logging.Warn("cluster %s: listing nodes failed: %v", cluster.Name, err)
		return unknown()
	}

	wanted := make(map[string]bool, len(instanceIDs))
	for _, id := range instanceIDs {
		wanted[id] = true
	}

	readiness := unknown()
	for _, node := range nodes {
		id := instanceIDFromProviderID(node.Spec.ProviderID)
		if id == "" || !wanted[id] {
			continue
		}
		readiness[id] = nodeStatus(node)
	}
	return readiness
}

func instanceIDFromProviderID(providerID string) string {
	if !strings.HasPrefix(providerID, providerIDPrefix) {
		return ""
	}
	parts := strings.Split(providerID, "/")
	return parts[len(parts)-1]
}

func nodeStatus(node corev1.Node) Status {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			if cond.Status == corev1.ConditionTrue {
				return StatusReady
			}
			return StatusNotReady
		}
	}
	return StatusNotReady
}
