// Copyright 2025-2026 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package slogstash

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/compute/metadata"
)

// RuntimeInfo describes the platform the process appears to be running on.
// Fields holds default document fields derived from that platform; handlers
// merge them below configured extra fields, so explicit configuration always
// wins over detection.
type RuntimeInfo struct {
	// Platform is "kubernetes" or "gce", or empty when no platform was
	// recognized.
	Platform string

	// Hostname is the fully qualified hostname reported by the GCE
	// metadata server, when available. It serves as a fallback source
	// host for processes whose local hostname cannot be resolved.
	Hostname string

	// Fields holds platform-derived defaults keyed by document field name.
	Fields map[string]any
}

var (
	runtimeInfo     RuntimeInfo
	runtimeInfoOnce sync.Once
)

// DetectRuntimeInfo inspects environment variables and, when reachable, the
// GCE metadata server to identify the current platform. Detection runs at
// most once per process; the result is cached for reuse.
func DetectRuntimeInfo() RuntimeInfo {
	runtimeInfoOnce.Do(func() {
		runtimeInfo = detectRuntimeInfo()
	})
	return runtimeInfo
}

// detectRuntimeInfo performs one uncached detection pass. Kubernetes is
// checked before Compute Engine: a GKE pod satisfies both, and the pod
// identity is the more specific of the two.
func detectRuntimeInfo() RuntimeInfo {
	ctx, cancel := context.WithTimeout(context.Background(), metadataTimeout)
	defer cancel()

	info := RuntimeInfo{}
	if detectKubernetes(ctx, &info) {
		return info
	}
	if detectComputeEngine(ctx, &info) {
		return info
	}
	return info
}

// detectKubernetes populates info when running inside a Kubernetes pod.
// Cluster name and location come from instance attributes when the node is
// a GCE VM, which covers GKE.
func detectKubernetes(ctx context.Context, info *RuntimeInfo) bool {
	if trimmedEnv("KUBERNETES_SERVICE_HOST") == "" {
		return false
	}

	fields := map[string]any{"platform": "kubernetes"}

	if namespace := firstNonEmpty(readNamespaceFile(), trimmedEnv("NAMESPACE_NAME"), trimmedEnv("NAMESPACE")); namespace != "" {
		fields["kubernetes_namespace"] = namespace
	}
	if pod := firstNonEmpty(trimmedEnv("POD_NAME"), trimmedEnv("HOSTNAME")); pod != "" {
		fields["kubernetes_pod"] = pod
	}
	if container := trimmedEnv("CONTAINER_NAME"); container != "" {
		fields["kubernetes_container"] = container
	}
	if service := trimmedEnv("K_SERVICE"); service != "" {
		fields["service"] = service
	}

	if gceProbe.onGCE() {
		if cluster, err := gceProbe.attribute(ctx, "cluster-name"); err == nil && cluster != "" {
			fields["kubernetes_cluster"] = cluster
		}
		if location, err := gceProbe.attribute(ctx, "cluster-location"); err == nil && location != "" {
			fields["kubernetes_location"] = location
		}
		if host, err := gceProbe.hostname(ctx); err == nil {
			info.Hostname = strings.TrimSpace(host)
		}
	}

	info.Platform = "kubernetes"
	info.Fields = fields
	return true
}

// detectComputeEngine populates info when running directly on a GCE VM.
func detectComputeEngine(ctx context.Context, info *RuntimeInfo) bool {
	if !gceProbe.onGCE() {
		return false
	}

	fields := map[string]any{"platform": "gce"}

	if name, err := gceProbe.instanceName(ctx); err == nil && name != "" {
		fields["gce_instance"] = name
	}
	if id, err := gceProbe.instanceID(ctx); err == nil && id != "" {
		fields["gce_instance_id"] = id
	}
	if zone, err := gceProbe.zone(ctx); err == nil && zone != "" {
		fields["gce_zone"] = zone
	}
	if project, err := gceProbe.projectID(ctx); err == nil && project != "" {
		fields["gce_project"] = project
	}
	if host, err := gceProbe.hostname(ctx); err == nil {
		info.Hostname = strings.TrimSpace(host)
	}

	info.Platform = "gce"
	info.Fields = fields
	return true
}

// trimmedEnv reads an environment variable and trims surrounding whitespace.
func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// firstNonEmpty returns the first value that is non-empty after trimming.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// namespaceFile is the downward API path holding the pod namespace. Tests
// point it at a fixture.
var namespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// readNamespaceFile reads the Kubernetes namespace from the serviceaccount
// secret, returning "" when the file is absent.
func readNamespaceFile() string {
	data, err := os.ReadFile(namespaceFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// metadataTimeout bounds every metadata server interaction; detection must
// never stall process startup.
const metadataTimeout = 2 * time.Second

// metadataProbe groups the metadata server accessors used during detection
// so tests can substitute canned responses without network access.
type metadataProbe struct {
	onGCE        func() bool
	projectID    func(context.Context) (string, error)
	instanceID   func(context.Context) (string, error)
	instanceName func(context.Context) (string, error)
	zone         func(context.Context) (string, error)
	hostname     func(context.Context) (string, error)
	attribute    func(context.Context, string) (string, error)
}

var gceProbe = metadataProbe{
	onGCE:        metadata.OnGCE,
	projectID:    metadata.ProjectIDWithContext,
	instanceID:   metadata.InstanceIDWithContext,
	instanceName: metadata.InstanceNameWithContext,
	zone:         metadata.ZoneWithContext,
	hostname:     metadata.HostnameWithContext,
	attribute:    metadata.InstanceAttributeValueWithContext,
}
