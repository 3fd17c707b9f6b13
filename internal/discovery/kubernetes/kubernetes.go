// Package kubernetes discovers tool servers exposed as Kubernetes Services.
//
// Services labelled switchyard.io/tool-server=true are registered as
// containerized backends reachable through cluster DNS. Annotations refine
// the registration:
//
//	switchyard.io/name      registration name (default: <service>.<namespace>)
//	switchyard.io/protocol  http (default), websocket, mcp-http
//	switchyard.io/port      port name or number (default: first port)
//	switchyard.io/path      path appended to the location
//	switchyard.io/priority  high, medium or low
//	switchyard.io/tags      comma separated tags
//	switchyard.io/required  "true" marks the service as required
package kubernetes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
	strutil "switchyard/pkg/strings"
)

const (
	// ScannerName identifies this scanner in ownership and summaries.
	ScannerName = "kubernetes"

	// ToolServerLabel selects the Services this scanner registers.
	ToolServerLabel = "switchyard.io/tool-server"

	subsystem = "KubernetesScanner"

	annotationPrefix   = "switchyard.io/"
	annotationName     = annotationPrefix + "name"
	annotationProtocol = annotationPrefix + "protocol"
	annotationPort     = annotationPrefix + "port"
	annotationPath     = annotationPrefix + "path"
	annotationPriority = annotationPrefix + "priority"
	annotationTags     = annotationPrefix + "tags"
	annotationRequired = annotationPrefix + "required"
)

// Scanner lists labelled Services through the Kubernetes API.
type Scanner struct {
	client        client.Client
	namespace     string
	selector      labels.Selector
	clusterDomain string
}

// NewScanner creates a scanner from a REST config.
//
// Args:
//   - restConfig: Kubernetes REST configuration for API access
//   - namespace: Namespace to scan (empty string scans all namespaces)
//
// Returns:
//   - *Scanner: The configured scanner
//   - error: Error if the client cannot be created
func NewScanner(restConfig *rest.Config, namespace string) (*Scanner, error) {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))

	c, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return NewScannerWithClient(c, namespace), nil
}

// NewScannerWithClient creates a scanner around an existing client.
func NewScannerWithClient(c client.Client, namespace string) *Scanner {
	return &Scanner{
		client:        c,
		namespace:     namespace,
		selector:      labels.SelectorFromSet(labels.Set{ToolServerLabel: "true"}),
		clusterDomain: "svc",
	}
}

// SetLabelSelector replaces the default tool-server label selector.
// An empty expression keeps the default.
func (s *Scanner) SetLabelSelector(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	sel, err := labels.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid label selector %q: %w", expr, err)
	}
	s.selector = sel
	return nil
}

// GetRestConfig returns the Kubernetes REST configuration from kubeconfig or
// the in-cluster environment.
func GetRestConfig() (*rest.Config, error) {
	return ctrl.GetConfig()
}

// Name implements discovery.Scanner.
func (s *Scanner) Name() string { return ScannerName }

// Scan lists labelled Services and converts each into a registration.
func (s *Scanner) Scan(ctx context.Context) ([]api.ServiceRegistration, error) {
	var list corev1.ServiceList
	opts := []client.ListOption{client.MatchingLabelsSelector{Selector: s.selector}}
	if s.namespace != "" {
		opts = append(opts, client.InNamespace(s.namespace))
	}
	if err := s.client.List(ctx, &list, opts...); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	regs := make([]api.ServiceRegistration, 0, len(list.Items))
	for i := range list.Items {
		svc := &list.Items[i]
		reg, err := s.registrationFor(svc)
		if err != nil {
			logging.Warn(subsystem, "Skipping service %s/%s: %v", svc.Namespace, svc.Name, err)
			continue
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

func (s *Scanner) registrationFor(svc *corev1.Service) (api.ServiceRegistration, error) {
	ann := svc.Annotations

	name := ann[annotationName]
	if name == "" {
		name = svc.Name + "." + svc.Namespace
	}

	protocol := api.Protocol(ann[annotationProtocol])
	if protocol == "" {
		protocol = api.ProtocolHTTP
	}
	switch protocol {
	case api.ProtocolHTTP, api.ProtocolWebSocket, api.ProtocolMCPHTTP:
	default:
		return api.ServiceRegistration{}, fmt.Errorf("protocol %q is not reachable through a Service", protocol)
	}

	port, err := servicePort(svc, ann[annotationPort])
	if err != nil {
		return api.ServiceRegistration{}, err
	}

	scheme := "http"
	if protocol == api.ProtocolWebSocket {
		scheme = "ws"
	}
	path := ann[annotationPath]
	if path == "" && protocol == api.ProtocolMCPHTTP {
		path = "/mcp"
	}

	reg := api.ServiceRegistration{
		Name:     name,
		Kind:     api.KindContainerized,
		Location: fmt.Sprintf("%s://%s.%s.%s:%d%s", scheme, svc.Name, svc.Namespace, s.clusterDomain, port, path),
		Protocol: protocol,
		Priority: api.Priority(ann[annotationPriority]),
		Tags:     strutil.SplitList(ann[annotationTags]),
		Config:   map[string]interface{}{"namespace": svc.Namespace},
	}
	if req, err := strconv.ParseBool(ann[annotationRequired]); err == nil {
		reg.Required = req
	}
	return reg, nil
}

// servicePort resolves the port annotation (name or number) against the
// Service's ports. Without an annotation the first port is used.
func servicePort(svc *corev1.Service, want string) (int32, error) {
	if len(svc.Spec.Ports) == 0 {
		return 0, fmt.Errorf("service has no ports")
	}
	if want == "" {
		return svc.Spec.Ports[0].Port, nil
	}
	for _, p := range svc.Spec.Ports {
		if p.Name == want || strconv.Itoa(int(p.Port)) == want {
			return p.Port, nil
		}
	}
	return 0, fmt.Errorf("port %s not found", want)
}
