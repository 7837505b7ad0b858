package kube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
	utilexec "k8s.io/client-go/util/exec"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
)

const backendName = "kube"

// ExecutorFactory returns the stream executor of a pod exec request.
type ExecutorFactory func(opts *corev1.PodExecOptions) (remotecommand.Executor, error)

// BackendConfig is the configuration for the Kubernetes backend.
type BackendConfig struct {
	Namespace string
	// Pod is the name of the already scheduled pod where commands are executed.
	Pod string
	// Container is the pod container, optional when the pod has a single container.
	Container string
	// Kubeconfig is the path to the kubeconfig file, defaults to `~/.kube/config`, and
	// to the in-cluster configuration if it doesn't exist.
	Kubeconfig string
	RESTConfig *rest.Config
	Client     kubernetes.Interface
	// NewExecutor creates the pod exec streams, defaults to SPDY executors.
	NewExecutor ExecutorFactory
	Logger      log.Logger
}

func (c *BackendConfig) defaults() error {
	if c.Pod == "" {
		return fmt.Errorf("pod is required")
	}
	if c.Namespace == "" {
		c.Namespace = "default"
	}

	if c.Client == nil || c.NewExecutor == nil {
		if c.RESTConfig == nil {
			cfg, err := clientcmd.BuildConfigFromFlags("", c.kubeconfigPath())
			if err != nil {
				return fmt.Errorf("could not load kubernetes configuration: %w", err)
			}
			c.RESTConfig = cfg
		}
		if c.Client == nil {
			cli, err := kubernetes.NewForConfig(c.RESTConfig)
			if err != nil {
				return fmt.Errorf("could not create kubernetes client: %w", err)
			}
			c.Client = cli
		}
		if c.NewExecutor == nil {
			c.NewExecutor = c.spdyExecutorFactory()
		}
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "executor.Kube", "pod": c.Namespace + "/" + c.Pod})
	return nil
}

func (c *BackendConfig) kubeconfigPath() string {
	if c.Kubeconfig != "" {
		return c.Kubeconfig
	}
	if home := homedir.HomeDir(); home != "" {
		path := filepath.Join(home, ".kube", "config")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	// Empty path makes client-go use the in-cluster configuration.
	return ""
}

func (c *BackendConfig) spdyExecutorFactory() ExecutorFactory {
	restCfg := c.RESTConfig
	cli := c.Client
	namespace := c.Namespace
	pod := c.Pod
	return func(opts *corev1.PodExecOptions) (remotecommand.Executor, error) {
		req := cli.CoreV1().RESTClient().Post().
			Resource("pods").
			Name(pod).
			Namespace(namespace).
			SubResource("exec").
			VersionedParams(opts, scheme.ParameterCodec)
		return remotecommand.NewSPDYExecutor(restCfg, "POST", req.URL())
	}
}

// Backend executes commands inside a container of an already scheduled pod.
type Backend struct {
	namespace   string
	pod         string
	container   string
	client      kubernetes.Interface
	newExecutor ExecutorFactory
	logger      log.Logger
}

// NewBackend creates a new Kubernetes backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Backend{
		namespace:   cfg.Namespace,
		pod:         cfg.Pod,
		container:   cfg.Container,
		client:      cfg.Client,
		newExecutor: cfg.NewExecutor,
		logger:      cfg.Logger,
	}, nil
}

func (b *Backend) Name() string { return backendName }

// Execute runs the command with a pod exec.
func (b *Backend) Execute(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := executor.WithTimeout(ctx, spec)
	defer cancel()

	if err := executor.ContextError(ctx, backendName, nil); err != nil {
		return nil, err
	}

	b.logger.Debugf("Executing %s", spec.Command())

	cmd := executor.NewPOSIXCommand(spec)
	exec, err := b.newExecutor(&corev1.PodExecOptions{
		Container: b.container,
		Command:   cmd.Argv,
		Stdin:     spec.Stdin != nil,
		Stdout:    true,
		Stderr:    true,
	})
	if err != nil {
		return nil, model.NewExecError(model.ErrBackendUnavailable, backendName, fmt.Errorf("could not create pod exec: %w", err), nil)
	}

	capture := executor.NewCapture(spec)
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  spec.Stdin,
		Stdout: capture.Stdout(),
		Stderr: capture.Stderr(),
	})

	if ctxErr := executor.ContextError(ctx, backendName, capture.Partial()); ctxErr != nil {
		return nil, ctxErr
	}

	exitCode := 0
	var exitErr utilexec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr) && exitErr.Exited():
		exitCode = exitErr.ExitStatus()
	case isRuntimeSpawnError(err):
		return nil, model.NewExecError(model.ErrSpawnFailure, backendName, err, capture.Partial())
	default:
		return nil, model.NewExecError(model.ErrBackendUnavailable, backendName, fmt.Errorf("pod exec stream failed: %w", err), capture.Partial())
	}

	if msg, ok := cmd.SpawnFailure(exitCode, capture.StderrTail()); ok {
		return nil, model.NewExecError(model.ErrSpawnFailure, backendName, errors.New(msg), capture.Partial())
	}

	return capture.Result(exitCode, true), nil
}

// Platform returns the platform of the node the pod is scheduled on.
func (b *Backend) Platform(ctx context.Context) (ocispec.Platform, error) {
	pod, err := b.client.CoreV1().Pods(b.namespace).Get(ctx, b.pod, metav1.GetOptions{})
	if err != nil {
		return ocispec.Platform{}, model.NewExecError(model.ErrBackendUnavailable, backendName, fmt.Errorf("could not get pod: %w", err), nil)
	}
	if pod.Spec.NodeName == "" {
		return ocispec.Platform{}, model.NewExecError(model.ErrBackendUnavailable, backendName, fmt.Errorf("pod %s is not scheduled", b.pod), nil)
	}

	node, err := b.client.CoreV1().Nodes().Get(ctx, pod.Spec.NodeName, metav1.GetOptions{})
	if err != nil {
		// Fallback to the scheduling constraints, the node could be forbidden for us.
		if nodeOS := pod.Spec.NodeSelector[corev1.LabelOSStable]; nodeOS != "" {
			b.logger.Warningf("Could not get node %s, using pod node selector: %v", pod.Spec.NodeName, err)
			return ocispec.Platform{OS: nodeOS, Architecture: pod.Spec.NodeSelector[corev1.LabelArchStable]}, nil
		}
		return ocispec.Platform{}, model.NewExecError(model.ErrBackendUnavailable, backendName, fmt.Errorf("could not get node: %w", err), nil)
	}

	return ocispec.Platform{
		OS:           node.Status.NodeInfo.OperatingSystem,
		Architecture: node.Status.NodeInfo.Architecture,
	}, nil
}

// Environ returns the environment of the pod container processes.
func (b *Backend) Environ(ctx context.Context) (model.EnvSnapshot, error) {
	exec, err := b.newExecutor(&corev1.PodExecOptions{
		Container: b.container,
		Command:   []string{"env"},
		Stdout:    true,
		Stderr:    true,
	})
	if err != nil {
		return nil, model.NewExecError(model.ErrBackendUnavailable, backendName, err, nil)
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		return nil, model.NewExecError(model.ErrBackendUnavailable, backendName, fmt.Errorf("could not get environment: %w: %s", err, strings.TrimSpace(stderr.String())), nil)
	}

	return model.ParseEnviron(strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")), nil
}

// Check checks the pod is running.
func (b *Backend) Check(ctx context.Context) []model.CheckResult {
	pod, err := b.client.CoreV1().Pods(b.namespace).Get(ctx, b.pod, metav1.GetOptions{})
	if err != nil {
		return []model.CheckResult{{ID: "kube_pod", Message: fmt.Sprintf("Could not get pod %s/%s: %s", b.namespace, b.pod, err), Status: model.CheckStatusError}}
	}

	if pod.Status.Phase != corev1.PodRunning {
		return []model.CheckResult{{ID: "kube_pod", Message: fmt.Sprintf("Pod %s/%s is %s", b.namespace, b.pod, pod.Status.Phase), Status: model.CheckStatusError}}
	}

	return []model.CheckResult{{ID: "kube_pod", Message: fmt.Sprintf("Pod %s/%s is running on %s", b.namespace, b.pod, pod.Spec.NodeName), Status: model.CheckStatusOK}}
}

// isRuntimeSpawnError returns true if the container runtime couldn't start the command.
func isRuntimeSpawnError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "executable file not found") || strings.Contains(msg, "OCI runtime exec failed")
}
