// Package containerjob implements the K8S_JOB runner type: each leased job
// becomes a two-container Kubernetes batch Job (runner + UI controller)
// sharing a tmpfs exit-signal volume, polled through the Kubernetes API
// instead of a local process handle (spec.md §4.2.2).
package containerjob

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/askui/askui-runner/pkg/config"
	"github.com/askui/askui-runner/pkg/queue"
	"github.com/askui/askui-runner/pkg/runner"
)

const (
	exitSignalsMount = "/opt/exit-signals"
	configMount      = "/opt/runner-config"
	configFileName   = "config.json"
	labelPrefix      = "askui.com"
)

// Runner drives a batch/v1 Job per leased job through the Kubernetes API.
// Grounded on the original's K8sJobRunner
// (modules/queue/infrastructure/runner/k8s_job.py), adapted to the
// workspace's pkg/kubernetes client bootstrap and to client-go's
// BatchV1Interface instead of the Python kubernetes client. The per-job
// config is delivered through a mounted ConfigMap rather than interpolated
// into a shell command, which closes the original's documented "unsafe if
// JSON values include single quotes" warning.
type Runner struct {
	log       logr.Logger
	cfg       config.K8SJobRunner
	factory   runner.ConfigFactory
	clientset kubernetes.Interface

	jobName       string
	configMapName string
}

func New(log logr.Logger, cfg config.K8SJobRunner, factory runner.ConfigFactory, clientset kubernetes.Interface) *Runner {
	return &Runner{log: log, cfg: cfg, factory: factory, clientset: clientset}
}

// Start renders the job's config into a ConfigMap and submits the batch Job
// that mounts it.
func (r *Runner) Start(job queue.Job) error {
	ctx := context.Background()

	cfg := r.factory(job.Data)
	bs, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding runner config: %w", err)
	}

	name := fmt.Sprintf("askui-runner-%s-%d-%s", job.ID, job.Tries, uuid.NewString()[:8])
	r.jobName = name
	r.configMapName = name + "-config"

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: r.configMapName, Namespace: r.cfg.Namespace},
		Data:       map[string]string{configFileName: string(bs)},
	}
	if _, err := r.clientset.CoreV1().ConfigMaps(r.cfg.Namespace).Create(ctx, cm, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("creating runner config map: %w", err)
	}

	k8sJob := r.buildJob(name, job, cfg.JobTimeout)
	if _, err := r.clientset.BatchV1().Jobs(r.cfg.Namespace).Create(ctx, k8sJob, metav1.CreateOptions{}); err != nil {
		_ = r.clientset.CoreV1().ConfigMaps(r.cfg.Namespace).Delete(ctx, r.configMapName, metav1.DeleteOptions{})
		return fmt.Errorf("creating runner job: %w", err)
	}

	return nil
}

func (r *Runner) buildJob(name string, job queue.Job, jobTimeoutS int) *batchv1.Job {
	labels := map[string]string{
		"app.kubernetes.io/name":      name,
		"app.kubernetes.io/instance":  name,
		"app.kubernetes.io/component": "runner",
		"app.kubernetes.io/part-of":   "askui-runner",
		labelPrefix + "/runner-job-id": job.ID,
		labelPrefix + "/runner-id":     job.RunnerID,
	}
	if job.Data.Credentials.WorkspaceID != "" {
		labels[labelPrefix+"/workspace-id"] = job.Data.Credentials.WorkspaceID
	}

	runnerScript := fmt.Sprintf(`
askui-runner --config %s/%s;
exit_code=$?;
echo -n "$exit_code" > %s/EXIT;
exit $exit_code;
`, configMount, configFileName, exitSignalsMount)

	controllerScript := fmt.Sprintf(`
./entrypoint.sh &
while [ ! -f %[1]s/EXIT ]; do
  sleep 5;
done;
exit $(cat %[1]s/EXIT);
`, exitSignalsMount)

	volumes := []corev1.Volume{
		{
			Name:         "exit-signals",
			VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
		},
		{
			Name: "runner-config",
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: r.configMapName},
				},
			},
		},
		{
			Name: "cache-volume",
			VolumeSource: corev1.VolumeSource{
				EmptyDir: &corev1.EmptyDirVolumeSource{
					Medium:    corev1.StorageMediumMemory,
					SizeLimit: sharedMemoryQuantity(r.cfg.SharedMemory),
				},
			},
		},
	}

	var tolerations []corev1.Toleration
	for _, t := range r.cfg.Tolerations {
		tolerations = append(tolerations, corev1.Toleration{
			Key:      t.Key,
			Operator: corev1.TolerationOperator(t.Operator),
			Value:    t.Value,
			Effect:   corev1.TaintEffect(t.Effect),
		})
	}

	backoffLimit := int32(0)
	ttl := int32(120)
	deadline := int64(jobTimeoutS)

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: r.cfg.Namespace, Labels: labels},
		Spec: batchv1.JobSpec{
			TTLSecondsAfterFinished: &ttl,
			BackoffLimit:            &backoffLimit,
			ActiveDeadlineSeconds:   &deadline,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					NodeSelector:  r.cfg.NodeSelector,
					Tolerations:   tolerations,
					Containers: []corev1.Container{
						{
							Name:            "askui-runner",
							Image:           r.cfg.RunnerContainer.Image,
							ImagePullPolicy: corev1.PullAlways,
							Command:         []string{"/bin/sh", "-c"},
							Args:            []string{runnerScript},
							VolumeMounts: []corev1.VolumeMount{
								{Name: "exit-signals", MountPath: exitSignalsMount},
								{Name: "runner-config", MountPath: configMount, ReadOnly: true},
								{Name: "cache-volume", MountPath: "/dev/shm"},
							},
							Resources: containerResources(r.cfg.RunnerContainer.Resources),
						},
						{
							Name:    "askui-controller",
							Image:   r.cfg.ControllerContainer.Image,
							Command: []string{"/bin/sh", "-c"},
							Args:    []string{controllerScript},
							VolumeMounts: []corev1.VolumeMount{
								{Name: "exit-signals", MountPath: exitSignalsMount, ReadOnly: true},
								{Name: "cache-volume", MountPath: "/dev/shm"},
							},
							Resources: containerResources(r.cfg.ControllerContainer.Resources),
						},
					},
					Volumes: volumes,
				},
			},
		},
	}
}

func sharedMemoryQuantity(s string) *resource.Quantity {
	if s == "" {
		return nil
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return nil
	}
	return &q
}

func containerResources(spec config.ContainerResources) corev1.ResourceRequirements {
	var reqs corev1.ResourceRequirements
	if len(spec.Requests) > 0 {
		reqs.Requests = corev1.ResourceList{}
		for k, v := range spec.Requests {
			if q, err := resource.ParseQuantity(v); err == nil {
				reqs.Requests[corev1.ResourceName(k)] = q
			}
		}
	}
	if len(spec.Limits) > 0 {
		reqs.Limits = corev1.ResourceList{}
		for k, v := range spec.Limits {
			if q, err := resource.ParseQuantity(v); err == nil {
				reqs.Limits[corev1.ResourceName(k)] = q
			}
		}
	}
	return reqs
}

// status fetches the job's current status with a short exponential backoff,
// grounded on skaffold's use of cenkalti/backoff/v4 for Kubernetes API
// polling. A transient API error retries; a genuine "job not found" does not.
func (r *Runner) status(ctx context.Context) (*batchv1.JobStatus, error) {
	var status *batchv1.JobStatus

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	err := backoff.Retry(func() error {
		job, err := r.clientset.BatchV1().Jobs(r.cfg.Namespace).Get(ctx, r.jobName, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		status = &job.Status
		return nil
	}, b)

	return status, err
}

func (r *Runner) IsRunning() bool {
	if r.jobName == "" {
		return false
	}
	status, err := r.status(context.Background())
	if err != nil {
		r.log.Error(err, "Failed to fetch job status, treating as not running", "job", r.jobName)
		return false
	}
	return !jobSucceeded(status) && !jobFailed(status)
}

func (r *Runner) HasPassed() bool {
	if r.jobName == "" {
		return false
	}
	status, err := r.status(context.Background())
	if err != nil {
		return false
	}
	return jobSucceeded(status)
}

func (r *Runner) HasFailed() bool {
	if r.jobName == "" {
		return false
	}
	status, err := r.status(context.Background())
	if err != nil {
		return true
	}
	return jobFailed(status)
}

func jobSucceeded(status *batchv1.JobStatus) bool {
	return status.Succeeded > 0 && status.Active == 0 && status.Failed == 0
}

func jobFailed(status *batchv1.JobStatus) bool {
	return status.Failed > 0
}

// Stop deletes the Job (and its pods via foreground propagation) and the
// ConfigMap backing its config mount.
func (r *Runner) Stop() {
	if r.jobName == "" {
		return
	}
	ctx := context.Background()
	propagation := metav1.DeletePropagationForeground

	if err := r.clientset.BatchV1().Jobs(r.cfg.Namespace).Delete(ctx, r.jobName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	}); err != nil && !apierrors.IsNotFound(err) {
		r.log.Error(err, "Failed to delete runner job", "job", r.jobName)
	}

	if err := r.clientset.CoreV1().ConfigMaps(r.cfg.Namespace).Delete(ctx, r.configMapName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		r.log.Error(err, "Failed to delete runner config map", "configMap", r.configMapName)
	}
}
