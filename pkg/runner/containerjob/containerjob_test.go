package containerjob

import (
	"context"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/askui/askui-runner/pkg/config"
	"github.com/askui/askui-runner/pkg/queue"
)

const namespace = "test-namespace"

func testConfig() config.K8SJobRunner {
	return config.K8SJobRunner{
		Namespace:    namespace,
		SharedMemory: "512Mi",
		RunnerContainer: config.ContainerSpec{
			Image: "askui/runner:latest",
			Resources: config.ContainerResources{
				Requests: map[string]string{"cpu": "500m"},
			},
		},
		ControllerContainer: config.ContainerSpec{Image: "askui/controller:latest"},
	}
}

func identityFactory(data queue.JobData) config.Config {
	return config.Config{Entrypoint: config.EntrypointJob, JobTimeout: 3600}
}

func testJob() queue.Job {
	return queue.Job{ID: "job-1", Ack: "ack-1", RunnerID: "r1", Tries: 1}
}

func TestStartCreatesJobAndConfigMap(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	r := New(testr.New(t), testConfig(), identityFactory, clientset)

	require.NoError(t, r.Start(testJob()))

	jobs, err := clientset.BatchV1().Jobs(namespace).List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, jobs.Items, 1)

	job := jobs.Items[0]
	assert.Len(t, job.Spec.Template.Spec.Containers, 2)
	assert.Equal(t, "askui-runner", job.Spec.Template.Spec.Containers[0].Name)
	assert.Equal(t, "askui-controller", job.Spec.Template.Spec.Containers[1].Name)
	assert.Equal(t, int64(3600), *job.Spec.ActiveDeadlineSeconds)
	assert.Equal(t, "job-1", job.Labels["askui.com/runner-job-id"])

	cms, err := clientset.CoreV1().ConfigMaps(namespace).List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, cms.Items, 1)
	assert.Contains(t, cms.Items[0].Data["config.json"], `"entrypoint":"JOB"`)
}

func TestJobConfigNeverInterpolatesJSONIntoShellScript(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	r := New(testr.New(t), testConfig(), identityFactory, clientset)

	require.NoError(t, r.Start(testJob()))

	jobs, err := clientset.BatchV1().Jobs(namespace).List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	script := jobs.Items[0].Spec.Template.Spec.Containers[0].Args[0]

	assert.NotContains(t, script, "entrypoint")
	assert.Contains(t, script, configMount+"/"+configFileName)
}

func TestIsRunningReflectsJobStatus(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	r := New(testr.New(t), testConfig(), identityFactory, clientset)
	require.NoError(t, r.Start(testJob()))

	assert.True(t, r.IsRunning())

	setJobStatus(t, clientset, r.jobName, batchv1.JobStatus{Active: 1})
	assert.True(t, r.IsRunning())
	assert.False(t, r.HasPassed())
	assert.False(t, r.HasFailed())

	setJobStatus(t, clientset, r.jobName, batchv1.JobStatus{Succeeded: 1})
	assert.False(t, r.IsRunning())
	assert.True(t, r.HasPassed())
	assert.False(t, r.HasFailed())
}

func TestHasFailedReflectsJobStatus(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	r := New(testr.New(t), testConfig(), identityFactory, clientset)
	require.NoError(t, r.Start(testJob()))

	setJobStatus(t, clientset, r.jobName, batchv1.JobStatus{Failed: 1})

	assert.False(t, r.IsRunning())
	assert.False(t, r.HasPassed())
	assert.True(t, r.HasFailed())
}

func TestStopDeletesJobAndConfigMap(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	r := New(testr.New(t), testConfig(), identityFactory, clientset)
	require.NoError(t, r.Start(testJob()))

	r.Stop()

	jobs, err := clientset.BatchV1().Jobs(namespace).List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, jobs.Items)

	cms, err := clientset.CoreV1().ConfigMaps(namespace).List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, cms.Items)
}

func setJobStatus(t *testing.T, clientset *fake.Clientset, name string, status batchv1.JobStatus) {
	t.Helper()
	job, err := clientset.BatchV1().Jobs(namespace).Get(context.Background(), name, metav1.GetOptions{})
	require.NoError(t, err)
	job.Status = status
	_, err = clientset.BatchV1().Jobs(namespace).UpdateStatus(context.Background(), job, metav1.UpdateOptions{})
	require.NoError(t, err)
}
