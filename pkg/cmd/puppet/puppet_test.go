package puppet

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	utilexec "k8s.io/utils/exec"
	testingexec "k8s.io/utils/exec/testing"

	"github.com/nuagenetworks/tripleo-config/pkg/cmd"
	"github.com/nuagenetworks/tripleo-config/pkg/container"
	"github.com/nuagenetworks/tripleo-config/pkg/executor"
	"github.com/nuagenetworks/tripleo-config/pkg/startupconfig"
)

type recorder struct {
	argv [][]string
}

func (r *recorder) run(status int) testingexec.FakeCommandAction {
	return func(cmd string, args ...string) utilexec.Cmd {
		r.argv = append(r.argv, append([]string{cmd}, args...))
		fake := &testingexec.FakeCmd{
			RunScript: []testingexec.FakeAction{
				func() ([]byte, []byte, error) {
					if status != 0 {
						return nil, nil, &testingexec.FakeExitError{Status: status}
					}
					return nil, nil, nil
				},
			},
		}
		return testingexec.InitFakeCmd(fake, cmd, args...)
	}
}

func (r *recorder) output(stdout string) testingexec.FakeCommandAction {
	return func(cmd string, args ...string) utilexec.Cmd {
		r.argv = append(r.argv, append([]string{cmd}, args...))
		fake := &testingexec.FakeCmd{
			OutputScript: []testingexec.FakeAction{
				func() ([]byte, []byte, error) { return []byte(stdout), nil, nil },
			},
		}
		return testingexec.InitFakeCmd(fake, cmd, args...)
	}
}

func TestValidatePopulatesFromEnvironment(t *testing.T) {
	t.Setenv("CONTAINER_CLI", "docker")
	t.Setenv("PROCESS_COUNT", "3")
	t.Setenv("CONFIG_VOLUME", "nova")
	t.Setenv("STEP", "2")

	o := NewOptions()
	o.Step = "5"
	require.NoError(t, cmd.Validate(o, nil, nil))

	assert.Equal(t, "docker", o.ContainerCLI)
	assert.Equal(t, 3, o.ProcessCount)
	assert.Equal(t, "nova", o.ConfigVolume)
	assert.Equal(t, "5", o.Step, "flags win over the environment")
}

func TestValidateRejectsUnknownEngine(t *testing.T) {
	o := NewOptions()
	o.ContainerCLI = "rkt"

	err := o.Validate(nil, nil)
	var configErr *container.ConfigurationError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "rkt", configErr.Engine)
}

func TestValidateStructTags(t *testing.T) {
	o := NewOptions()
	o.MountHostPuppet = "maybe"
	assert.Error(t, cmd.Validate(o, nil, nil))

	o = NewOptions()
	o.StartupConfigPattern = "/var/lib/[*.json"
	assert.Error(t, cmd.Validate(o, nil, nil))

	o = NewOptions()
	o.ProcessCount = -1
	assert.Error(t, o.Validate(nil, nil))
}

func TestCompleteDefaults(t *testing.T) {
	o := NewOptions()
	require.NoError(t, o.Complete(nil))

	assert.Equal(t, DefaultConfig, o.Config)
	assert.Equal(t, "podman", o.ContainerCLI)
	assert.Equal(t, "6", o.Step)
	assert.Equal(t, "true", o.MountHostPuppet)
	assert.Equal(t, container.DefaultLogPath, o.ContainerLogStdoutPath)
	assert.Equal(t, startupconfig.DefaultPattern, o.StartupConfigPattern)
	assert.Equal(t, container.DefaultConfigVolumePrefix, o.ConfigVolumePrefix)
	assert.Equal(t, 0, o.ProcessCount)
}

func TestCompleteMakesPrefixAbsolute(t *testing.T) {
	o := NewOptions()
	o.ConfigVolumePrefix = "config-data/"
	require.NoError(t, o.Complete(nil))
	assert.True(t, filepath.IsAbs(o.ConfigVolumePrefix))
	assert.Equal(t, "config-data", filepath.Base(o.ConfigVolumePrefix))
}

func TestExecute(t *testing.T) {
	root := t.TempDir()
	prefix := filepath.Join(root, "config-data")
	startup := filepath.Join(root, "startup", "step_1")
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "nova"), 0755))
	require.NoError(t, os.MkdirAll(startup, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(prefix, "nova.md5sum"), []byte("c0ffee\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(startup, "nova_api.json"),
		[]byte(`{"volumes": ["`+prefix+`/nova/etc/nova:/etc/nova:ro"]}`), 0644))

	config := filepath.Join(root, "container-puppet.json")
	require.NoError(t, os.WriteFile(config, []byte(`[
		{"config_volume": "nova", "puppet_tags": "nova_config", "step_config": "include ::tripleo::profile::base::nova::api", "config_image": "nova-api:1"},
		{"config_volume": "nova", "puppet_tags": "nova_paste_api_ini", "step_config": "include ::tripleo::profile::base::nova::metadata", "config_image": "nova-api:1"},
		{"config_volume": "heat", "step_config": "include ::heat", "config_image": ""},
		{"config_volume": "keystone", "step_config": "include ::tripleo::profile::base::keystone", "config_image": "keystone:1", "keep_container": true}
	]`), 0644))

	o := NewOptions()
	o.Config = config
	o.ContainerCLI = "docker"
	o.ProcessCount = 1
	o.ConfigVolumePrefix = prefix
	o.StartupConfigPattern = filepath.Join(root, "startup", "*", "*.json")
	require.NoError(t, o.Complete(nil))

	r := &recorder{}
	fake := &testingexec.FakeExec{CommandScript: []testingexec.FakeCommandAction{
		r.output("controller-0\n"),
		// nova
		r.run(1), r.run(0), r.run(2), r.run(0),
		// keystone
		r.run(1), r.run(0), r.run(0), r.run(0),
	}}

	err := o.Execute(context.Background(), log.NewNopLogger(), fake)
	require.NoError(t, err)

	require.Len(t, r.argv, 9)
	assert.Equal(t, []string{"hostname", "-s"}, r.argv[0])
	assert.Equal(t, []string{"/usr/bin/docker", "inspect", "nova-api:1"}, r.argv[2])

	novaRun := strings.Join(r.argv[3], " ")
	assert.Contains(t, novaRun, "--env PUPPET_TAGS=file,file_line,concat,augeas,cron,nova_config,nova_paste_api_ini")
	assert.Contains(t, novaRun, "--env HOSTNAME=controller-0")
	assert.Contains(t, novaRun, prefix+":/var/lib/config-data/:rw")
	assert.Contains(t, novaRun, " --rm ")
	assert.Equal(t, "nova-api:1", r.argv[3][len(r.argv[3])-1])

	keystoneRun := strings.Join(r.argv[7], " ")
	assert.NotContains(t, keystoneRun, " --rm ")
	assert.Equal(t, "keystone:1", r.argv[7][len(r.argv[7])-1])

	for _, argv := range r.argv {
		assert.NotContains(t, strings.Join(argv, " "), "heat", "jobs without an image are dropped")
	}

	stamped, err := os.ReadFile(filepath.Join(startup, "hashed-nova_api.json"))
	require.NoError(t, err)
	assert.Contains(t, string(stamped), `"TRIPLEO_CONFIG_HASH": "c0ffee"`)
}

func TestExecuteMissingConfig(t *testing.T) {
	o := NewOptions()
	o.Config = filepath.Join(t.TempDir(), "missing.json")
	o.ConfigVolumePrefix = t.TempDir()
	require.NoError(t, o.Complete(nil))

	err := o.Execute(context.Background(), log.NewNopLogger(), &testingexec.FakeExec{})
	assert.Error(t, err)
}

func TestExecuteCancelledRunStillStamps(t *testing.T) {
	root := t.TempDir()
	startup := filepath.Join(root, "startup")
	require.NoError(t, os.MkdirAll(startup, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(startup, "nova.json"), []byte(`{}`), 0644))
	config := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(config, []byte("- [nova, '', 'include ::nova', 'nova:1']\n"), 0644))

	o := NewOptions()
	o.Config = config
	o.ContainerCLI = "docker"
	o.ConfigVolumePrefix = filepath.Join(root, "config-data")
	o.StartupConfigPattern = filepath.Join(startup, "*.json")
	require.NoError(t, o.Complete(nil))

	r := &recorder{}
	fake := &testingexec.FakeExec{CommandScript: []testingexec.FakeCommandAction{r.output("compute-0")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Execute(ctx, log.NewNopLogger(), fake)

	var failed *executor.ErrJobsFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, []string{"nova"}, failed.ConfigVolumes)
	assert.Len(t, r.argv, 1)
	assert.FileExists(t, filepath.Join(startup, "hashed-nova.json"))
	assert.DirExists(t, o.ConfigVolumePrefix)
}
