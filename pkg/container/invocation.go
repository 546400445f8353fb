package container

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nuagenetworks/tripleo-config/pkg/jobs"
)

const (
	DefaultEntrypoint         = "/var/lib/container-puppet/container-puppet.sh"
	DefaultConfigVolumePrefix = "/var/lib/config-data"
	DefaultLogPath            = "/var/log/containers/stdouts"
	DefaultStep               = "6"

	// BasePuppetTags are always applied in front of the job's own tags.
	BasePuppetTags = "file,file_line,concat,augeas,cron"

	hostPuppetModules = "/usr/share/openstack-puppet/modules/:/usr/share/openstack-puppet/modules/:ro"
	checkModeMount    = "/etc/puppet/check-mode:/tmp/puppet-check-mode:ro"
)

// Environment is the host wide part of every container invocation.
type Environment struct {
	Engine             Engine
	Hostname           string
	Step               string
	NetHost            bool
	Debug              bool
	NoArchive          string
	CheckMode          bool
	MountHostPuppet    bool
	LogPath            string
	ConfigVolumePrefix string
	Entrypoint         string
}

// InvocationBuilder renders the `run` arguments for a merged job.
type InvocationBuilder struct {
	env Environment
}

func NewInvocationBuilder(env Environment) (*InvocationBuilder, error) {
	if _, err := ParseEngine(string(env.Engine)); err != nil {
		return nil, err
	}
	if env.Step == "" {
		env.Step = DefaultStep
	}
	if env.Entrypoint == "" {
		env.Entrypoint = DefaultEntrypoint
	}
	if env.ConfigVolumePrefix == "" {
		env.ConfigVolumePrefix = DefaultConfigVolumePrefix
	}
	if env.LogPath == "" {
		env.LogPath = DefaultLogPath
	}
	return &InvocationBuilder{env: env}, nil
}

func (b *InvocationBuilder) Environment() Environment {
	return b.env
}

// PuppetTags prefixes the job tags with the tags every run needs.
func PuppetTags(tags string) string {
	if tags == "" {
		return BasePuppetTags
	}
	return BasePuppetTags + "," + tags
}

// Build returns the arguments (without the binary) for running job in a
// container called name, with the manifest read from manifestPath.
func (b *InvocationBuilder) Build(job jobs.MergedJob, name, manifestPath string) ([]string, error) {
	env := b.env
	if _, err := ParseEngine(string(env.Engine)); err != nil {
		return nil, err
	}

	args := []string{
		"run",
		// a numeric uid skips the /etc/passwd lookup that races under
		// concurrent podman starts
		"--user", "0",
		"--name", name,
		"--env", "PUPPET_TAGS=" + PuppetTags(job.Tags),
		"--env", "NAME=" + job.ConfigVolume,
		"--env", "HOSTNAME=" + env.Hostname,
		"--env", "NO_ARCHIVE=" + env.NoArchive,
		"--env", "STEP=" + env.Step,
		"--env", "NET_HOST=" + strconv.FormatBool(env.NetHost),
		"--env", "DEBUG=" + strconv.FormatBool(env.Debug),
		"--volume", "/etc/localtime:/etc/localtime:ro",
		"--volume", manifestPath + ":/etc/config.pp:ro",
		"--volume", "/etc/puppet/:/tmp/puppet-etc/:ro",
		"--volume", "/etc/pki/ca-trust/extracted:/etc/pki/ca-trust/extracted:ro",
		"--volume", "/etc/pki/tls/certs/ca-bundle.crt:/etc/pki/tls/certs/ca-bundle.crt:ro",
		"--volume", "/etc/pki/tls/certs/ca-bundle.trust.crt:/etc/pki/tls/certs/ca-bundle.trust.crt:ro",
		"--volume", "/etc/pki/tls/cert.pem:/etc/pki/tls/cert.pem:ro",
		"--volume", strings.TrimRight(env.ConfigVolumePrefix, "/") + ":/var/lib/config-data/:rw",
		"--volume", "/var/lib/container-puppet/puppetlabs/facter.conf:/etc/puppetlabs/facter/facter.conf:ro",
		"--volume", "/var/lib/container-puppet/puppetlabs/:/opt/puppetlabs/:ro",
		"--volume", "/dev/log:/dev/log:rw",
	}

	if !job.KeepContainer {
		args = append(args, "--rm")
	}
	if job.Privileged {
		args = append(args, "--privileged")
	}
	if env.Engine.SupportsLogFile() {
		args = append(args,
			"--log-driver", "k8s-file",
			"--log-opt", fmt.Sprintf("path=%s.log", strings.TrimRight(env.LogPath, "/")+"/"+name),
		)
	}
	if env.Engine == Podman {
		// podman refuses to relabel content below /usr
		args = append(args, "--security-opt", "label=disable")
	}
	if env.MountHostPuppet {
		args = append(args, "--volume", hostPuppetModules)
	}
	if env.CheckMode {
		args = append(args, "--volume", checkModeMount)
	}

	for _, volume := range job.Volumes {
		if volume != "" {
			args = append(args, "--volume", volume)
		}
	}

	args = append(args, "--entrypoint", env.Entrypoint)

	if env.NetHost {
		args = append(args, "--net", "host", "--volume", "/etc/hosts:/etc/hosts:ro")
	} else {
		args = append(args, "--net", "none")
	}

	// the entrypoint goes last, earlier mounts can shadow it
	args = append(args, "--volume", fmt.Sprintf("%s:%s:ro", env.Entrypoint, env.Entrypoint))

	return append(args, job.Image), nil
}

// ProcessEnv selects the variables of environ the engine CLI gets to see
// when running a job: podman needs PATH to find its helpers, docker needs
// the DOCKER* variables describing the daemon.
func (b *InvocationBuilder) ProcessEnv(environ []string) []string {
	env := []string{}
	for _, kv := range environ {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		switch b.env.Engine {
		case Podman:
			if key == "PATH" {
				env = append(env, kv)
			}
		case Docker:
			if strings.HasPrefix(key, "DOCKER") {
				env = append(env, kv)
			}
		}
	}
	return env
}
