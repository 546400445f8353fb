package puppet

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	utilexec "k8s.io/utils/exec"

	"github.com/nuagenetworks/tripleo-config/pkg/cmd"
	"github.com/nuagenetworks/tripleo-config/pkg/container"
	"github.com/nuagenetworks/tripleo-config/pkg/executor"
	"github.com/nuagenetworks/tripleo-config/pkg/jobs"
	"github.com/nuagenetworks/tripleo-config/pkg/metrics"
	"github.com/nuagenetworks/tripleo-config/pkg/startupconfig"
	logutil "github.com/nuagenetworks/tripleo-config/pkg/util/log"
)

const (
	DefaultConfig          = "/var/lib/container-puppet/container-puppet.json"
	DefaultContainerCLI    = "podman"
	DefaultMountHostPuppet = "true"
)

func NewCommand(name string) *cobra.Command {
	o := NewOptions()
	c := &cobra.Command{
		Use:   name,
		Short: "Generates service configuration by running puppet in containers",
		Long: `Runs the puppet configuration jobs listed in the config file, one container per config volume,
and stamps the resulting config hashes into the container startup configs.`,
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			if err := cmd.Validate(o, c, args); err != nil {
				return err
			}
			if err := o.Complete(args); err != nil {
				return err
			}
			return o.Run(c)
		},
	}
	o.BindFlags(c.Flags())

	c.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	return c
}

func NewOptions() *Options {
	return &Options{}
}

// Options are read from flags first, unset ones are taken from the
// environment and whatever is still unset gets its default in Complete.
type Options struct {
	Config                 string `env:"CONFIG"`
	ContainerCLI           string `env:"CONTAINER_CLI"`
	ProcessCount           int    `env:"PROCESS_COUNT"`
	ConfigVolume           string `env:"CONFIG_VOLUME"`
	Debug                  bool   `env:"DEBUG"`
	Step                   string `env:"STEP"`
	NetHost                bool   `env:"NET_HOST"`
	NoArchive              string `env:"NO_ARCHIVE"`
	CheckMode              bool   `env:"CHECK_MODE"`
	ShowDiff               bool   `env:"SHOW_DIFF"`
	MountHostPuppet        string `env:"MOUNT_HOST_PUPPET" valid:"in(true|false)"`
	ContainerLogStdoutPath string `env:"CONTAINER_LOG_STDOUT_PATH"`
	StartupConfigPattern   string `env:"STARTUP_CONFIG_PATTERN" valid:"glob"`
	ConfigVolumePrefix     string `env:"CONFIG_VOLUME_PREFIX"`
	MetricsTextfile        string `env:"METRICS_TEXTFILE"`
}

func (o *Options) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.Config, "config", o.Config, "File listing the configuration jobs (JSON or YAML)")
	flags.StringVar(&o.ContainerCLI, "container-cli", o.ContainerCLI, "Container engine CLI: podman or docker")
	flags.IntVar(&o.ProcessCount, "process-count", o.ProcessCount, "Number of jobs run in parallel. Defaults to the number of CPUs")
	flags.StringVar(&o.ConfigVolume, "config-volume", o.ConfigVolume, "Only run the job for this config volume")
	flags.BoolVar(&o.Debug, "debug", o.Debug, "Log debug output, also passed on to puppet")
	flags.StringVar(&o.Step, "step", o.Step, "Deployment step exported to puppet")
	flags.BoolVar(&o.NetHost, "net-host", o.NetHost, "Run the containers in the host network namespace")
	flags.StringVar(&o.NoArchive, "no-archive", o.NoArchive, "Passed on as NO_ARCHIVE to the containers")
	flags.BoolVar(&o.CheckMode, "check-mode", o.CheckMode, "Run puppet in check mode")
	flags.BoolVar(&o.ShowDiff, "show-diff", o.ShowDiff, "Log the container diff before removing a container")
	flags.StringVar(&o.MountHostPuppet, "mount-host-puppet", o.MountHostPuppet, "Bind mount the host puppet modules (true or false)")
	flags.StringVar(&o.ContainerLogStdoutPath, "container-log-stdout-path", o.ContainerLogStdoutPath, "Directory for the container stdout logs (podman)")
	flags.StringVar(&o.StartupConfigPattern, "startup-config-pattern", o.StartupConfigPattern, "Glob matching the startup configs to stamp")
	flags.StringVar(&o.ConfigVolumePrefix, "config-volume-prefix", o.ConfigVolumePrefix, "Host directory holding the config volumes")
	flags.StringVar(&o.MetricsTextfile, "metrics-textfile", o.MetricsTextfile, "Write run metrics to this file in the prometheus text format")
}

func (o *Options) Validate(c *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errors.Errorf("unexpected arguments: %v", args)
	}
	if o.ProcessCount < 0 {
		return errors.Errorf("process count must not be negative, got %d", o.ProcessCount)
	}
	if o.ContainerCLI != "" {
		if _, err := container.ParseEngine(o.ContainerCLI); err != nil {
			return err
		}
	}
	return nil
}

func (o *Options) Complete(args []string) error {
	if o.Config == "" {
		o.Config = DefaultConfig
	}
	if o.ContainerCLI == "" {
		o.ContainerCLI = DefaultContainerCLI
	}
	if o.Step == "" {
		o.Step = container.DefaultStep
	}
	if o.MountHostPuppet == "" {
		o.MountHostPuppet = DefaultMountHostPuppet
	}
	if o.ContainerLogStdoutPath == "" {
		o.ContainerLogStdoutPath = container.DefaultLogPath
	}
	if o.StartupConfigPattern == "" {
		o.StartupConfigPattern = startupconfig.DefaultPattern
	}
	if o.ConfigVolumePrefix == "" {
		o.ConfigVolumePrefix = container.DefaultConfigVolumePrefix
	}
	prefix, err := filepath.Abs(o.ConfigVolumePrefix)
	if err != nil {
		return errors.Wrap(err, "resolving config volume prefix")
	}
	o.ConfigVolumePrefix = prefix

	_, err = container.ParseEngine(o.ContainerCLI)
	return err
}

func (o *Options) Run(c *cobra.Command) error {
	logger := logutil.NewLogger(o.Debug)
	logger = log.With(logger, "run", uuid.NewV4().String())
	logger.Log("msg", "running container-puppet", "engine", o.ContainerCLI, "config", o.Config)

	group, ctx := cmd.Runner()
	group.Add(
		func() error {
			return o.Execute(ctx, logger, logutil.NewLoggingExec(utilexec.New(), logger))
		},
		func(error) {},
	)
	return group.Run()
}

// Execute runs every configuration job and stamps the startup configs
// afterwards. Failed jobs do not stop the others, they are reported in the
// returned error once everything ran.
func (o *Options) Execute(ctx context.Context, logger log.Logger, exec utilexec.Interface) error {
	logger.Log(
		"msg", "using options",
		"config_volume_prefix", o.ConfigVolumePrefix,
		"config_volume", o.ConfigVolume,
		"check_mode", o.CheckMode,
		"v", 2,
	)
	engine, err := container.ParseEngine(o.ContainerCLI)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.ConfigVolumePrefix, 0755); err != nil {
		return errors.Wrap(err, "creating config volume prefix")
	}

	specs, err := jobs.NewLoader(o.ConfigVolume, logger).LoadFile(o.Config)
	if err != nil {
		return err
	}
	merged := jobs.Merge(specs, logger)

	client := container.NewClient(engine, exec, logger)
	client.ShowDiff = o.ShowDiff

	builder, err := container.NewInvocationBuilder(container.Environment{
		Engine:             engine,
		Hostname:           client.ShortHostname(),
		Step:               o.Step,
		NetHost:            o.NetHost,
		Debug:              o.Debug,
		NoArchive:          o.NoArchive,
		CheckMode:          o.CheckMode,
		MountHostPuppet:    o.MountHostPuppet == "true",
		LogPath:            o.ContainerLogStdoutPath,
		ConfigVolumePrefix: o.ConfigVolumePrefix,
	})
	if err != nil {
		return err
	}

	var runner executor.JobRunner = executor.NewPuppetRunner(client, builder, logger)
	runner = &executor.InstrumentingRunner{
		JobRunner:  runner,
		Latency:    metrics.JobOperationsLatency,
		Total:      metrics.JobOperationsTotal,
		Successful: metrics.JobSuccessfulOperationsTotal,
		Failed:     metrics.JobFailedOperationsTotal,
		Attempts:   metrics.JobAttemptsTotal,
	}
	runner = &executor.LoggingRunner{Runner: runner, Logger: logger}

	results := executor.New(runner, o.ProcessCount, logger).Execute(ctx, merged)
	for _, failed := range results.Failed() {
		level.Error(logger).Log("msg", "error configuring", "config_volume", failed.ConfigVolume, "status", failed.ExitCode)
	}

	stamped, err := startupconfig.NewStamper(o.ConfigVolumePrefix, logger).Stamp(o.StartupConfigPattern)
	metrics.StampedConfigsTotal.Add(float64(len(stamped)))
	if err != nil {
		return errors.Wrap(err, "stamping startup configs")
	}
	logger.Log("msg", "stamped startup configs", "count", len(stamped), "v", 1)

	if err := metrics.WriteTextfile(o.MetricsTextfile); err != nil {
		level.Warn(logger).Log("msg", "failed to write metrics", "err", err)
	}

	return results.Err()
}
