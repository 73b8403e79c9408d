package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ticket721/actionset/agent"
	"github.com/ticket721/actionset/analytics"
	"github.com/ticket721/actionset/config"
	"github.com/ticket721/actionset/logger"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/service"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const OUTPUT_JSON = "json"
const OUTPUT_YAML = "yaml"

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.String("config-file", "", "Path to config file.")
	flags.String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	flags.String("namespace", "actionset", "namespace used in storage")
	flags.String("redis-password", "", "redis password")
	flags.Int("redis-pool-size", 0, "redis connection pool size, 0 for the client default")
	flags.String("cassandra-hosts", "localhost:9042", "comma separated list of cassandra hosts")
	flags.String("cassandra-keyspace", "actionset", "cassandra keyspace")
	flags.String("storage-impl", "redis", "implementation of action set storage (redis, cassandra, memory)")
	flags.String("queue-impl", "redis", "implementation of job queues (redis, memory)")
	flags.Int("input-workers", 4, "workers processing input jobs")
	flags.Int("event-workers", 4, "workers processing event jobs")
	flags.Int("batch-size", 10, "jobs polled per worker and tick")
	flags.Duration("poll-interval", 200*time.Millisecond, "job queue poll interval")
	flags.Int("max-attempts", 3, "runs of a job before it stays failed")
	flags.String("retry-policy", string(config.RETRY_POLICY_BACKOFF), "delay between job runs (fixed, backoff)")
	flags.Duration("retry-after", time.Second, "base delay before a failed job runs again")
	flags.Duration("job-timeout", time.Minute, "time a job may stay active before it is retried")
	flags.Duration("scheduler-interval", time.Second, "stale event scan interval")
	flags.Duration("staleness", config.DEFAULT_STALENESS, "age of an event dispatch before it is re-dispatched")
	flags.Int("scheduler-batch-size", 100, "stale action sets re-dispatched per scan")
	flags.String("analytics-file", "", "file receiving step analytics, disabled when empty")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("development", false, "human readable logs")
	return viper.BindPFlags(flags)
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.RedisConfig.Password = viper.GetString("redis-password")
	c.cfg.RedisConfig.PoolSize = viper.GetInt("redis-pool-size")
	c.cfg.CassandraConfig.Addrs = strings.Split(viper.GetString("cassandra-hosts"), ",")
	c.cfg.CassandraConfig.KeySpace = viper.GetString("cassandra-keyspace")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.QueueType = config.QueueType(viper.GetString("queue-impl"))
	c.cfg.ExecutorConfig = config.ExecutorConfig{
		InputWorkers: viper.GetInt("input-workers"),
		EventWorkers: viper.GetInt("event-workers"),
		BatchSize:    viper.GetInt("batch-size"),
		PollInterval: viper.GetDuration("poll-interval"),
		MaxAttempts:  viper.GetInt("max-attempts"),
		RetryPolicy:  config.RetryPolicy(viper.GetString("retry-policy")),
		RetryAfter:   viper.GetDuration("retry-after"),
		JobTimeout:   viper.GetDuration("job-timeout"),
	}
	c.cfg.SchedulerConfig = config.SchedulerConfig{
		Interval:  viper.GetDuration("scheduler-interval"),
		Staleness: viper.GetDuration("staleness"),
		BatchSize: viper.GetInt("scheduler-batch-size"),
	}
	if file := viper.GetString("analytics-file"); file != "" {
		c.cfg.AnalyticsConfig = analytics.DataCollectorConfig{FileName: file, CollectorType: analytics.LOG_FILE_DATA_COLLECTOR}
	} else {
		c.cfg.AnalyticsConfig = analytics.DataCollectorConfig{CollectorType: analytics.NOOP_DATA_COLLECTOR}
	}
	switch c.cfg.ExecutorConfig.RetryPolicy {
	case config.RETRY_POLICY_FIXED, config.RETRY_POLICY_BACKOFF:
	default:
		return fmt.Errorf("unknown retry policy %q", c.cfg.ExecutorConfig.RetryPolicy)
	}
	c.cfg.LogLevel = viper.GetString("log-level")
	c.cfg.Development = viper.GetBool("development")
	return logger.Init(c.cfg.LogLevel, c.cfg.Development)
}

// run serves until a signal arrives or a background loop fails.
func (c *cli) run(cmd *cobra.Command, args []string) error {
	a, err := agent.New(c.cfg.Config)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		_ = a.Shutdown()
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigc:
		logger.Info("received signal", zap.String("signal", sig.String()))
	case runErr = <-a.Failures():
		logger.Error("background failure, shutting down", zap.Error(runErr))
	}
	if err := a.Shutdown(); err != nil {
		return err
	}
	return runErr
}

// withService runs fn against a service backed by the configured storage,
// without starting the executors.
func (c *cli) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.ActionSetService) (*model.ActionSet, error)) error {
	a, err := agent.New(c.cfg.Config)
	if err != nil {
		return err
	}
	as, err := fn(cmd.Context(), a.Service())
	if shutdownErr := a.Shutdown(); err == nil {
		err = shutdownErr
	}
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	return render(cmd.OutOrStdout(), as, output)
}

func (c *cli) buildCmd() *cobra.Command {
	var caller, rawArgs string
	var internal bool
	cmd := &cobra.Command{
		Use:   "build <name>",
		Short: "Build a new action set from a registered workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var buildArgs map[string]any
			if rawArgs != "" {
				if err := json.Unmarshal([]byte(rawArgs), &buildArgs); err != nil {
					return fmt.Errorf("--args: %w", err)
				}
			}
			return c.withService(cmd, func(ctx context.Context, svc *service.ActionSetService) (*model.ActionSet, error) {
				return svc.Build(ctx, args[0], model.User{Id: caller}, buildArgs, internal)
			})
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", "id of the user owning the action set")
	cmd.Flags().StringVar(&rawArgs, "args", "", "builder arguments as a JSON object")
	cmd.Flags().BoolVar(&internal, "internal", false, "allow private workflows")
	return cmd
}

func (c *cli) updateCmd() *cobra.Command {
	var rawData string
	cmd := &cobra.Command{
		Use:   "update <id> <index>",
		Short: "Submit data for an action and dispatch it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			data, err := parseJSON("--data", rawData)
			if err != nil {
				return err
			}
			return c.withService(cmd, func(ctx context.Context, svc *service.ActionSetService) (*model.ActionSet, error) {
				return svc.UpdateAction(ctx, args[0], idx, data)
			})
		},
	}
	cmd.Flags().StringVar(&rawData, "data", "null", "action data as JSON")
	return cmd
}

func (c *cli) errorCmd() *cobra.Command {
	var reason, rawDetails string
	cmd := &cobra.Command{
		Use:   "error <id> <index>",
		Short: "Force an action into the error state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			details, err := parseJSON("--details", rawDetails)
			if err != nil {
				return err
			}
			return c.withService(cmd, func(ctx context.Context, svc *service.ActionSetService) (*model.ActionSet, error) {
				return svc.ErrorStep(ctx, args[0], reason, details, idx)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "error reported on the action")
	cmd.Flags().StringVar(&rawDetails, "details", "null", "error details as JSON")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a stored action set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *service.ActionSetService) (*model.ActionSet, error) {
				return svc.Get(ctx, args[0])
			})
		},
	}
}

func parseIndex(s string) (int, error) {
	var idx int
	if _, err := fmt.Sscanf(s, "%d", &idx); err != nil {
		return 0, fmt.Errorf("invalid action index %q", s)
	}
	return idx, nil
}

func parseJSON(flag string, s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("%s: %w", flag, err)
	}
	return v, nil
}

// render prints the stored shape of as, keeping the JSON field names in
// yaml output.
func render(w io.Writer, as *model.ActionSet, output string) error {
	raw, err := as.Raw()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	switch output {
	case "", OUTPUT_JSON:
		_, err = fmt.Fprintln(w, string(b))
		return err
	case OUTPUT_YAML:
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", output)
}

func newRootCmd() *cobra.Command {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:               "actionset",
		Short:             "ActionSet workflow engine",
		PersistentPreRunE: cli.setupConfig,
		RunE:              cli.run,
		SilenceUsage:      true,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the job executors and the event scheduler",
		RunE:  cli.run,
	})
	for _, sub := range []*cobra.Command{cli.buildCmd(), cli.updateCmd(), cli.errorCmd(), cli.getCmd()} {
		sub.Flags().StringP("output", "o", OUTPUT_JSON, "output format (json, yaml)")
		cmd.AddCommand(sub)
	}
	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
