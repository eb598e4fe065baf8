package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mohitkumar/stepflow/agent"
	"github.com/mohitkumar/stepflow/analytics"
	"github.com/mohitkumar/stepflow/config"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	d := config.Default()
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", strings.Join(d.RedisConfig.Addrs, ","), "comma separated list of redis host:port")
	cmd.Flags().String("redis-password", "", "redis password")
	cmd.Flags().String("namespace", d.RedisConfig.Namespace, "namespace used in storage")
	cmd.Flags().Int("http-port", d.HttpPort, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", string(d.StorageType), "implementation of underline storage, redis or memory")
	cmd.Flags().Int("executor-workers", d.ExecutorWorkers, "number of state execution workers")
	cmd.Flags().Int("executor-capacity", d.ExecutorCapacity, "state execution queue capacity")
	cmd.Flags().Int("partition-count", d.PartitionCount, "number of storage partitions")
	cmd.Flags().String("log-level", d.LogLevel, "log level")
	cmd.Flags().Bool("development", false, "human readable logs")
	cmd.Flags().String("service-name", d.ServiceName, "service name events must be addressed to")
	cmd.Flags().String("stream", d.ConsumerConfig.Stream, "base name of the event streams")
	cmd.Flags().String("consumer-group", d.ConsumerConfig.Group, "consumer group of the event streams")
	cmd.Flags().String("consumer-name", d.ConsumerConfig.ConsumerName, "consumer name inside the group")
	cmd.Flags().Int("batch-size", d.ConsumerConfig.BatchSize, "messages read per poll")
	cmd.Flags().Duration("read-wait", d.ConsumerConfig.ReadWait, "max wait of a single poll")
	cmd.Flags().Duration("framework-down-wait", d.ConsumerConfig.FrameworkDownWait, "back off when the stream is unreachable")
	cmd.Flags().Duration("redeliver-after", d.ConsumerConfig.RedeliverAfter, "idle time after which unacknowledged messages are claimed again")
	cmd.Flags().Duration("dedup-ttl", d.ConsumerConfig.DedupTTL, "how long a processed message id is remembered")
	cmd.Flags().Bool("disable-consumers", false, "do not consume event streams")
	cmd.Flags().String("analytics-file", "", "file state analytics are written to, empty disables them")
	cmd.Flags().Duration("maintenance-poll", d.MaintenancePoll, "maintenance flag refresh interval")
	cmd.Flags().Duration("wait-timeout-poll", d.WaitTimeoutPoll, "wait deadline check interval")
	cmd.Flags().Duration("response-ttl", d.ResponseTTL, "how long a notify nobody waits on is kept")
	cmd.Flags().StringSlice("definitions", nil, "state machine definition files loaded at start")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	// .env is optional
	_ = godotenv.Load()
	viper.SetEnvPrefix("stepflow")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if len(configFile) > 0 {
		viper.SetConfigFile(configFile)
		if err = viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return err
			}
		}
	}

	c.cfg.Config = config.Default()
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Password = viper.GetString("redis-password")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.ExecutorWorkers = viper.GetInt("executor-workers")
	c.cfg.ExecutorCapacity = viper.GetInt("executor-capacity")
	c.cfg.PartitionCount = viper.GetInt("partition-count")
	c.cfg.LogLevel = viper.GetString("log-level")
	c.cfg.Development = viper.GetBool("development")
	c.cfg.ServiceName = viper.GetString("service-name")
	c.cfg.ConsumerConfig.Stream = viper.GetString("stream")
	c.cfg.ConsumerConfig.Group = viper.GetString("consumer-group")
	c.cfg.ConsumerConfig.ConsumerName = viper.GetString("consumer-name")
	c.cfg.ConsumerConfig.BatchSize = viper.GetInt("batch-size")
	c.cfg.ConsumerConfig.ReadWait = viper.GetDuration("read-wait")
	c.cfg.ConsumerConfig.FrameworkDownWait = viper.GetDuration("framework-down-wait")
	c.cfg.ConsumerConfig.RedeliverAfter = viper.GetDuration("redeliver-after")
	c.cfg.ConsumerConfig.DedupTTL = viper.GetDuration("dedup-ttl")
	c.cfg.DisableConsumers = viper.GetBool("disable-consumers")
	c.cfg.MaintenancePoll = viper.GetDuration("maintenance-poll")
	c.cfg.WaitTimeoutPoll = viper.GetDuration("wait-timeout-poll")
	c.cfg.ResponseTTL = viper.GetDuration("response-ttl")
	c.cfg.DefinitionFiles = viper.GetStringSlice("definitions")
	if file := viper.GetString("analytics-file"); len(file) > 0 {
		c.cfg.AnalyticsConfig = analytics.DataCollectorConfig{
			FileName:      file,
			CollectorType: analytics.LOG_FILE_DATA_COLLECTOR,
		}
	}
	return logger.Init(c.cfg.LogLevel, c.cfg.Development)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	defer logger.Sync()
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		return err
	}
	if err = agent.Start(); err != nil {
		return err
	}
	logger.Info("stepflow started", zap.Int("httpPort", c.cfg.HttpPort), zap.String("storage", string(c.cfg.StorageType)))
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-agent.Done():
	}
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "stepflow",
		Short:   "durable state machine execution engine",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
