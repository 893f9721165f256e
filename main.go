package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/funnelkit/journey/agent"
	"github.com/funnelkit/journey/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "journey", "namespace used in storage")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage")
	cmd.Flags().Int("tick-interval", 60, "scheduler tick interval in seconds")
	cmd.Flags().Int("batch-size", 100, "max enrollments claimed per tick")
	cmd.Flags().Int("worker-capacity", 512, "enrollment executor queue capacity")
	cmd.Flags().Int("worker-concurrency", 8, "enrollment executor goroutines")
	cmd.Flags().Int("max-steps-per-tick", 25, "steps executed per enrollment per wake")
	cmd.Flags().Int("max-steps", 1000, "lifetime step cap per enrollment")
	cmd.Flags().Int("max-action-attempts", 3, "attempts before an action failure is terminal")
	cmd.Flags().Int("retry-backoff", 60, "base retry backoff in seconds")
	cmd.Flags().Int("action-timeout", 30, "per action execution timeout in seconds")
	cmd.Flags().Int("stale-wait-minutes", 10080, "age threshold for the stale wait report")
	cmd.Flags().String("analytics-log-file", "", "append step outcomes to this file as json lines")
	return viper.BindPFlags(cmd.Flags())
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
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.TickIntervalSeconds = viper.GetInt("tick-interval")
	c.cfg.BatchSize = viper.GetInt("batch-size")
	c.cfg.WorkerCapacity = viper.GetInt("worker-capacity")
	c.cfg.WorkerConcurrency = viper.GetInt("worker-concurrency")
	c.cfg.MaxStepsPerTick = viper.GetInt("max-steps-per-tick")
	c.cfg.MaxStepsPerEnrollment = viper.GetInt("max-steps")
	c.cfg.MaxActionAttempts = viper.GetInt("max-action-attempts")
	c.cfg.RetryBackoffSeconds = viper.GetInt("retry-backoff")
	c.cfg.ActionTimeoutSeconds = viper.GetInt("action-timeout")
	c.cfg.StaleWaitMinutes = viper.GetInt("stale-wait-minutes")
	c.cfg.AnalyticsLogFile = viper.GetString("analytics-log-file")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	var err error
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	err = agent.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "journey",
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
