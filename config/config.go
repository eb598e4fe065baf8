package config

import (
	"time"

	"github.com/mohitkumar/stepflow/analytics"
)

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	RedisConfig      RedisStorageConfig
	HttpPort         int
	StorageType      StorageType
	ExecutorWorkers  int
	ExecutorCapacity int
	PartitionCount   int
	LogLevel         string
	Development      bool
	ServiceName      string
	ConsumerConfig   ConsumerConfig
	AnalyticsConfig  analytics.DataCollectorConfig
	MaintenancePoll  time.Duration
	WaitTimeoutPoll  time.Duration
	ResponseTTL      time.Duration
	DisableConsumers bool
	DefinitionFiles  []string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
	Password  string
}

type ConsumerConfig struct {
	Stream            string
	Group             string
	ConsumerName      string
	BatchSize         int
	ReadWait          time.Duration
	FrameworkDownWait time.Duration
	RedeliverAfter    time.Duration
	DedupTTL          time.Duration
}

func Default() Config {
	return Config{
		RedisConfig: RedisStorageConfig{
			Addrs:     []string{"localhost:6379"},
			Namespace: "stepflow",
		},
		HttpPort:         8080,
		StorageType:      STORAGE_TYPE_REDIS,
		ExecutorWorkers:  16,
		ExecutorCapacity: 512,
		PartitionCount:   71,
		LogLevel:         "info",
		ServiceName:      "stepflow",
		ConsumerConfig: ConsumerConfig{
			Stream:            "stepflow-events",
			Group:             "stepflow",
			ConsumerName:      "stepflow-consumer",
			BatchSize:         10,
			ReadWait:          10 * time.Second,
			FrameworkDownWait: 10 * time.Second,
			RedeliverAfter:    time.Minute,
			DedupTTL:          time.Hour,
		},
		MaintenancePoll: 5 * time.Second,
		WaitTimeoutPoll: time.Second,
		ResponseTTL:     24 * time.Hour,
	}
}
