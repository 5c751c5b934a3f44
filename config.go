package ckpt

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/avernar/ckpt/codec"
	"github.com/avernar/ckpt/codec/prim"
)

type Option[T any] = func(*config[T])

func WithFile[T any](file *FileConfig) Option[T] {
	if file == nil {
		panic("file can't be nil")
	}
	return func(c *config[T]) {
		c.file = file
	}
}

// WithCompression enables s2 compression of state blobs.
func WithCompression[T any]() Option[T] {
	return func(c *config[T]) {
		c.compress = true
	}
}

// WithKeep limits how many checkpoints are kept per name; older ones are pruned after
// each save.
func WithKeep[T any](keep int) Option[T] {
	if keep < 1 {
		panic("keep can't be < 1")
	}
	return func(c *config[T]) {
		c.keep = keep
	}
}

func WithWorkers[T any](workers int) Option[T] {
	if workers < 1 {
		panic("workers can't be < 1")
	}
	return func(c *config[T]) {
		c.workers = workers
	}
}

// WithRegistry sets the snapshot registry used to read persisted snapshots. The default
// registry only knows the primitive codecs; list and custom element snapshots must be
// registered by the caller.
func WithRegistry[T any](reg *codec.Registry) Option[T] {
	if reg == nil {
		panic("registry can't be nil")
	}
	return func(c *config[T]) {
		c.registry = reg
	}
}

func WithPrometheus[T any](
	registerer prometheus.Registerer,
	namespace, subsystem string,
) Option[T] {
	return func(c *config[T]) {
		c.metrics = newMetrics(registerer, namespace, subsystem)
	}
}

type config[T any] struct {
	file     *FileConfig
	compress bool
	keep     int
	workers  int
	registry *codec.Registry
	metrics  *metrics
}

func newConfig[T any](options ...Option[T]) *config[T] {
	registry := codec.NewRegistry()
	prim.Register(registry)

	options = append([]Option[T]{
		WithWorkers[T](1),
		WithRegistry[T](registry),
		WithPrometheus[T](nil, "ckpt", ""),
	}, options...)

	cfg := config[T]{}
	for _, opt := range options {
		opt(&cfg)
	}

	return &cfg
}

// fileOptions mirrors the YAML configuration file read by [OptionsFromFile].
type fileOptions struct {
	File     string `yaml:"file"`
	Durable  bool   `yaml:"durable"`
	Compress bool   `yaml:"compress"`
	Keep     int    `yaml:"keep"`
	Workers  int    `yaml:"workers"`
}

// OptionsFromFile reads store options from a YAML file. Options derived from the file can
// be overridden by appending further options to the result.
func OptionsFromFile[T any](path string) ([]Option[T], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var fo fileOptions
	if err := yaml.Unmarshal(data, &fo); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var options []Option[T]
	if fo.File != "" {
		options = append(options, WithFile[T](File(fo.File).Durable(fo.Durable)))
	}
	if fo.Compress {
		options = append(options, WithCompression[T]())
	}
	if fo.Keep > 0 {
		options = append(options, WithKeep[T](fo.Keep))
	}
	if fo.Workers > 0 {
		options = append(options, WithWorkers[T](fo.Workers))
	}

	return options, nil
}
