package sqlite

import "strings"

type Config struct {
	uri     string
	workers int
}

type ConfigFunc = func(c *Config)

func WithURI(uri string) ConfigFunc {
	if strings.TrimSpace(uri) == "" {
		panic("URI can't be blank")
	}
	return func(c *Config) {
		c.uri = uri
	}
}

func WithWorkers(workers int) ConfigFunc {
	if workers < 1 {
		panic("workers can't be < 1")
	}
	return func(c *Config) {
		c.workers = workers
	}
}
