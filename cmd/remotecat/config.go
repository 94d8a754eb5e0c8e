package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/KarpelesLab/remotefs"
)

// config holds every setting of remotecat. Its yaml names match the flags.
type config struct {
	Backend            string        `yaml:"backend"`
	Root               string        `yaml:"root"`
	ChunkSize          int64         `yaml:"chunk-size"`
	SmallFileSuffixes  []string      `yaml:"small-file-suffixes"`
	SmallFileChunkSize int64         `yaml:"small-file-chunk-size"`
	MaxConcurrent      int           `yaml:"max-concurrent"`
	ReadAhead          int64         `yaml:"read-ahead"`
	Timeout            time.Duration `yaml:"timeout"`
	Retries            int           `yaml:"retries"`
	Prefetch           bool          `yaml:"prefetch"`
	Verbose            bool          `yaml:"verbose"`

	S3 struct {
		Bucket   string `yaml:"bucket"`
		Region   string `yaml:"region"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"s3"`
}

func defaultConfig() *config {
	return &config{
		Backend:            "http",
		ChunkSize:          1024 * 1024,
		SmallFileSuffixes:  []string{".store"},
		SmallFileChunkSize: 16 * 1024,
		MaxConcurrent:      10,
		ReadAhead:          5 * 1024 * 1024,
		Retries:            3,
		Prefetch:           true,
	}
}

// loadFile overlays the YAML file at path onto c.
func (c *config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// applyFlags copies the flags that were set on the command line onto c.
func (c *config) applyFlags(fs *pflag.FlagSet) error {
	var err error
	set := func(name string, fn func() error) {
		if err == nil && fs.Changed(name) {
			err = fn()
		}
	}

	set("backend", func() (e error) { c.Backend, e = fs.GetString("backend"); return })
	set("root", func() (e error) { c.Root, e = fs.GetString("root"); return })
	set("chunk-size", func() (e error) { c.ChunkSize, e = fs.GetInt64("chunk-size"); return })
	set("small-file-suffix", func() (e error) { c.SmallFileSuffixes, e = fs.GetStringSlice("small-file-suffix"); return })
	set("small-file-chunk-size", func() (e error) { c.SmallFileChunkSize, e = fs.GetInt64("small-file-chunk-size"); return })
	set("max-concurrent", func() (e error) { c.MaxConcurrent, e = fs.GetInt("max-concurrent"); return })
	set("read-ahead", func() (e error) { c.ReadAhead, e = fs.GetInt64("read-ahead"); return })
	set("timeout", func() (e error) { c.Timeout, e = fs.GetDuration("timeout"); return })
	set("retries", func() (e error) { c.Retries, e = fs.GetInt("retries"); return })
	set("prefetch", func() (e error) { c.Prefetch, e = fs.GetBool("prefetch"); return })
	set("verbose", func() (e error) { c.Verbose, e = fs.GetBool("verbose"); return })
	set("bucket", func() (e error) { c.S3.Bucket, e = fs.GetString("bucket"); return })
	set("region", func() (e error) { c.S3.Region, e = fs.GetString("region"); return })
	set("endpoint", func() (e error) { c.S3.Endpoint, e = fs.GetString("endpoint"); return })

	return err
}

func (c *config) validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("--chunk-size must be positive, got %d", c.ChunkSize)
	}
	if c.SmallFileChunkSize <= 0 {
		return fmt.Errorf("--small-file-chunk-size must be positive, got %d", c.SmallFileChunkSize)
	}
	switch c.Backend {
	case "http", "local":
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("--bucket is required with the s3 backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// fetcher builds the fetcher chain for the configured backend.
func (c *config) fetcher() remotefs.Fetcher {
	var f remotefs.Fetcher
	switch c.Backend {
	case "s3":
		f = remotefs.NewS3Fetcher(c.s3Client(), c.S3.Bucket, "")
	case "local":
		f = remotefs.NewLocalFetcher("")
	default:
		f = remotefs.NewHTTPFetcher(&http.Client{Timeout: c.Timeout})
	}

	if c.Retries > 1 {
		r := remotefs.NewRetryFetcher(f)
		r.MaxAttempts = c.Retries
		f = r
	}
	if c.Prefetch {
		f = remotefs.NewStagingFetcher(f)
	}
	return f
}

// s3Client builds a client from the standard AWS environment variables.
func (c *config) s3Client() *s3.Client {
	opts := s3.Options{
		Region: c.S3.Region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			}, nil
		})),
	}
	if opts.Region == "" {
		opts.Region = os.Getenv("AWS_REGION")
	}
	if c.S3.Endpoint != "" {
		opts.BaseEndpoint = aws.String(c.S3.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// directory builds the registry and directory described by c.
func (c *config) directory() (*remotefs.Registry, *remotefs.Directory) {
	reg := remotefs.NewRegistry(c.fetcher())
	reg.ChunkSize = c.ChunkSize
	reg.SmallFileSuffixes = c.SmallFileSuffixes
	reg.SmallFileChunkSize = c.SmallFileChunkSize
	reg.MaxConcurrentFetches = c.MaxConcurrent
	reg.ReadAhead = c.ReadAhead
	reg.FetchTimeout = c.Timeout
	if c.Verbose {
		reg.Logger = log.New(os.Stderr, "remotecat: ", log.LstdFlags)
	} else {
		reg.Logger = nil
	}

	return reg, remotefs.NewDirectory(reg, c.Root, c.ChunkSize)
}
