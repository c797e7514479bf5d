package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider       string  `yaml:"provider"`
	APIKey         string  `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	BaseURL        string  `yaml:"providerBaseURL" envconfig:"PROVIDER_BASE_URL"`
	EmbedModel     string  `yaml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	ProjectID      string  `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location       string  `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	Dim            int     `yaml:"providerDim" envconfig:"EMBED_DIM"`
	TimeoutSeconds int     `yaml:"providerTimeoutSeconds" envconfig:"PROVIDER_TIMEOUT_SECONDS"`
	RateLimit      float64 `yaml:"embedRateLimit" envconfig:"EMBED_RATE_LIMIT"`

	Generator GeneratorSpecification `yaml:"generator"`
	MaxTokens int                    `yaml:"maxTokens" split_words:"true"`

	DocsDir    string   `yaml:"docsDir" split_words:"true"`
	ExtraDirs  []string `yaml:"extraDocsDirs" envconfig:"EXTRA_DOCS_DIRS"`
	Recursive  bool     `yaml:"recursive"`
	Extensions []string `yaml:"extensions"`

	ChunkMaxTokens int    `yaml:"chunkMaxTokens" split_words:"true"`
	ChunkOverlap   int    `yaml:"chunkOverlap" split_words:"true"`
	Tokenizer      string `yaml:"tokenizer"`

	BatchSize int `yaml:"batchSize" split_words:"true"`
	Workers   int `yaml:"workers"`
	Retries   int `yaml:"retries"`

	StoreBackend string `yaml:"storeBackend" split_words:"true"`
	ArtifactDir  string `yaml:"artifactDir" split_words:"true"`
	KeepRuns     int    `yaml:"keepRuns" split_words:"true"`
	IndexPath    string `yaml:"indexPath" split_words:"true"`
	MetadataPath string `yaml:"metadataPath" split_words:"true"`
	Database     string `yaml:"database" envconfig:"DB_URL"`

	TopK     int               `yaml:"topK" envconfig:"TOP_K"`
	LogLevel string            `yaml:"logLevel" split_words:"true"`
	Port     int               `yaml:"port" split_words:"true"`
	Auth     AuthSpecification `yaml:"auth"`

	flags *pflag.FlagSet `ignored:"true"`
}

// GeneratorSpecification configures the answer generator. Empty fields fall
// back to the embedding provider settings.
type GeneratorSpecification struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"baseURL" split_words:"true"`
	Model    string `yaml:"model"`
}

type AuthSpecification struct {
	Enabled   bool   `yaml:"enabled"`
	JwtSecret string `yaml:"jwtSecret" split_words:"true"`
	Issuer    string `yaml:"issuer"`
}

const envPrefix = "RAGPIPE"

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Timeout returns the remote call timeout.
func (s *Specification) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// GeneratorProvider returns the generator provider, defaulting to Provider.
func (s *Specification) GeneratorProvider() string {
	if s.Generator.Provider != "" {
		return s.Generator.Provider
	}
	return s.Provider
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover. args are the command line
// arguments without the program name.
func Load(configPath string, fs *pflag.FlagSet, args []string) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		path = configFlag(args)
	}
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/ragpipe.yaml",
				"config/config.yaml",
				"./ragpipe.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(args); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if err := cfg.Validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (s *Specification) Validate() error {
	var errs []error
	if s.ChunkMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("chunkMaxTokens must be positive, got %d", s.ChunkMaxTokens))
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkMaxTokens {
		errs = append(errs, fmt.Errorf("chunkOverlap must be in [0, chunkMaxTokens), got %d", s.ChunkOverlap))
	}
	if s.TopK <= 0 {
		errs = append(errs, fmt.Errorf("topK must be positive, got %d", s.TopK))
	}
	switch s.StoreBackend {
	case BackendFile:
	case BackendPostgres:
		if strings.TrimSpace(s.Database) == "" {
			errs = append(errs, fmt.Errorf("%s_DB_URL is required for the postgres backend", envPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("storeBackend must be %q or %q, got %q", BackendFile, BackendPostgres, s.StoreBackend))
	}
	if (s.IndexPath == "") != (s.MetadataPath == "") {
		errs = append(errs, errors.New("indexPath and metadataPath must be set together"))
	}
	return errors.Join(errs...)
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// configFlag finds --config in args before they are parsed, since the file
// has to be read ahead of env and flag overrides.
func configFlag(args []string) string {
	for i, a := range args {
		if a == "--config" {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				return args[i+1]
			}
		} else if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
	}
	return ""
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	fs.String("provider", c.Provider, "Embedding provider (stub, openai, vertexai)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-base-url", c.BaseURL, "OpenAI-compatible base URL")
	fs.String("provider-embedding-model", c.EmbedModel, "Provider embedding model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")
	fs.Int("provider-timeout-seconds", c.TimeoutSeconds, "Timeout for a single remote call")
	fs.Float64("embed-rate-limit", c.RateLimit, "Embedding requests per second (0 = unlimited)")

	fs.String("generator-provider", c.Generator.Provider, "Generator provider (stub, openai, vertexai, ollama)")
	fs.String("generator-base-url", c.Generator.BaseURL, "Generator base URL")
	fs.String("generator-model", c.Generator.Model, "Generator model")
	fs.Int("max-tokens", c.MaxTokens, "Maximum tokens to generate per answer")

	fs.String("docs-dir", c.DocsDir, "Directory of documents to index")
	fs.StringSlice("extra-docs-dir", c.ExtraDirs, "Further document directories, scanned after docs-dir")
	fs.Bool("recursive", c.Recursive, "Descend into sub-directories")
	fs.StringSlice("extensions", c.Extensions, "File extensions to index")

	fs.Int("chunk-max-tokens", c.ChunkMaxTokens, "Tokens per chunk")
	fs.Int("chunk-overlap", c.ChunkOverlap, "Tokens shared by consecutive chunks")
	fs.String("tokenizer", c.Tokenizer, "Tokenizer (words or a tiktoken encoding)")

	fs.Int("batch-size", c.BatchSize, "Chunks per embedding request")
	fs.Int("workers", c.Workers, "Concurrent embedding requests")
	fs.Int("retries", c.Retries, "Retries per failed embedding batch")

	fs.String("store-backend", c.StoreBackend, "Artifact store (file|postgres)")
	fs.String("artifact-dir", c.ArtifactDir, "Directory for file-backed artifacts")
	fs.Int("keep-runs", c.KeepRuns, "Number of builds to retain (0 = all)")
	fs.String("index-path", c.IndexPath, "Explicit index file to serve")
	fs.String("metadata-path", c.MetadataPath, "Explicit metadata file to serve")
	fs.String("db-url", c.Database, "Database URL (DSN)")

	fs.Int("top-k", c.TopK, "Results per query")
	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Require bearer tokens on the API")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for signing tokens")
	fs.String("auth-issuer", c.Auth.Issuer, "JWT issuer")

	// Used later for usage/help
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-base-url", &c.BaseURL)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)
	setInt("embed-dim", &c.Dim)
	setInt("provider-timeout-seconds", &c.TimeoutSeconds)
	if fs.Changed("embed-rate-limit") {
		c.RateLimit, _ = fs.GetFloat64("embed-rate-limit")
	}

	setStr("generator-provider", &c.Generator.Provider)
	setStr("generator-base-url", &c.Generator.BaseURL)
	setStr("generator-model", &c.Generator.Model)
	setInt("max-tokens", &c.MaxTokens)

	setStr("docs-dir", &c.DocsDir)
	if fs.Changed("extra-docs-dir") {
		c.ExtraDirs, _ = fs.GetStringSlice("extra-docs-dir")
	}
	setBool("recursive", &c.Recursive)
	if fs.Changed("extensions") {
		c.Extensions, _ = fs.GetStringSlice("extensions")
	}

	setInt("chunk-max-tokens", &c.ChunkMaxTokens)
	setInt("chunk-overlap", &c.ChunkOverlap)
	setStr("tokenizer", &c.Tokenizer)

	setInt("batch-size", &c.BatchSize)
	setInt("workers", &c.Workers)
	setInt("retries", &c.Retries)

	setStr("store-backend", &c.StoreBackend)
	setStr("artifact-dir", &c.ArtifactDir)
	setInt("keep-runs", &c.KeepRuns)
	setStr("index-path", &c.IndexPath)
	setStr("metadata-path", &c.MetadataPath)
	setStr("db-url", &c.Database)

	setInt("top-k", &c.TopK)
	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)

	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
	setStr("auth-issuer", &c.Auth.Issuer)
}

func setDefaults(c *Specification) {
	c.Provider = "stub"
	c.Location = "us-central1"
	c.TimeoutSeconds = 30
	c.MaxTokens = 150
	c.DocsDir = "docs"
	c.ChunkMaxTokens = 400
	c.ChunkOverlap = 50
	c.Tokenizer = "cl100k_base"
	c.BatchSize = 32
	c.Workers = 4
	c.Retries = 2
	c.StoreBackend = BackendFile
	c.ArtifactDir = "artifacts"
	c.KeepRuns = 3
	c.TopK = 3
	c.LogLevel = "info"
	c.Port = 8080
	c.Auth.Issuer = "ragpipe"
}
