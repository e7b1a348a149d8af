package synqa

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/synqa/dispatch"
	"github.com/brunobiangulo/synqa/llm"
	"github.com/brunobiangulo/synqa/sampler"
)

// Config holds all configuration for a synqa pipeline.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.synqa/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.synqa/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Stage directories. Each stage reads the previous stage's output.
	InputDir      string `json:"input_dir" yaml:"input_dir"`           // parsed source tables
	ClusteredDir  string `json:"clustered_dir" yaml:"clustered_dir"`   // <name>_clustered.<table_format>
	RawQADir      string `json:"raw_qa_dir" yaml:"raw_qa_dir"`         // <name>_rawQA.json
	QualityDir    string `json:"quality_dir" yaml:"quality_dir"`       // <name>_vfQA.json
	DifficultyDir string `json:"difficulty_dir" yaml:"difficulty_dir"` // <name>_cfQA_<model>.json

	// RawDocsDir optionally holds the original PDF, HTML or TeX files. The
	// difficulty stage answers from them when present and from the joined
	// source rows otherwise.
	RawDocsDir string `json:"raw_docs_dir" yaml:"raw_docs_dir"`

	// TableFormat of clustered output: "csv" (default) or "xlsx".
	TableFormat string `json:"table_format" yaml:"table_format"`

	// LLM endpoints per role.
	Embedding  LLMConfig `json:"embedding" yaml:"embedding"`
	Generation LLMConfig `json:"generation" yaml:"generation"`
	Judge      LLMConfig `json:"judge" yaml:"judge"`   // quality filter
	Answer     LLMConfig `json:"answer" yaml:"answer"` // difficulty re-answering
	Eval       LLMConfig `json:"eval" yaml:"eval"`     // difficulty correctness scoring

	// Cache enables the Redis completion cache when Addr is set.
	Cache llm.CacheConfig `json:"cache" yaml:"cache"`

	Dispatch       dispatch.Options `json:"dispatch" yaml:"dispatch"`
	EmbedBatchSize int              `json:"embed_batch_size" yaml:"embed_batch_size"`

	// Generation
	Domain           string          `json:"domain" yaml:"domain"`
	QuestionsPerFile int             `json:"questions_per_file" yaml:"questions_per_file"`
	MinSources       int             `json:"min_sources" yaml:"min_sources"`
	MaxSources       int             `json:"max_sources" yaml:"max_sources"`
	Sampler          sampler.Options `json:"sampler" yaml:"sampler"`

	// SamplingSeed is the model-side seed sent with generation requests.
	SamplingSeed int `json:"sampling_seed" yaml:"sampling_seed"`
	// RandomSeed seeds configuration sampling and source selection. Zero
	// draws a fresh seed per run.
	RandomSeed uint64 `json:"random_seed" yaml:"random_seed"`
	// ClusterSeed seeds k-means for every document.
	ClusterSeed uint64 `json:"cluster_seed" yaml:"cluster_seed"`

	// Quality filter
	TopK     int    `json:"top_k" yaml:"top_k"`
	Searcher string `json:"searcher" yaml:"searcher"` // "store" (sqlite-vec) or "memory"

	// Difficulty filter
	ShrinkStep        float64 `json:"shrink_step" yaml:"shrink_step"`
	ShrinkMaxAttempts int     `json:"shrink_max_attempts" yaml:"shrink_max_attempts"`
	ResampleSeed      uint64  `json:"resample_seed" yaml:"resample_seed"`

	// Force reprocesses documents whose stage output already exists.
	Force bool `json:"force" yaml:"force"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // openai, ollama, lmstudio, groq, openrouter, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

func (c LLMConfig) llm() llm.Config {
	return llm.Config{Provider: c.Provider, Model: c.Model, BaseURL: c.BaseURL, APIKey: c.APIKey}
}

// DefaultConfig returns a Config for the hosted OpenAI models the benchmark
// was built with.
func DefaultConfig() Config {
	openai := func(model string) LLMConfig {
		return LLMConfig{Provider: "openai", Model: model}
	}
	return Config{
		DBName:            "synqa",
		StorageDir:        "home",
		InputDir:          "data/01_sources",
		ClusteredDir:      "data/02_clustered",
		RawQADir:          "data/03_raw_qa",
		QualityDir:        "data/04_quality",
		DifficultyDir:     "data/05_difficulty",
		TableFormat:       "csv",
		Embedding:         openai("text-embedding-3-small"),
		Generation:        openai("gpt-4.1-2025-04-14"),
		Judge:             openai("gpt-4.1-mini-2025-04-14"),
		Answer:            openai("gpt-4o-mini-2024-07-18"),
		Eval:              openai("gpt-4.1-mini-2025-04-14"),
		Dispatch:          dispatch.Options{Concurrency: 32},
		Domain:            "analysing research articles",
		QuestionsPerFile:  50,
		MinSources:        5,
		MaxSources:        15,
		SamplingSeed:      23,
		ClusterSeed:       42,
		TopK:              5,
		Searcher:          "store",
		ShrinkStep:        0.1,
		ShrinkMaxAttempts: 9,
		ResampleSeed:      42,
	}
}

// LoadConfig reads a YAML or JSON config file over the defaults and applies
// environment overrides. An empty path yields the defaults plus overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			err = json.Unmarshal(data, &cfg)
		} else {
			err = yaml.Unmarshal(data, &cfg)
		}
		if err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", filepath.Base(path), err)
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from SYNQA_* variables and fills missing API
// keys from the providers' well-known variables.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.DBPath, "SYNQA_DB_PATH")
	setString(&c.Domain, "SYNQA_DOMAIN")
	setString(&c.Cache.Addr, "SYNQA_REDIS_ADDR")
	setString(&c.Cache.Password, "SYNQA_REDIS_PASSWORD")

	for _, role := range []struct {
		name string
		cfg  *LLMConfig
	}{
		{"EMBED", &c.Embedding},
		{"GENERATE", &c.Generation},
		{"JUDGE", &c.Judge},
		{"ANSWER", &c.Answer},
		{"EVAL", &c.Eval},
	} {
		setString(&role.cfg.Provider, "SYNQA_"+role.name+"_PROVIDER")
		setString(&role.cfg.Model, "SYNQA_"+role.name+"_MODEL")
		setString(&role.cfg.BaseURL, "SYNQA_"+role.name+"_BASE_URL")
		setString(&role.cfg.APIKey, "SYNQA_"+role.name+"_API_KEY")

		if role.cfg.APIKey == "" {
			switch role.cfg.Provider {
			case "openai":
				role.cfg.APIKey = os.Getenv("OPENAI_API_KEY")
			case "groq":
				role.cfg.APIKey = os.Getenv("GROQ_API_KEY")
			case "openrouter":
				role.cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
			case "gemini":
				role.cfg.APIKey = os.Getenv("GEMINI_API_KEY")
			}
		}
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.QuestionsPerFile < 0:
		return fmt.Errorf("%w: questions_per_file must not be negative", ErrInvalidConfig)
	case c.MinSources < 1 || c.MaxSources < c.MinSources:
		return fmt.Errorf("%w: source range [%d, %d]", ErrInvalidConfig, c.MinSources, c.MaxSources)
	case c.TopK < 1:
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig)
	case c.TableFormat != "csv" && c.TableFormat != "xlsx":
		return fmt.Errorf("%w: table_format %q", ErrInvalidConfig, c.TableFormat)
	case c.Searcher != "store" && c.Searcher != "memory":
		return fmt.Errorf("%w: searcher %q", ErrInvalidConfig, c.Searcher)
	case c.ShrinkStep <= 0 || c.ShrinkStep >= 1:
		return fmt.Errorf("%w: shrink_step must be in (0, 1)", ErrInvalidConfig)
	}
	for _, m := range c.Sampler.ProximityModalities {
		if m != sampler.TextOnly && m != sampler.TableOnly && m != sampler.Mixed {
			return fmt.Errorf("%w: proximity modality %q", ErrInvalidConfig, m)
		}
	}
	for _, role := range []struct {
		name string
		cfg  LLMConfig
	}{
		{"embedding", c.Embedding},
		{"generation", c.Generation},
		{"judge", c.Judge},
		{"answer", c.Answer},
		{"eval", c.Eval},
	} {
		if role.cfg.Provider == "" || role.cfg.Model == "" {
			return fmt.Errorf("%w: %s provider and model are required", ErrInvalidConfig, role.name)
		}
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "synqa"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".synqa", name+".db")
	}
}
