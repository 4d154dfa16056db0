package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/m4xw311/dialagent/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Dir is the configuration directory name, both in the user's home and in
// the project.
const Dir = ".dialagent"

// DefaultDialEndpoint is used by the dial backend when no endpoint is set.
const DefaultDialEndpoint = "https://ai-proxy.lab.epam.com"

// defaultKeyEnv names the API key variable of each backend when api_key_env
// is not set.
var defaultKeyEnv = map[string]string{
	"dial":      "DIAL_API_KEY",
	"azure":     "AZURE_OPENAI_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Toolset names a selection of tools. Entries are glob patterns matched
// against tool names.
type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type UserServiceConfig struct {
	// URL of a remote user service. When empty the local database is used.
	URL    string `yaml:"url"`
	DBPath string `yaml:"db_path"`
	// Addr is the listen address of `dialagent userservice`.
	Addr string `yaml:"addr"`
}

type WebSearchConfig struct {
	Enabled bool `yaml:"enabled"`
	// Model is the search-capable deployment; empty reuses the chat model.
	Model string `yaml:"model"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type Config struct {
	LLMClient      string        `yaml:"llm"` // dial, openai, azure, anthropic, bedrock or mock
	Model          string        `yaml:"model"`
	Endpoint       string        `yaml:"endpoint"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	Auth           string        `yaml:"auth"` // api_key or entra
	Region         string        `yaml:"region"`
	MaxIterations  int           `yaml:"max_iterations"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	SystemPrompt   string        `yaml:"system_prompt"`

	Toolsets             []Toolset         `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer       `yaml:"additional_mcp_servers"`
	UserService          UserServiceConfig `yaml:"user_service"`
	WebSearch            WebSearchConfig   `yaml:"web_search"`
	Log                  LogConfig         `yaml:"log"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		LLMClient:      "dial",
		Model:          "gpt-4o",
		Auth:           "api_key",
		MaxIterations:  10,
		RequestTimeout: 60 * time.Second,
		Toolsets:       []Toolset{{Name: "default", Tools: []string{"*"}}},
		UserService: UserServiceConfig{
			DBPath: filepath.Join(defaultDataDir(), "users.db"),
			Addr:   "127.0.0.1:8041",
		},
		WebSearch: WebSearchConfig{Enabled: true},
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "dialagent")
	}
	return filepath.Join(home, Dir)
}

// LoadConfig loads .env from the working directory, then the user-level and
// project-level configuration files on top of the defaults. Project values
// take precedence.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, Dir, "config.yaml"))
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	paths = append(paths, filepath.Join(wd, Dir, "config.yaml"))
	return LoadFrom(paths...)
}

// LoadFrom applies the given files in order over the defaults. Missing files
// are skipped.
func LoadFrom(paths ...string) (*Config, error) {
	cfg := DefaultConfig()
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := loadFromFile(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading config %s", path)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Fields present in the file replace the current values; lists are
	// replaced, not merged.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) Validate() error {
	switch c.LLMClient {
	case "dial", "openai", "azure", "anthropic", "bedrock", "mock":
	default:
		return errors.New("unknown llm %q", c.LLMClient)
	}
	switch c.Auth {
	case "", "api_key", "entra":
	default:
		return errors.New("unknown auth %q, must be 'api_key' or 'entra'", c.Auth)
	}
	if c.MaxIterations <= 0 {
		return errors.New("max_iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}

// APIKey reads the key from the environment variable named by api_key_env,
// or from the backend's usual variable.
func (c *Config) APIKey() string {
	env := c.APIKeyEnv
	if env == "" {
		env = defaultKeyEnv[c.LLMClient]
	}
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	return c.GetToolset("default")
}

// NewLogger builds the process logger. Logs go to stderr so stdout stays
// free for the conversation or the ACP stream.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	var zc zap.Config
	if l.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	if l.Level != "" {
		level, err := zap.ParseAtomicLevel(l.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level")
		}
		zc.Level = level
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
