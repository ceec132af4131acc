// Package config loads the boot configuration document and the per-template
// dialog template YAML files that describe a Dialog Workflow Engine
// deployment, following the include-then-merge loader the teacher repo
// uses for its own config tree.
package config

import "fmt"

// BootConfig is the top-level document loaded at process start (§6): where
// to find schema modules and template files, which MCP servers invoke steps
// may reach, and how storage/broadcast/jobs are backed.
type BootConfig struct {
	SchemaModules      []string             `yaml:"schema_modules"`
	PromptPaths        []string             `yaml:"prompt_paths"`
	TemplatePaths      []string             `yaml:"template_paths"`
	DialogTemplatesDir string               `yaml:"dialog_templates_dir"`
	MCPServers         map[string]MCPServer `yaml:"mcp_servers"`

	Storage   StorageConfig     `yaml:"storage"`
	Broadcast BroadcastConfig   `yaml:"broadcast"`
	Jobs      JobsConfig        `yaml:"jobs"`
	Models    map[string]string `yaml:"models"`
	Providers ProvidersConfig   `yaml:"providers"`
	Logging   LoggingConfig     `yaml:"logging"`
}

// MCPServer describes an external tool/resource server an invoke step may
// reach through. The engine itself treats this as opaque configuration
// forwarded to whatever registers the matching Invokable.
type MCPServer struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "memory" or "cockroach"
	DSN    string `yaml:"dsn,omitempty"`
}

// BroadcastConfig selects and configures the event broadcast backend.
type BroadcastConfig struct {
	RedisAddr string `yaml:"redis_addr,omitempty"`
	Channel   string `yaml:"channel,omitempty"`
}

// JobsConfig configures the durable job queue and its worker pool.
type JobsConfig struct {
	Driver       string `yaml:"driver"` // "memory" or "cockroach"
	DSN          string `yaml:"dsn,omitempty"`
	PollInterval string `yaml:"poll_interval,omitempty"`
	LeaseTTL     string `yaml:"lease_ttl,omitempty"`
	WorkerCount  int    `yaml:"worker_count,omitempty"`
}

// ProvidersConfig configures the completion service's provider chain.
type ProvidersConfig struct {
	FallbackChain []string                   `yaml:"fallback_chain"`
	Anthropic     ProviderCredentialsConfig  `yaml:"anthropic"`
	OpenAI        ProviderCredentialsConfig  `yaml:"openai"`
}

// ProviderCredentialsConfig carries one provider's API credentials.
type ProviderCredentialsConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate checks the boot config is internally consistent enough to build
// a process from. It does not check that referenced files exist; the loader
// resolves those lazily so a misconfigured template_paths entry surfaces as
// a load-time error at the component that needed it.
func (c *BootConfig) Validate() error {
	if c.Storage.Driver != "" && c.Storage.Driver != "memory" && c.Storage.Driver != "cockroach" {
		return fmt.Errorf("config: storage.driver must be \"memory\" or \"cockroach\", got %q", c.Storage.Driver)
	}
	if c.Jobs.Driver != "" && c.Jobs.Driver != "memory" && c.Jobs.Driver != "cockroach" {
		return fmt.Errorf("config: jobs.driver must be \"memory\" or \"cockroach\", got %q", c.Jobs.Driver)
	}
	if c.Storage.Driver == "cockroach" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn is required when storage.driver is \"cockroach\"")
	}
	if c.Jobs.Driver == "cockroach" && c.Jobs.DSN == "" {
		return fmt.Errorf("config: jobs.dsn is required when jobs.driver is \"cockroach\"")
	}
	return nil
}
