package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/exec-dashboard/backend/internal/llm/llamastack"
)

// 大模型服务提供方标识。
const (
	ProviderLlamaStack = "llamastack"
	ProviderArk        = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Chat    ChatConfig
	Dataset DatasetConfig
	Archive ArchiveConfig
	Live    LiveConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	live, err := loadLiveConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Chat:    chat,
		Dataset: loadDatasetConfig(),
		Archive: ArchiveConfig{Path: strings.TrimSpace(os.Getenv("ARCHIVE_PATH"))},
		Live:    live,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。Provider 决定走 LlamaStack 的
// OpenAI 兼容接口还是火山 Ark。
type AIConfig struct {
	Provider string

	LlamaStackURL   string
	LlamaStackModel string

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string

	Temperature    *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled 表示当前提供方是否具备可用配置。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
	case ProviderLlamaStack:
		return c.LlamaStackURL != "" && c.LlamaStackModel != ""
	default:
		return false
	}
}

// NewChatModel 按提供方创建模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	switch c.Provider {
	case ProviderLlamaStack:
		var temperature *float32
		if c.Temperature != nil {
			val := float32(*c.Temperature)
			temperature = &val
		}
		return llamastack.NewChatModel(llamastack.Config{
			BaseURL:     c.LlamaStackURL,
			Model:       c.LlamaStackModel,
			Temperature: temperature,
			MaxTokens:   c.MaxTokens,
		})
	case ProviderArk:
		if !c.Enabled() {
			return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
		}

		var temperature *float32
		if c.Temperature != nil {
			val := float32(*c.Temperature)
			temperature = &val
		}

		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.ArkBaseURL,
			Region:      c.ArkRegion,
			APIKey:      c.ArkAPIKey,
			AccessKey:   c.ArkAccessKey,
			SecretKey:   c.ArkSecretKey,
			Model:       c.ArkModel,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", c.Provider)
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderLlamaStack))
	if provider != ProviderLlamaStack && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		defaultTemp := 0.3
		temperature = &defaultTemp
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		defaultMax := 1500
		maxTokens = &defaultMax
	}

	stream, err := parseBoolEnv("LLM_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:        provider,
		LlamaStackURL:   getEnvOrDefault("LLAMASTACK_API_URL", "http://localhost:8321"),
		LlamaStackModel: getEnvOrDefault("LLAMASTACK_MODEL", "ollama/llama3.3:70b"),
		ArkAPIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:        strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:     temperature,
		MaxTokens:       maxTokens,
		StreamResponse:  stream,
	}, nil
}

// ChatConfig 描述会话管理配置。
type ChatConfig struct {
	MaxExchanges int
}

func loadChatConfig() (ChatConfig, error) {
	maxExchanges := 10
	if override, err := parseOptionalIntEnv("CHAT_MAX_EXCHANGES"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return ChatConfig{}, fmt.Errorf("CHAT_MAX_EXCHANGES must be positive, got %d", *override)
		}
		maxExchanges = *override
	}

	return ChatConfig{MaxExchanges: maxExchanges}, nil
}

// DatasetConfig 描述零售数据集的加载来源。
type DatasetConfig struct {
	// ManifestPath 指向 YAML 清单；为空时使用 DataDir 下的默认文件布局。
	ManifestPath string
	DataDir      string
}

func loadDatasetConfig() DatasetConfig {
	return DatasetConfig{
		ManifestPath: strings.TrimSpace(os.Getenv("DATA_MANIFEST")),
		DataDir:      getEnvOrDefault("DATA_DIR", "data/sales_data"),
	}
}

// ArchiveConfig 描述会话持久化配置，Path 为空时关闭持久化。
type ArchiveConfig struct {
	Path string
}

// Enabled 表示是否开启会话归档。
func (c ArchiveConfig) Enabled() bool {
	return c.Path != ""
}

// LiveConfig 描述 WebSocket 实时指标推送配置。
type LiveConfig struct {
	Interval time.Duration
}

func loadLiveConfig() (LiveConfig, error) {
	seconds := 30
	if override, err := parseOptionalIntEnv("LIVE_INTERVAL_SECONDS"); err != nil {
		return LiveConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return LiveConfig{}, fmt.Errorf("LIVE_INTERVAL_SECONDS must be positive, got %d", *override)
		}
		seconds = *override
	}

	return LiveConfig{Interval: time.Duration(seconds) * time.Second}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
