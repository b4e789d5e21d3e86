package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Chat Completion + Embeddings）
	OpenAI OpenAIConfig

	// YouTube Data API設定（動画メタデータ取得用、省略可）
	YouTubeAPIKey string

	// Redis設定（Embeddingキャッシュ用、Addrが空なら無効）
	Redis RedisConfig

	// RAGパイプライン設定
	RAG RAGConfig

	// HTTPサーバ設定
	HTTPPort int
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string
}

// RedisConfig はRedis接続設定
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RAGConfig は検索・チャンク化・入力防御のチューニング値
type RAGConfig struct {
	MaxChunks         int     // 1回の検索で返すチャンク数の上限
	MinRelevanceScore float64 // チャンク採用の最小関連度スコア（0-1）
	MaxQuestionLength int     // 質問文の最大文字数
	MaxContextChunks  int     // 1回の回答サイクルで使うチャンク総数の上限

	ChunkTargetTokens  int // チャンクの目標トークン数
	ChunkMinTokens     int // チャンクの最小トークン数
	ChunkOverlapTokens int // 隣接チャンク間のオーバーラップトークン数

	CacheEmbeddings   bool // Embeddingキャッシュの有効/無効
	CacheTTLSeconds   int  // キャッシュTTL（秒）
	BlockedPatterns   []string
}

// defaultBlockedPatterns は既知のジェイルブレイク文言を対象とした
// 大文字小文字を区別しない正規表現のリスト
var defaultBlockedPatterns = []string{
	`(?i)ignore\s*(all\s*)?(previous|prior|above)\s*(instructions?|prompts?|context)`,
	`(?i)forget\s*(all\s*)?(previous|prior|above)?\s*(instructions?|everything|context)`,
	`(?i)disregard\s*(all\s*)?(previous|prior|above)?\s*(instructions?|prompts?|context)`,
	`(?i)override\s*(all\s*)?(previous|prior)?\s*(instructions?|prompts?|rules?)`,
	`(?i)(reveal|show|display|output|print)\s*(the\s*)?(system\s*prompt|instructions?|context)`,
	`(?i)you\s*are\s*now\b`,
	`(?i)pretend\s*(you\s*are|to\s*be)`,
	`(?i)act\s*as\s*(if|a|an|the)`,
	`(?i)new\s*(instructions?|prompt|role|persona)`,
	`(?i)repeat\s*(all|the|everything|verbatim)`,
}

// DefaultBlockedPatterns はデフォルトのブロックパターンのコピーを返します
func DefaultBlockedPatterns() []string {
	patterns := make([]string, len(defaultBlockedPatterns))
	copy(patterns, defaultBlockedPatterns)
	return patterns
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "lockin"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "lockin"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
		},
		YouTubeAPIKey: getEnv("YOUTUBE_API_KEY", ""),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RAG: RAGConfig{
			MaxChunks:          getEnvAsInt("RAG_MAX_CHUNKS", 5),
			MinRelevanceScore:  getEnvAsFloat("RAG_MIN_SCORE", 0.5),
			MaxQuestionLength:  getEnvAsInt("RAG_MAX_QUESTION_LENGTH", 2000),
			MaxContextChunks:   getEnvAsInt("RAG_MAX_CONTEXT_CHUNKS", 10),
			ChunkTargetTokens:  getEnvAsInt("RAG_CHUNK_TARGET_TOKENS", 500),
			ChunkMinTokens:     getEnvAsInt("RAG_CHUNK_MIN_TOKENS", 100),
			ChunkOverlapTokens: getEnvAsInt("RAG_CHUNK_OVERLAP_TOKENS", 50),
			CacheEmbeddings:    getEnvAsBool("RAG_CACHE_EMBEDDINGS", true),
			CacheTTLSeconds:    getEnvAsInt("RAG_CACHE_TTL", 3600),
			BlockedPatterns:    DefaultBlockedPatterns(),
		},
		HTTPPort: getEnvAsInt("HTTP_PORT", 8080),
	}

	// ブロックパターンのファイル上書き（1行1パターン）
	if path := os.Getenv("RAG_BLOCKED_PATTERNS_FILE"); path != "" {
		patterns, err := loadPatternsFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load blocked patterns file: %w", err)
		}
		cfg.RAG.BlockedPatterns = patterns
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は起動に必須の設定が揃っているかを検証します
// APIシークレットの欠落は設定エラーとして即時に失敗させます
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

// loadPatternsFile は改行区切りの正規表現リストを読み込みます
func loadPatternsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}

	if len(patterns) == 0 {
		return nil, fmt.Errorf("pattern file %s contains no patterns", path)
	}
	return patterns, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
