package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"netsource/pkg/constants"
)

var GlobalConfig *Config

// Config 全局配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	Git      GitConfig      `mapstructure:"git"`
	DB       interface{}    // 数据库连接,运行时注入
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	LogLevel        string `mapstructure:"log_level"`         // SQL日志级别: silent/error/warn/info
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `mapstructure:"level"`  // debug, info, warn, error
	Format   string `mapstructure:"format"` // json, console
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

// CryptoConfig 加密配置
type CryptoConfig struct {
	AESKey string `mapstructure:"aes_key"` // 32字节
}

// GitConfig Git数据源配置
type GitConfig struct {
	Root            string   `mapstructure:"root"`             // 本地缓存根目录, 每个仓库占用 <root>/<slug>
	Cron            string   `mapstructure:"cron"`             // 定时全量同步表达式（秒级, 空则不启用）
	ShallowDepth    int      `mapstructure:"shallow_depth"`    // 浅克隆深度, 未配置时取默认值
	WorkerInterval  string   `mapstructure:"worker_interval"`  // 任务轮询间隔
	SyncConcurrency int      `mapstructure:"sync_concurrency"` // 定时同步入队并发数
	ReservedSlugs   []string `mapstructure:"reserved_slugs"`   // 禁止占用的slug命名空间
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// 读取环境变量
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 设置全局配置
	GlobalConfig = config

	return config, nil
}

// GetDSN 获取数据库DSN
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// GetWorkerInterval 解析任务轮询间隔, 非法或未配置时回退5秒
func (c *GitConfig) GetWorkerInterval() time.Duration {
	d, err := time.ParseDuration(c.WorkerInterval)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// GetShallowDepth 浅克隆深度, 未配置时取默认值
// 检出早于深度边界的commit时由git层自动补全历史
func (c *GitConfig) GetShallowDepth() int {
	if c.ShallowDepth < 1 {
		return constants.DefaultShallowDepth
	}
	return c.ShallowDepth
}

// GetSyncConcurrency 定时同步入队并发数, 默认4
func (c *GitConfig) GetSyncConcurrency() int {
	if c.SyncConcurrency < 1 {
		return 4
	}
	return c.SyncConcurrency
}
