package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/purpose168/chorus/internal/env"
	"github.com/purpose168/chorus/internal/fsext"
	"github.com/purpose168/chorus/internal/home"
	"github.com/purpose168/chorus/internal/log"
	"github.com/qjebbs/go-jsons"
)

// Load 从默认路径加载配置并初始化日志
func Load(workingDir, dataDir string, debug bool) (*Config, error) {
	cfg, err := load(workingDir, dataDir, env.New())
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Options.Debug = true
	}

	log.Setup(
		filepath.Join(cfg.Options.DataDirectory, "logs", appName+".log"),
		cfg.Options.Debug,
	)
	return cfg, nil
}

func load(workingDir, dataDir string, e env.Env) (*Config, error) {
	configPaths := lookupConfigs(workingDir)

	cfg, err := loadFromConfigPaths(configPaths)
	if err != nil {
		return nil, fmt.Errorf("从路径 %v 加载配置失败: %w", configPaths, err)
	}
	cfg.globalDataCfg = GlobalConfigData()
	cfg.setDefaults(workingDir, dataDir)

	e = withDotEnv(workingDir, e)
	if err := cfg.expandProviders(e); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandProviders 展开提供商配置中的 $VAR 引用
func (c *Config) expandProviders(e env.Env) error {
	var errs []error
	for id, p := range c.Providers {
		key, err := fsext.Expand(p.APIKey, e)
		if err != nil {
			errs = append(errs, fmt.Errorf("展开提供商 %s 的 api_key 失败: %w", id, err))
			continue
		}
		baseURL, err := fsext.Expand(p.BaseURL, e)
		if err != nil {
			errs = append(errs, fmt.Errorf("展开提供商 %s 的 base_url 失败: %w", id, err))
			continue
		}
		if p.APIKey != "" && key == "" {
			slog.Warn("提供商 API 密钥展开为空", "provider", id)
		}
		p.APIKey, p.BaseURL = key, baseURL
		c.Providers[id] = p
	}
	return errors.Join(errs...)
}

// withDotEnv 叠加项目目录中的 .env，进程环境变量优先
func withDotEnv(workingDir string, base env.Env) env.Env {
	vars, err := godotenv.Read(filepath.Join(workingDir, ".env"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("读取 .env 失败", "error", err)
		}
		return base
	}
	for _, kv := range base.Env() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			vars[k] = v
		}
	}
	return env.NewFromMap(vars)
}

// lookupConfigs 返回按优先级从低到高排列的配置文件路径
func lookupConfigs(cwd string) []string {
	configPaths := []string{
		GlobalConfig(),
		GlobalConfigData(),
	}

	configNames := []string{appName + ".json", "." + appName + ".json"}
	found, err := fsext.LookupUp(cwd, configNames...)
	if err != nil {
		slog.Warn("查找项目配置失败", "error", err)
		return configPaths
	}

	// 离工作目录越近优先级越高
	slices.Reverse(found)
	return append(configPaths, found...)
}

func loadFromConfigPaths(configPaths []string) (*Config, error) {
	var configs [][]byte
	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("打开配置文件 %s 失败: %w", path, err)
		}
		if len(data) == 0 {
			continue
		}
		configs = append(configs, data)
	}
	return loadFromBytes(configs)
}

func loadFromBytes(configs [][]byte) (*Config, error) {
	if len(configs) == 0 {
		return &Config{}, nil
	}
	data, err := jsons.Merge(configs)
	if err != nil {
		return nil, err
	}
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// GlobalConfig 返回用户编辑的全局配置文件路径
func GlobalConfig() string {
	if dir := os.Getenv("CHORUS_GLOBAL_CONFIG"); dir != "" {
		return filepath.Join(dir, appName+".json")
	}
	return filepath.Join(home.ConfigDir(appName), appName+".json")
}

// GlobalConfigData 返回由程序写入的全局配置文件路径
func GlobalConfigData() string {
	if dir := os.Getenv("CHORUS_GLOBAL_DATA"); dir != "" {
		return filepath.Join(dir, appName+".json")
	}
	return filepath.Join(home.DataDir(appName), appName+".json")
}
