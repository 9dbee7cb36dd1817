package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	AppName        = "ccview"
	EnvPrefix      = "CCVIEW"
	ConfigFileName = ".ccview.yaml"
	GenerationFile = "generation.json"
)

const (
	DefaultViewRoot  = "/view"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Configuration keys.
const (
	KeyCacheDir      = "cache.dir"
	KeyKeepLatest    = "cache.keep_latest"
	KeyCompress      = "cache.compress"
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
	KeyViewRoot      = "view.root"
	KeyViewPolicy    = "view.policy"
	KeyViewStream    = "view.stream"
	KeyViewBaselines = "view.baselines"
	KeyFixturePath   = "fixture.path"
	KeyMetricsAddr   = "metrics.addr"
)

// Settings is the resolved configuration of one ccview process.
type Settings struct {
	CacheDir    string
	KeepLatest  bool
	Compress    bool
	LogLevel    string
	LogFormat   string
	ViewRoot    string
	PolicyFile  string
	Stream      string
	Baselines   []string
	FixturePath string
	MetricsAddr string
}

// New returns a viper instance with defaults set and CCVIEW_* environment
// variables bound (cache.dir is read from CCVIEW_CACHE_DIR).
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyCacheDir, DefaultCacheDir())
	v.SetDefault(KeyKeepLatest, true)
	v.SetDefault(KeyCompress, false)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)
	v.SetDefault(KeyViewRoot, DefaultViewRoot)
	v.SetDefault(KeyViewPolicy, "")
	v.SetDefault(KeyViewStream, "")
	v.SetDefault(KeyViewBaselines, []string{})
	v.SetDefault(KeyFixturePath, "")
	v.SetDefault(KeyMetricsAddr, "")
}

// Load reads Settings from v.
func Load(v *viper.Viper) (Settings, error) {
	s := Settings{
		CacheDir:    v.GetString(KeyCacheDir),
		KeepLatest:  v.GetBool(KeyKeepLatest),
		Compress:    v.GetBool(KeyCompress),
		LogLevel:    v.GetString(KeyLogLevel),
		LogFormat:   strings.ToLower(v.GetString(KeyLogFormat)),
		ViewRoot:    v.GetString(KeyViewRoot),
		PolicyFile:  v.GetString(KeyViewPolicy),
		Stream:      v.GetString(KeyViewStream),
		Baselines:   splitList(v.GetStringSlice(KeyViewBaselines)),
		FixturePath: v.GetString(KeyFixturePath),
		MetricsAddr: v.GetString(KeyMetricsAddr),
	}
	if s.LogFormat != "text" && s.LogFormat != "json" {
		return Settings{}, fmt.Errorf("%s: unsupported format %q", KeyLogFormat, s.LogFormat)
	}
	if s.CacheDir == "" {
		return Settings{}, fmt.Errorf("%s must not be empty", KeyCacheDir)
	}
	return s, nil
}

// splitList accepts both YAML lists and comma separated environment values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
