package config

const (
	defaultConfigPath         = "~/.config/rockingester/config.toml"
	defaultLogDir             = "~/.local/share/rockingester/logs"
	defaultScrapableRoot      = "~/rockmaker/images"
	defaultIngestedDirectory  = "~/rockmaker/ingested"
	defaultNobarcodeDirectory = "~/rockmaker/nobarcode"
	defaultPollInterval       = 60
	defaultErrorRetryInterval = 30
	defaultWorkers            = 2
	defaultMaxDepth           = 1
	defaultSettleSeconds      = 10
	defaultStoreBackend       = BackendSQLite
	defaultSQLiteName         = "xchembku.db"
	defaultPostgresMaxConns   = 4
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultMetricsBind        = "127.0.0.1:9417"

	// DefaultDirectoryPattern matches names like 98ab_2023-04-06_RI1000-0276-3drop.
	DefaultDirectoryPattern = `^(?P<barcode>[A-Za-z0-9]+)_(?P<date>\d{4}-\d{2}-\d{2})_(?P<instrument>.+)-(?P<platetype>[A-Za-z0-9]+)$`
)

// Store backends understood by the dataface package.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var defaultImageExtensions = []string{".jpg", ".jpeg", ".png"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Collector: Collector{
			ScrapableRoot:      defaultScrapableRoot,
			IngestedDirectory:  defaultIngestedDirectory,
			NobarcodeDirectory: defaultNobarcodeDirectory,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			Workers:            defaultWorkers,
			MaxDepth:           defaultMaxDepth,
			SettleSeconds:      defaultSettleSeconds,
			ImageExtensions:    append([]string(nil), defaultImageExtensions...),
			DirectoryPattern:   DefaultDirectoryPattern,
		},
		Store: Store{
			Backend:  defaultStoreBackend,
			MaxConns: defaultPostgresMaxConns,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
	}
}
