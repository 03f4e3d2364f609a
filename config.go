package ddprofiler

import (
	"github.com/spf13/viper"
)

func loadConfig() {
	viper.SetConfigName("ddprofilerrc")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.ddprofiler")

	setupDefaults()

	viper.ReadInConfig()

	viper.SetEnvPrefix("ddprofiler")
	viper.AutomaticEnv()
}

func setupDefaults() {
	defaultSettings := map[string]interface{}{
		"execution_mode":         "offline_files",
		"store_type":             "elastic",
		"sources_folder":         ".",
		"csv_separator":          ",",
		"db_name":                "default",
		"num_workers":            0, // 0 uses one worker per CPU
		"report_metrics_console": 0, // seconds between stats reports, 0 disables
		"db_properties":          "db.properties",
		"listen_address":         ":8080",
		"benchmark_threshold":    DefaultBenchmarkThreshold,
		"benchmark_duration":     "0s",
		"max_rows":               0,
		"progress":               true,
		"log_level":              "info",
		"verbose":                false,

		"elastic_addresses": []string{"http://localhost:9200"},
		"elastic_username":  "",
		"elastic_password":  "",
		"store_index":       "profile",
		"store_dsn":         "",
		"store_table":       "profiles",
		"store_dir":         "profiles",
		"store_bins":        8,
		"store_batch_size":  500,
		"store_flush":       "5s",
	}
	for key, value := range defaultSettings {
		viper.SetDefault(key, value)
	}

	aliases := map[string]string{
		"verbose":        "v",
		"execution_mode": "mode",
		"sources_folder": "sources",
		"num_workers":    "workers",
	}
	for key, alias := range aliases {
		viper.RegisterAlias(alias, key)
	}
}
