package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/TEENet-io/pmm-go/cmd"
	"github.com/TEENet-io/pmm-go/config"
	"github.com/TEENet-io/pmm-go/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "PMM_CONFIG"
)

func main() {
	// Tool to read environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.SetDefaults()

	// A configuration file is optional, env vars alone are enough.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	if _config_file != "" {
		fmt.Printf("PMM server configuration file = %s\n", _config_file)
		if !initializeViper(_config_file) {
			return
		}
	}

	// Make the configuration
	settings, err := config.FromViper()
	if err != nil {
		fmt.Printf("Error loading pmm server configuration: %v\n", err)
		return
	}
	logconfig.ConfigByName(settings.LogLevel)

	fmt.Println("Starting pmm server... press Ctrl+C to kill the server")
	// Start server and block.
	cmd.StartPmmServerAndWait(settings)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s\n", err)
		return false
	}
	return true
}
