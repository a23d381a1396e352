package utils

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
)

var EtcDir = "."
var DataDir = "."

type ServiceConfig struct {
	GSARHostname string `json:"gsar_hostname"`
	MASAddress   string `json:"mas_address"`
	MaxConns     int    `json:"max_conns"`
	S3PageSize   int    `json:"s3_page_size"`
	TemplateDir  string `json:"template_dir"`
}

// Collection publishes one SAR product file (local path or s3:// URI)
// under a stable name.
type Collection struct {
	NameSpace    string
	Name         string `json:"name"`
	Title        string `json:"title"`
	Path         string `json:"path"`
	DefaultArray string `json:"default_array"`
	MaskPNG      bool   `json:"mask_png"`
}

// Config is the configuration of one gsar server namespace: the service
// settings plus the list of published collections.
type Config struct {
	ServiceConfig ServiceConfig `json:"service_config"`
	Collections   []Collection  `json:"collections"`
}

// string used to format Go ISO times
const ISOFormat = "2006-01-02T15:04:05.000Z"

const DefaultMaxConns = 256

func LoadAllConfigFiles(rootDir string) (map[string]*Config, error) {
	configMap := make(map[string]*Config)
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && info.Name() == "config.json" {
			relPath, _ := filepath.Rel(rootDir, filepath.Dir(path))
			log.Printf("Loading config file: %s under namespace: %s\n", path, relPath)

			config := &Config{}
			e := config.LoadConfigFile(path)
			if e != nil {
				return e
			}

			configMap[relPath] = config

			for i := range config.Collections {
				ns := relPath
				if relPath == "." {
					ns = ""
				}
				config.Collections[i].NameSpace = ns
			}
		}
		return nil
	})

	if err == nil && len(configMap) == 0 {
		err = fmt.Errorf("No config file found")
	}

	return configMap, err
}

// LoadConfigFile marshalls the config.json document returning an
// instance of a Config variable containing all the values
func (config *Config) LoadConfigFile(configFile string) error {
	*config = Config{}
	cfg, err := ioutil.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("Error while reading config file: %s. Error: %v", configFile, err)
	}

	err = json.Unmarshal(cfg, config)
	if err != nil {
		return fmt.Errorf("Error at JSON parsing config document: %s. Error: %v", configFile, err)
	}

	if config.ServiceConfig.MaxConns <= 0 {
		config.ServiceConfig.MaxConns = DefaultMaxConns
	}

	for i, col := range config.Collections {
		if len(strings.TrimSpace(col.Name)) == 0 {
			return fmt.Errorf("Collection %d in %s has no name", i, configFile)
		}
		if len(strings.TrimSpace(col.Path)) == 0 {
			return fmt.Errorf("Collection %s in %s has no product path", col.Name, configFile)
		}
	}
	return nil
}

// GetCollection looks a collection up by namespace-qualified name.
func GetCollection(configMap map[string]*Config, namespace, name string) (*Collection, error) {
	ns := namespace
	if ns == "" {
		ns = "."
	}
	config, ok := configMap[ns]
	if !ok {
		return nil, fmt.Errorf("namespace %s not found", namespace)
	}
	for i := range config.Collections {
		if config.Collections[i].Name == name {
			return &config.Collections[i], nil
		}
	}
	return nil, fmt.Errorf("collection %s not found under namespace %s", name, namespace)
}

func WatchConfig(infoLog, errLog *log.Logger, configMap *map[string]*Config) {
	// Catch SIGHUP to automatically reload config
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-sighup:
				infoLog.Println("Caught SIGHUP, reloading config...")
				confMap, err := LoadAllConfigFiles(EtcDir)
				if err != nil {
					errLog.Printf("Error in loading config files: %v\n", err)
					return
				}

				for k := range *configMap {
					delete(*configMap, k)
				}

				for k := range confMap {
					(*configMap)[k] = confMap[k]
				}
			}
		}
	}()
}
