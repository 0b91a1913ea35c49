package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// ProviderConfig manages payment gateway configurations. Configurations are
// keyed per merchant for multi-merchant deployments; a configuration stored
// under the bare provider name is the process-wide default that requests
// without a merchant fall back to.
type ProviderConfig struct {
	configs map[string]map[string]string
	storage *SQLiteStorage // persistent storage, nil means memory-only
	mu      sync.RWMutex   // Thread-safe access
}

// NewProviderConfig creates a provider configuration backed by the given
// storage. A nil storage keeps everything in memory, which is what tests
// and single-merchant embedded setups want.
func NewProviderConfig(storage *SQLiteStorage) *ProviderConfig {
	config := &ProviderConfig{
		configs: make(map[string]map[string]string),
		storage: storage,
	}

	if storage != nil {
		if err := config.loadFromStorage(); err != nil {
			log.Printf("Warning: Failed to load configurations from storage: %v", err)
		}
	}

	return config
}

// loadFromStorage loads all merchant configurations from persistent storage
func (c *ProviderConfig) loadFromStorage() error {
	if c.storage == nil {
		return fmt.Errorf("storage not initialized")
	}

	configs, err := c.storage.LoadAllMerchantConfigs()
	if err != nil {
		return fmt.Errorf("failed to load configs from storage: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range configs {
		c.configs[k] = v
	}

	return nil
}

// SetMerchantConfig dynamically sets configuration for a specific merchant and provider
func (c *ProviderConfig) SetMerchantConfig(merchantID, providerName string, config map[string]string) error {
	if merchantID == "" {
		return fmt.Errorf("merchant ID cannot be empty")
	}
	if providerName == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if len(config) == 0 {
		return fmt.Errorf("config cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.storage != nil {
		if err := c.storage.SaveMerchantConfig(merchantID, providerName, config); err != nil {
			return fmt.Errorf("failed to save config to storage: %w", err)
		}
	}

	c.configs[merchantProviderKey(merchantID, providerName)] = config
	return nil
}

// GetMerchantConfig returns configuration for a specific merchant and provider
func (c *ProviderConfig) GetMerchantConfig(merchantID, providerName string) (map[string]string, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("merchant ID cannot be empty")
	}

	key := merchantProviderKey(merchantID, providerName)

	c.mu.RLock()
	config, exists := c.configs[key]
	c.mu.RUnlock()

	// If not found in memory, try persistent storage
	if !exists && c.storage != nil {
		stored, err := c.storage.LoadMerchantConfig(merchantID, providerName)
		if err == nil {
			c.mu.Lock()
			c.configs[key] = stored
			c.mu.Unlock()
			config = stored
			exists = true
		}
	}

	if !exists {
		return nil, fmt.Errorf("no configuration found for merchant: %s, provider: %s", merchantID, providerName)
	}

	// Return a copy to prevent external modification
	configCopy := make(map[string]string, len(config))
	for k, v := range config {
		configCopy[k] = v
	}

	return configCopy, nil
}

// DeleteMerchantConfig deletes a merchant configuration
func (c *ProviderConfig) DeleteMerchantConfig(merchantID, providerName string) error {
	if merchantID == "" {
		return fmt.Errorf("merchant ID cannot be empty")
	}
	if providerName == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.storage != nil {
		if err := c.storage.DeleteMerchantConfig(merchantID, providerName); err != nil {
			return fmt.Errorf("failed to delete config from storage: %w", err)
		}
	}

	delete(c.configs, merchantProviderKey(merchantID, providerName))
	return nil
}

// SetDefaultConfig sets the process-wide configuration for a provider,
// used when a request carries no merchant
func (c *ProviderConfig) SetDefaultConfig(providerName string, config map[string]string) error {
	if providerName == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if len(config) == 0 {
		return fmt.Errorf("config cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.configs[strings.ToLower(providerName)] = config
	return nil
}

// GetConfig returns the process-wide configuration for a provider
func (c *ProviderConfig) GetConfig(providerName string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	config, exists := c.configs[strings.ToLower(providerName)]
	if !exists {
		return nil, fmt.Errorf("no configuration found for provider: %s", providerName)
	}

	configCopy := make(map[string]string, len(config))
	for k, v := range config {
		configCopy[k] = v
	}
	return configCopy, nil
}

// GetAvailableProviders returns all providers that have a process-wide configuration
func (c *ProviderConfig) GetAvailableProviders() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	providers := make([]string, 0, len(c.configs))
	for provider := range c.configs {
		// Skip merchant-specific configs (they contain underscore)
		if !strings.Contains(provider, "_") {
			providers = append(providers, provider)
		}
	}
	return providers
}

// LoadFromEnv builds a provider configuration from environment variables.
// Variables named <PROVIDER>_<SNAKE_CASE_KEY> map to camelCase config keys,
// so PESAPAL_CONSUMER_KEY becomes consumerKey and PESAPAL_CALLBACK_BASE_URL
// becomes callbackBaseUrl. An empty map means nothing was set.
func (c *ProviderConfig) LoadFromEnv(providerName string) map[string]string {
	prefix := strings.ToUpper(providerName) + "_"

	config := make(map[string]string)
	for _, entry := range os.Environ() {
		if !strings.HasPrefix(entry, prefix) {
			continue
		}
		pair := strings.SplitN(entry, "=", 2)
		if len(pair) != 2 || pair[1] == "" {
			continue
		}
		config[envSuffixToConfigKey(strings.TrimPrefix(pair[0], prefix))] = pair[1]
	}
	return config
}

// GetStats returns configuration and storage statistics
func (c *ProviderConfig) GetStats() (map[string]any, error) {
	stats := make(map[string]any)

	c.mu.RLock()
	memoryConfigs := len(c.configs)
	c.mu.RUnlock()

	stats["memory_configs"] = memoryConfigs

	if c.storage != nil {
		storageStats, err := c.storage.GetStats()
		if err != nil {
			stats["storage_error"] = err.Error()
		} else {
			stats["storage"] = storageStats
		}
	} else {
		stats["storage"] = "not_available"
	}

	return stats, nil
}

// merchantProviderKey builds the map key for a merchant's provider config
func merchantProviderKey(merchantID, providerName string) string {
	return fmt.Sprintf("%s_%s", strings.ToUpper(merchantID), strings.ToLower(providerName))
}

// envSuffixToConfigKey converts CONSUMER_KEY to consumerKey
func envSuffixToConfigKey(suffix string) string {
	parts := strings.Split(strings.ToLower(suffix), "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}
