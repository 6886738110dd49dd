package providers

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/config"
	"github.com/zxtrader/pricing-sub000/internal/providers/binance"
	"github.com/zxtrader/pricing-sub000/internal/providers/coinbase"
	"github.com/zxtrader/pricing-sub000/internal/providers/coingecko"
	"github.com/zxtrader/pricing-sub000/internal/providers/cryptocompare"
	"github.com/zxtrader/pricing-sub000/internal/types"
)

// Factory builds loaders from configuration
type Factory struct {
	logger             logrus.FieldLogger
	supportedProviders map[string]func(config.ProviderConfig) (types.PriceLoader, error)
}

// NewFactory creates a new provider factory
func NewFactory(logger logrus.FieldLogger) *Factory {
	factory := &Factory{
		logger:             logger,
		supportedProviders: make(map[string]func(config.ProviderConfig) (types.PriceLoader, error)),
	}

	// Register supported providers
	factory.registerProviders()
	return factory
}

// registerProviders registers all supported providers
func (f *Factory) registerProviders() {
	f.supportedProviders[cryptocompare.Name] = f.createCryptoCompareProvider
	f.supportedProviders[binance.Name] = f.createBinanceProvider
	f.supportedProviders[coinbase.Name] = f.createCoinbaseProvider
	f.supportedProviders[coingecko.Name] = f.createCoinGeckoProvider
}

// CreateProvider creates a loader based on configuration. Missing
// mandatory settings yield a *types.ConfigurationError.
func (f *Factory) CreateProvider(cfg config.ProviderConfig) (types.PriceLoader, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}

	createFunc, exists := f.supportedProviders[strings.ToUpper(cfg.Name)]
	if !exists {
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Name)
	}

	return createFunc(cfg)
}

// GetSupportedProviders returns a list of supported source ids
func (f *Factory) GetSupportedProviders() []string {
	providers := make([]string, 0, len(f.supportedProviders))
	for name := range f.supportedProviders {
		providers = append(providers, name)
	}
	return providers
}

// CreateProviderManager creates a registry holding every enabled provider
func (f *Factory) CreateProviderManager(configs []config.ProviderConfig) (*ProviderManager, error) {
	manager := NewProviderManager()

	for _, cfg := range configs {
		if !cfg.Enabled {
			f.logger.WithField("source", cfg.Name).Info("Provider disabled")
			continue
		}

		provider, err := f.CreateProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", cfg.Name, err)
		}

		manager.AddProvider(provider)
	}

	return manager, nil
}

func (f *Factory) createCryptoCompareProvider(cfg config.ProviderConfig) (types.PriceLoader, error) {
	client, err := cryptocompare.NewClient(&cryptocompare.Config{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
	}, f.logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (f *Factory) createBinanceProvider(cfg config.ProviderConfig) (types.PriceLoader, error) {
	return binance.NewClient(&binance.Config{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
	}, f.logger), nil
}

func (f *Factory) createCoinbaseProvider(cfg config.ProviderConfig) (types.PriceLoader, error) {
	return coinbase.NewClient(&coinbase.Config{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
	}, f.logger), nil
}

func (f *Factory) createCoinGeckoProvider(cfg config.ProviderConfig) (types.PriceLoader, error) {
	return coingecko.NewClient(&coingecko.Config{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
	}, f.logger), nil
}
