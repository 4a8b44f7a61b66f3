package logging

import (
	"sync"
)

var (
	instance *Logger
	once     sync.Once
	mu       sync.RWMutex
	pending  *Config
)

// InitLogger configures and eagerly constructs the global logger. Call
// once during process startup, before any component logs.
func InitLogger(cfg *Config) error {
	mu.Lock()
	pending = cfg
	mu.Unlock()

	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	instance = logger
	mu.Unlock()
	return nil
}

// GetGlobalLogger returns the singleton logger, lazily building a
// stdout fallback logger if InitLogger was never called (useful in
// tests and short-lived CLI commands).
func GetGlobalLogger() *Logger {
	mu.RLock()
	if instance != nil {
		defer mu.RUnlock()
		return instance
	}
	mu.RUnlock()

	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if instance != nil {
			return
		}
		cfg := pending
		if cfg == nil {
			cfg = &Config{Level: LevelInfo, File: "stdout", MaxSize: 100, MaxBackups: 3, MaxAge: 7}
		}
		logger, err := NewLogger(cfg)
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}
		instance = logger
	})

	mu.RLock()
	defer mu.RUnlock()
	return instance
}
