package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 60
	}
	if cfg.Server.RateLimitPerSecond == 0 {
		cfg.Server.RateLimitPerSecond = 50
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = 100
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Store.DatabasePath == "" {
		cfg.Store.DatabasePath = "/usr/local/var/erabu/data/descriptors.db"
	}
	if cfg.Store.BatchSize == 0 {
		cfg.Store.BatchSize = 256
	}
	if cfg.Neighbor.DistanceMetric == "" {
		cfg.Neighbor.DistanceMetric = "euclidean"
	}
	if cfg.Neighbor.BitLength == 0 {
		cfg.Neighbor.BitLength = 16
	}
	if cfg.Neighbor.RandomSeed == 0 {
		cfg.Neighbor.RandomSeed = 42
	}
	if cfg.Neighbor.Reload.PollIntervalSeconds == 0 {
		cfg.Neighbor.Reload.PollIntervalSeconds = 10
	}
	if cfg.Neighbor.Reload.SettleWindowSeconds == 0 {
		cfg.Neighbor.Reload.SettleWindowSeconds = 5
	}
	if cfg.Relevancy.NegativeAugmentRatio == 0 {
		cfg.Relevancy.NegativeAugmentRatio = 1.0
	}
	if cfg.Relevancy.Concurrency == 0 {
		cfg.Relevancy.Concurrency = 4
	}
	if cfg.Classifier.LearningRate == 0 {
		cfg.Classifier.LearningRate = 0.1
	}
	if cfg.Classifier.Epochs == 0 {
		cfg.Classifier.Epochs = 100
	}
	if cfg.Classifier.L2Penalty == 0 {
		cfg.Classifier.L2Penalty = 0.001
	}
	if cfg.Session.PositiveSeedNeighbors == 0 {
		cfg.Session.PositiveSeedNeighbors = 20
	}
	if cfg.Session.Expiration.CheckIntervalSeconds == 0 {
		cfg.Session.Expiration.CheckIntervalSeconds = 30
	}
	if cfg.Session.Expiration.SessionTimeoutSecs == 0 {
		cfg.Session.Expiration.SessionTimeoutSecs = 3600
	}
}
