package config

// Default returns the built-in configuration values. Load starts from these
// and overlays whatever the config file provides.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: "~/.local/share/fetcharr",
			LogDir:  "~/.local/share/fetcharr/logs",
			Bind:    "127.0.0.1:7878",
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
		Indexer: Indexer{
			BaseURL:        "http://127.0.0.1:9696",
			TimeoutSeconds: 30,
			RateLimit:      RateLimit{Requests: 40, WindowSeconds: 10},
			Breaker:        Breaker{FailureThreshold: 5, WindowSeconds: 60, CooldownSeconds: 60},
		},
		DownloadClient: DownloadClient{
			BaseURL:        "http://127.0.0.1:8080",
			Category:       "fetcharr",
			TimeoutSeconds: 30,
			RateLimit:      RateLimit{Requests: 40, WindowSeconds: 10},
			Breaker:        Breaker{FailureThreshold: 5, WindowSeconds: 60, CooldownSeconds: 60},
		},
		Scoring: Scoring{
			ResolutionWeights: map[string]float64{
				"2160p": 100,
				"1080p": 90,
				"720p":  60,
				"480p":  20,
			},
			SourceWeights: map[string]float64{
				"remux":  40,
				"bluray": 35,
				"web-dl": 30,
				"webrip": 22,
				"hdtv":   15,
				"cam":    -100,
			},
			CodecWeights: map[string]float64{
				"av1":  15,
				"hevc": 12,
				"h264": 8,
			},
			MinimumScore:      50,
			ForbiddenKeywords: []string{"hdcam", "telesync", "telecine", "sample"},
			MinSeeders:        3,
			SeederPenalty:     30,
			GroupBonus:        10,
			FreeleechBonus:    5,
			InternalBonus:     5,
			MaxSizeGB:         80,
			SizeEpsilon:       2,
		},
		Queue: Queue{
			MaxConcurrentDownloads:  3,
			MaxAttempts:             3,
			DispatchIntervalSeconds: 30,
			SyncIntervalSeconds:     60,
			CleanupIntervalSeconds:  3600,
			BackoffBaseSeconds:      30,
			BackoffCapSeconds:       1800,
			RetentionDays:           14,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: 10,
			OnComplete:            true,
			OnFailed:              true,
		},
	}
}
