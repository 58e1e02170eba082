package config

const (
	DefaultVoice         = "alloy"
	DefaultRealtimeModel = "gpt-4o-realtime-preview"
	DefaultChatModel     = "gpt-5.1"
	DefaultTextChatModel = "gpt-4o"
)

// ServerDefaults returns a Server config with sensible default values.
func ServerDefaults() *Server {
	return &Server{
		HTTP: HTTPConfig{
			Addr:             ":8080",
			ReadTimeoutSecs:  30,
			WriteTimeoutSecs: 300,
		},
		Storage: StorageConfig{
			DataDir:     ".flowdesk",
			LogRingSize: 1000,
		},
		Agent: AgentConfig{
			SystemPrompt: "You are a helpful assistant that manages SharePoint client communications. " +
				"You can fetch conversation records, send emails, book meetings, reply to threads, " +
				"and manage SharePoint items. Always be professional and clear in your responses.",
			DefaultModel:        DefaultChatModel,
			ModelTimeoutSecs:    120,
			DispatchTimeoutSecs: 30,
			DispatchPoolSize:    16,
		},
		LLM: LLMConfig{
			Provider:   "openai",
			MaxRetries: 2,
		},
		LogLevel: "info",
	}
}

// DefaultSettings mirrors the values the setup UI starts from.
func DefaultSettings() Settings {
	return Settings{
		Temperature:       0.8,
		VADThreshold:      0.5,
		PrefixPaddingMS:   300,
		SilenceDurationMS: 500,
		TextChatModel:     DefaultTextChatModel,
	}
}
