package provider

import "testing"

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ollama ok", Config{Backend: BackendOllama, Model: "llama3"}, false},
		{"ollama missing model", Config{Backend: BackendOllama}, true},
		{"openai ok", Config{Backend: BackendOpenAI, APIKey: "sk-x", Model: "gpt-4o"}, false},
		{"openai missing key", Config{Backend: BackendOpenAI, Model: "gpt-4o"}, true},
		{"azure missing deployment", Config{Backend: BackendAzure, APIKey: "k", BaseURL: "https://x"}, true},
		{"bedrock ok", Config{Backend: BackendBedrock, BaseURL: "https://rt", Model: "anthropic.claude-3-haiku"}, false},
		{"bedrock missing endpoint", Config{Backend: BackendBedrock, Model: "m"}, true},
		{"bedrock missing model", Config{Backend: BackendBedrock, BaseURL: "https://rt"}, true},
		{"gemini missing key", Config{Backend: BackendGemini, Model: "gemini-1.5-pro"}, true},
		{"unknown backend", Config{Backend: "watsonx"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestConfigFromEnv_Bedrock(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "bedrock")
	t.Setenv("BEDROCK_RUNTIME_ENDPOINT", "https://bedrock-runtime.us-east-1.amazonaws.com")
	t.Setenv("BEDROCK_API_KEY", "key")
	t.Setenv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0")
	t.Setenv("MODEL_MAX_TOKENS", "256")
	t.Setenv("MODEL_TEMPERATURE", "0.7")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendBedrock {
		t.Errorf("Backend = %q, want bedrock", cfg.Backend)
	}
	if cfg.BaseURL != "https://bedrock-runtime.us-east-1.amazonaws.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.MaxTokens != 256 {
		t.Errorf("MaxTokens = %d, want 256", cfg.MaxTokens)
	}
	if cfg.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", cfg.Temperature)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("MODEL_MAX_TOKENS", "")
	t.Setenv("MODEL_TEMPERATURE", "")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendOllama {
		t.Errorf("Backend = %q, want ollama", cfg.Backend)
	}
	if cfg.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d, want 512", cfg.MaxTokens)
	}
	if cfg.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", cfg.Temperature)
	}
}
