package config

const (
	defaultOrchestratorURL = "http://localhost:8000/api/orchestrator"
	defaultChatURL         = "http://localhost:8000/chat"
	defaultSessionID       = "chatline"

	defaultRelayListen   = ":8080"
	defaultRelayUpstream = "http://localhost:8000"

	defaultMaxQuestions     = 20
	defaultMaxContentLength = 1000

	defaultBookingBaseURL = "https://calendly.com/gorightgoleft"

	defaultKafkaTopic = "chatline.exchanges"
)

var defaultFrequentQuestions = []string{
	"What kyox.ai Does",
	"Founder Information",
	"Differentiation from Competitors",
	"Mission & Unique Value Proposition (UVP)",
	"How kyox.ai Can Help (FAQs with Answers)",
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			OrchestratorURL: defaultOrchestratorURL,
			ChatURL:         defaultChatURL,
			SessionID:       defaultSessionID,
		},
		Relay: RelayConfig{
			Listen:   defaultRelayListen,
			Upstream: defaultRelayUpstream,
		},
		Widget: WidgetConfig{
			MaxQuestions:      defaultMaxQuestions,
			MaxContentLength:  defaultMaxContentLength,
			FrequentQuestions: append([]string(nil), defaultFrequentQuestions...),
		},
		Booking: BookingConfig{
			BaseURL: defaultBookingBaseURL,
		},
		EventStream: EventStreamConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
