package providers

import (
	"fmt"
	"strings"

	"cardflow/internal/config"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

type NamedTranscribeProvider struct {
	Ref      ProviderRef
	Provider TranscriptionProvider
}

// Manager holds the configured provider sets. Selection is configuration
// driven; call sites never branch on provider names.
type Manager struct {
	llmProviders        []NamedLLMProvider
	embedProviders      []NamedEmbedProvider
	transcribeProviders []NamedTranscribeProvider
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support llm generation", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	for _, ref := range ParseProviderList(cfg.TranscribeProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		tr, ok := p.(TranscriptionProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support transcription", ref.Raw)
		}
		m.transcribeProviders = append(m.transcribeProviders, NamedTranscribeProvider{Ref: ref, Provider: tr})
	}
	if len(m.llmProviders) == 0 {
		m.llmProviders = []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(cfg.EmbedDim)}}
	}
	if len(m.embedProviders) == 0 {
		m.embedProviders = []NamedEmbedProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(cfg.EmbedDim)}}
	}
	if len(m.transcribeProviders) == 0 {
		m.transcribeProviders = []NamedTranscribeProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(cfg.EmbedDim)}}
	}
	return m, nil
}

func (m *Manager) FirstLLMProvider() (LLMProvider, ProviderRef) {
	return m.llmProviders[0].Provider, m.llmProviders[0].Ref
}

func (m *Manager) FirstEmbedProvider() (EmbeddingProvider, ProviderRef) {
	return m.embedProviders[0].Provider, m.embedProviders[0].Ref
}

func (m *Manager) FirstTranscribeProvider() (TranscriptionProvider, ProviderRef) {
	return m.transcribeProviders[0].Provider, m.transcribeProviders[0].Ref
}

func (m *Manager) LLMProviderByIndex(i int) (LLMProvider, ProviderRef) {
	if i < 0 || i >= len(m.llmProviders) {
		i = 0
	}
	return m.llmProviders[i].Provider, m.llmProviders[i].Ref
}

func (m *Manager) EmbedProviderByIndex(i int) (EmbeddingProvider, ProviderRef) {
	if i < 0 || i >= len(m.embedProviders) {
		i = 0
	}
	return m.embedProviders[i].Provider, m.embedProviders[i].Ref
}

func (m *Manager) TranscribeProviderByIndex(i int) (TranscriptionProvider, ProviderRef) {
	if i < 0 || i >= len(m.transcribeProviders) {
		i = 0
	}
	return m.transcribeProviders[i].Provider, m.transcribeProviders[i].Ref
}

func (m *Manager) LLMCount() int        { return len(m.llmProviders) }
func (m *Manager) EmbedCount() int      { return len(m.embedProviders) }
func (m *Manager) TranscribeCount() int { return len(m.transcribeProviders) }

// MockOnly reports whether every configured provider is the deterministic
// mock. Used to distinguish dev/test deployments from production, where a
// provider failure must surface as a failed stage instead of a mock fallback.
func (m *Manager) MockOnly() bool {
	for _, p := range m.llmProviders {
		if strings.ToLower(p.Ref.Name) != "mock" {
			return false
		}
	}
	for _, p := range m.embedProviders {
		if strings.ToLower(p.Ref.Name) != "mock" {
			return false
		}
	}
	return true
}

func buildProvider(ref ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaEmbeddingProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
