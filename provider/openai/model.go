package openai

import (
	"sync"

	"github.com/casualjim/instruct/internal/registry"
	"github.com/casualjim/instruct/provider"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var modelRegistry = registry.New[*Model]()

func GPT4oMini(opts ...option.RequestOption) *Model {
	return NewModel(openai.ChatModelGPT4oMini, opts...)
}

func GPT4o(opts ...option.RequestOption) *Model {
	return NewModel(openai.ChatModelGPT4o, opts...)
}

func O1Mini(opts ...option.RequestOption) *Model {
	return NewModel(openai.ChatModelO1Mini, opts...)
}

func O1(opts ...option.RequestOption) *Model {
	return NewModel(openai.ChatModelO1, opts...)
}

// NewModel returns the model registered under name, registering it with opts on first use.
// Options passed for an already registered name are ignored.
func NewModel(name string, opts ...option.RequestOption) *Model {
	m, _ := modelRegistry.GetOrAdd(name, func() *Model {
		return &Model{
			name: name,
			opts: opts,
		}
	})
	return m
}

// Model pairs a model name with the client options used to reach it.
type Model struct {
	name string
	opts []option.RequestOption

	prov     *Provider
	provOnce sync.Once
}

func (m *Model) Name() string {
	return m.name
}

// Provider returns a provider that defaults requests without a model to this model.
func (m *Model) Provider() provider.Provider {
	m.provOnce.Do(func() {
		m.prov = New(m.opts...)
		m.prov.defaultModel = m.name
	})
	return m.prov
}
