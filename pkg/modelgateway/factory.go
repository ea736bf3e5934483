package modelgateway

import (
	"fmt"

	"github.com/inkwell-ai/storyforge/pkg/config"
)

// NewFromProviderConfig builds the Gateway implementation matching p's
// configured type, used by cmd/storyforge/main.go to wire each configured
// model provider once at startup.
func NewFromProviderConfig(p *config.ModelProviderConfig) (Gateway, error) {
	switch p.Type {
	case config.ModelProviderStub:
		return NewStubGateway(), nil
	case config.ModelProviderHTTP:
		return NewHTTPGateway(p.BaseURLEnv, p.APIKeyEnv, p.Model, p.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported model provider type: %s", p.Type)
	}
}
