package modelgateway

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// StubGateway is a deterministic, dependency-free Gateway used in tests and
// wired as the "stub" built-in model provider. It never fails and never
// calls out to the network, letting every phase agent, the fan-out engine,
// and the orchestrator be exercised without a real backend.
type StubGateway struct{}

// NewStubGateway constructs a StubGateway.
func NewStubGateway() *StubGateway {
	return &StubGateway{}
}

// GenerateText returns a deterministic JSON-shaped string derived from the
// prompt's hash, so repeated calls with the same prompt are reproducible
// (useful for cache-hit assertions in tests).
func (g *StubGateway) GenerateText(_ context.Context, req TextRequest) (TextResponse, error) {
	hash := sha256.Sum256([]byte(req.Prompt))
	digest := hex.EncodeToString(hash[:])[:12]
	content := fmt.Sprintf(`{"stub_digest":%q,"phase":%d,"note":"deterministic stub output"}`, digest, req.Phase)
	return TextResponse{
		Content:      content,
		ModelID:      "stub-deterministic",
		LatencyMs:    1,
		FinishReason: "stop",
	}, nil
}

// GenerateImage returns a deterministic placeholder image URL derived from
// the prompt's hash, along with a deterministic self-reported quality score
// in [0.7, 0.95] (mirroring the random.uniform(0.7, 0.95) the original
// backend's simulated generator used, made reproducible by hashing the full
// request instead of calling random.uniform) so repeated runs over a warm
// cache, and even cold runs against this stub, produce identical scores per
// spec §4.4's idempotence requirement.
func (g *StubGateway) GenerateImage(_ context.Context, req ImageRequest) (ImageResponse, error) {
	hash := sha256.Sum256([]byte(req.Prompt))
	digest := hex.EncodeToString(hash[:])[:12]
	return ImageResponse{
		ImageURL:     fmt.Sprintf("stub://image/%s.png", digest),
		ThumbnailURL: fmt.Sprintf("stub://thumbnail/%s.png", digest),
		Quality:      deterministicQuality(req),
		LatencyMs:    1,
	}, nil
}

// deterministicQuality derives a stable [0.7, 0.95] score from the full
// image request so two requests asking for the same image always receive
// the same self-reported quality.
func deterministicQuality(req ImageRequest) float64 {
	h := sha256.New()
	fmt.Fprintf(h, "prompt:%s\nnegative:%s\n", req.Prompt, req.NegativePrompt)

	keys := make([]string, 0, len(req.StyleParameters))
	for k := range req.StyleParameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := json.Marshal(req.StyleParameters[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", req.StyleParameters[k]))
		}
		fmt.Fprintf(h, "style:%s=%s\n", k, v)
	}

	sum := h.Sum(nil)
	n := binary.BigEndian.Uint32(sum[:4])
	return 0.7 + 0.25*(float64(n%1000)/1000.0)
}
