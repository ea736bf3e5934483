package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ImageTaskKey derives a stable content-address for a phase-5 image task
// from its prompt, negative prompt, and style parameters, so two tasks
// asking for the same image (even if submitted in different goroutines)
// collapse to the same cache entry.
func ImageTaskKey(prompt, negativePrompt string, styleParameters map[string]any) string {
	h := sha256.New()
	fmt.Fprintf(h, "prompt:%s\nnegative:%s\n", prompt, negativePrompt)

	keys := make([]string, 0, len(styleParameters))
	for k := range styleParameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := json.Marshal(styleParameters[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", styleParameters[k]))
		}
		fmt.Fprintf(h, "style:%s=%s\n", k, v)
	}

	return hex.EncodeToString(h.Sum(nil))
}
