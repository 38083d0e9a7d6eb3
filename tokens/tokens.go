// Package tokens estimates how many model tokens a piece of text costs.
// The count is shown in the status bar and is informational only.
package tokens

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// Encoding is the BPE used for the estimate. It matches GPT-4; Claude and
// Gemini counts land close enough for a status bar.
const Encoding = "cl100k_base"

var (
	once sync.Once
	enc  *tiktoken.Tiktoken
)

// load fetches the encoding on first use. Without network access or a
// TIKTOKEN_CACHE_DIR the load fails and Count falls back to Estimate.
func load() *tiktoken.Tiktoken {
	once.Do(func() {
		e, err := tiktoken.GetEncoding(Encoding)
		if err != nil {
			log.Debug().Err(err).Msg("tiktoken unavailable, using length estimate")
			return
		}
		enc = e
	})
	return enc
}

// Count returns the token count of text.
func Count(text string) int {
	if text == "" {
		return 0
	}
	if e := load(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Estimate approximates a token count as one token per four bytes.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
