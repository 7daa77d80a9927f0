package config

import "time"

const (
	DefaultAddress        = ":8080"
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultRequestTimeout = 20 * time.Second

	// DefaultDeadline keeps synchronous waiting under a 60s platform ceiling.
	DefaultDeadline     = 55 * time.Second
	DefaultInitialDelay = 700 * time.Millisecond
	DefaultMultiplier   = 1.3
	DefaultMaxDelay     = 2200 * time.Millisecond

	DefaultRegistryURL      = "/links.json"
	DefaultRegistryTTL      = 5 * time.Minute
	DefaultRegistryStaleTTL = 24 * time.Hour

	DefaultMaxSources = 4

	DefaultLivenessTimeout     = 4500 * time.Millisecond
	DefaultLivenessTTL         = 24 * time.Hour
	DefaultLivenessConcurrency = 4
)

var DefaultPreferredIDs = []string{"headspace", "beyond-blue", "lifeline"}

// DefaultFollowupInstructions replaces the assistant's behaviour instructions
// for follow-up turns so the answer is short and ends with a source list.
// The disclaimer sits above the Sources heading since everything from that
// heading down is removed before the answer reaches the widget.
const DefaultFollowupInstructions = `
FOLLOW-UP MODE:
Return ONLY these two sections using markdown headings:
## Why this matters
<≤120 words in plain English>
Finish this section with the line: "` + Disclaimer + `"

## Sources
- [Readable title 1](https://valid.au.url/...)
- [Readable title 2](https://valid.au.url/...)
(3–5 items, markdown links only)
`

// Disclaimer closes every follow-up answer.
const Disclaimer = "Information only. Not a medical diagnosis. In an emergency call 000."
