// Package gemini implements generation.Provider on top of Google's Gemini
// API via the google.golang.org/genai client.
//
// Each Generate call sends a single request that asks for a JSON answer
// constrained by the job's response schema. The provider does not retry and
// does not validate the answer; it classifies failures so the job runner can
// decide whether another attempt is worthwhile:
//
//   - rate limiting, 5xx responses and network errors wrap generation.ErrTransient
//   - other 4xx responses wrap generation.ErrPermanent
//   - safety refusals wrap generation.ErrContentBlocked
//   - an answer with no text wraps generation.ErrEmptyResponse
//
// A response cut off by the output token limit is returned as-is so the
// validator can report it as truncated.
package gemini
