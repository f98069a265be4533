package solaredge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The playback endpoint answers with a loosely quoted script-object
// literal rather than JSON: strings are single-quoted and object keys are
// bare identifiers. normalizePlayback rewrites that into strict JSON.

// Timestamps in reportersData carry no zone offset, only a literal "GMT".
const playbackTimeLayout = "Mon Jan 02 15:04:05 GMT 2006"

// A bare key is only quoted directly after '{' or ',', so a key name
// occurring inside a longer token, a quoted string, or an already quoted
// key is left alone. That makes the rewrite idempotent.
var bareKeyPattern = regexp.MustCompile(`([{,]\s*)([A-Za-z_$][A-Za-z0-9_$]*)\s*:`)

func normalizePlayback(body string) string {
	// Quote conversion must run first; key quoting relies on string
	// delimiters already being double quotes.
	normalized := strings.ReplaceAll(body, "'", `"`)
	return bareKeyPattern.ReplaceAllString(normalized, `${1}"${2}":`)
}

// decodePlayback normalizes and decodes a playback response body into
// samples. A decode failure after normalization usually means the
// upstream format drifted away from the rewrite rules.
func decodePlayback(body []byte) ([]EnergySample, error) {
	normalized := normalizePlayback(string(body))

	var payload playbackResponse
	if err := json.Unmarshal([]byte(normalized), &payload); err != nil {
		return nil, &FetchError{Message: "decoding playback data", Err: err}
	}

	samples := make([]EnergySample, 0, len(payload.ReportersData))
	for dateStr, groups := range payload.ReportersData {
		startTime, err := time.Parse(playbackTimeLayout, dateStr)
		if err != nil {
			return nil, &FetchError{Message: fmt.Sprintf("parsing playback timestamp %q", dateStr), Err: err}
		}

		values := make(map[int]float64)
		for _, entries := range groups {
			for _, entry := range entries {
				id, err := entryInt(entry.Key)
				if err != nil {
					return nil, &FetchError{Message: "parsing playback entry key", Err: err}
				}
				wh, err := entryFloat(entry.Value)
				if err != nil {
					return nil, &FetchError{Message: "parsing playback entry value", Err: err}
				}
				values[id] = wh
			}
		}

		samples = append(samples, EnergySample{StartTime: startTime, Values: values})
	}

	return samples, nil
}

// The portal has been seen emitting entry keys and values both quoted and
// bare, so both spellings are accepted.

func entryInt(v any) (int, error) {
	switch value := v.(type) {
	case string:
		return strconv.Atoi(value)
	case float64:
		return int(value), nil
	}
	return 0, fmt.Errorf("unexpected key type %T", v)
}

func entryFloat(v any) (float64, error) {
	switch value := v.(type) {
	case string:
		return strconv.ParseFloat(value, 64)
	case float64:
		return value, nil
	}
	return 0, fmt.Errorf("unexpected value type %T", v)
}
