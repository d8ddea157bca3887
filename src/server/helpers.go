package server

import (
	"encoding/json"
	"fmt"
	"sort"

	"gapper-terminal/src/command"
	"gapper-terminal/src/models"
)

// -----------------------------------------------------------------------------

func asSnapshot(data interface{}) (models.MSessionSnapshot, bool) {
	switch v := data.(type) {
	case models.MSessionSnapshot:
		return v, true
	case *models.MSessionSnapshot:
		if v != nil {
			return *v, true
		}
	}
	return models.MSessionSnapshot{}, false
}

func asUpdate(data interface{}) (models.MSessionUpdate, bool) {
	switch v := data.(type) {
	case models.MSessionUpdate:
		return v, true
	case *models.MSessionUpdate:
		if v != nil {
			return *v, true
		}
	}
	return models.MSessionUpdate{}, false
}

// -----------------------------------------------------------------------------

func decodeClientMessage(raw []byte) (models.MClientCommand, error) {
	var cmd models.MClientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return cmd, fmt.Errorf("invalid command json: %w", err)
	}
	switch cmd.Command {
	case "subscribe":
	case "submit":
		if cmd.Text == "" {
			return cmd, fmt.Errorf("submit needs text")
		}
	default:
		return cmd, fmt.Errorf("unknown command %q", cmd.Command)
	}
	return cmd, nil
}

// -----------------------------------------------------------------------------

// normalizeChannels canonicalizes tickers, drops junk and sorts.
func normalizeChannels(channels []string) []string {
	seen := make(map[string]struct{}, len(channels))
	out := []string{}
	for _, ch := range channels {
		t := command.NormalizeTicker(ch)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
