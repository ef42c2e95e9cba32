package resilience

import (
	"net/http"
	"syscall"
	"time"
)

// Preset names accepted by Preset.
const (
	PresetLocalTool  = "local_tool"
	PresetStockMedia = "stock_media"
	PresetAI         = "ai"
	PresetNetwork    = "network"
)

// LocalTool is tuned for local media binaries: they either work quickly or
// fail for reasons a retry will not fix, so retries are few and short.
func LocalTool() Policy {
	return Policy{
		Name:       PresetLocalTool,
		MaxRetries: 2,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2,
		Classifier: Rules{
			Errors: []error{syscall.EAGAIN, syscall.ETXTBSY, syscall.EMFILE, syscall.ENFILE},
			Messages: []string{
				"resource temporarily unavailable",
				"text file busy",
				"too many open files",
			},
		}.Retryable,
	}
}

// StockMedia is tuned for external stock-media HTTP APIs.
func StockMedia() Policy {
	return Policy{
		Name:       PresetStockMedia,
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2,
		Classifier: DefaultRules().Retryable,
	}
}

// AIRules extends DefaultRules with the overload and quota signals reported
// by generative AI APIs.
func AIRules() Rules {
	return DefaultRules().With(Rules{
		Messages:    []string{"RESOURCE_EXHAUSTED", "UNAVAILABLE", "overloaded", "rate limit"},
		StatusCodes: []int{http.StatusConflict},
	})
}

// AI is tuned for slow generative AI APIs, which rate limit aggressively.
func AI() Policy {
	rules := AIRules()
	return Policy{
		Name:       PresetAI,
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2,
		Classifier: rules.Retryable,
	}
}

// Network is a general-purpose policy for short network calls.
func Network() Policy {
	return Policy{
		Name:       PresetNetwork,
		MaxRetries: 5,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
		Classifier: DefaultRules().Retryable,
	}
}

// Preset returns the named policy.
func Preset(name string) (Policy, bool) {
	switch name {
	case PresetLocalTool:
		return LocalTool(), true
	case PresetStockMedia:
		return StockMedia(), true
	case PresetAI:
		return AI(), true
	case PresetNetwork:
		return Network(), true
	default:
		return Policy{}, false
	}
}
