package bus

import (
	"fmt"
	"strings"

	"github.com/ricesearch/covereval/internal/config"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/pkg/logger"
)

// NewBus creates a new Bus instance based on the configuration. The result
// is instrumented and, when a journal path is configured, journaled.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	var inner Bus
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		inner = NewMemoryBus(log)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		consumerGroup := cfg.KafkaGroup
		if consumerGroup == "" {
			consumerGroup = DefaultSource
		}

		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
		}, log)
		if err != nil {
			return nil, err
		}
		inner = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.Journal != "" {
		journal, err := OpenJournal(cfg.Journal)
		if err != nil {
			inner.Close()
			return nil, err
		}
		inner = NewJournaledBus(inner, journal, log)
	}

	return NewInstrumentedBus(inner), nil
}
