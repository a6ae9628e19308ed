package adapters

import (
	"fmt"

	"trader-backend/internal/domain"
	"trader-backend/internal/infrastructure/binance"
	"trader-backend/internal/infrastructure/bridge"
)

// Factory builds concrete adapters from a persisted Exchange record's type
// tag. One instance per credential; the instance is passed explicitly down
// the call chain, never cached process-wide.
type Factory struct {
	stream *binance.Stream // shared ticker cache, may be nil
}

func NewFactory(stream *binance.Stream) *Factory {
	return &Factory{stream: stream}
}

func (f *Factory) New(ex *domain.Exchange) (domain.Adapter, error) {
	switch ex.Type {
	case domain.ExchangeBinance:
		return binance.NewClient(ex, f.stream), nil
	case domain.ExchangeBridge:
		return bridge.NewClient(ex), nil
	}
	return nil, fmt.Errorf("unknown exchange type %q", ex.Type)
}
