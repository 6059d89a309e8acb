package client

import (
	"context"
	"fmt"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

/*
Factory builds clients from agent cards, negotiating which of the card's
declared interfaces to connect to.  The card's preference order wins
unless the config asks for the client's own.
*/
type Factory struct {
	config   *Config
	registry *TransportRegistry
}

func NewFactory(config *Config) *Factory {
	if config == nil {
		config = DefaultConfig()
	}

	return &Factory{
		config:   config,
		registry: NewTransportRegistry(),
	}
}

// Registry exposes the producer table so callers can register custom
// transports before creating clients.
func (f *Factory) Registry() *TransportRegistry {
	return f.registry
}

func (f *Factory) Create(card *a2a.AgentCard, consumers ...Consumer) (*Client, error) {
	if card == nil {
		return nil, &InvalidArgsError{Message: "agent card must not be nil"}
	}

	protocol, url, err := negotiate(card, f.config)

	if err != nil {
		return nil, err
	}

	producer, ok := f.registry.Lookup(protocol)

	if !ok {
		return nil, &InvalidArgsError{Message: fmt.Sprintf("no transport registered for %s", protocol)}
	}

	transport, err := producer(card, url, f.config)

	if err != nil {
		return nil, err
	}

	consumers = append(append([]Consumer{}, f.config.Consumers...), consumers...)

	return New(card, transport, f.config, consumers...), nil
}

// CreateFromURL resolves the agent's card from its well-known location
// and builds a client for it.
func (f *Factory) CreateFromURL(ctx context.Context, baseURL string, consumers ...Consumer) (*Client, error) {
	card, err := ResolveCard(ctx, baseURL, f.config.httpClient())

	if err != nil {
		return nil, err
	}

	return f.Create(card, consumers...)
}

/*
negotiate picks the first interface both sides support.  The server's
declared order drives by default; UseClientPreference flips the loops so
the config's order drives instead.
*/
func negotiate(card *a2a.AgentCard, config *Config) (a2a.TransportProtocol, string, error) {
	server := card.Interfaces()
	supported := config.SupportedTransports

	if len(supported) == 0 {
		supported = []a2a.TransportProtocol{a2a.TransportJSONRPC}
	}

	if config.UseClientPreference {
		for _, want := range supported {
			for _, iface := range server {
				if iface.Transport == want {
					return want, iface.URL, nil
				}
			}
		}
	} else {
		for _, iface := range server {
			for _, want := range supported {
				if iface.Transport == want {
					return iface.Transport, iface.URL, nil
				}
			}
		}
	}

	return "", "", &InvalidArgsError{Message: "no compatible transports found"}
}
