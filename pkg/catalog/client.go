package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	fiberClient "github.com/gofiber/fiber/v3/client"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

/*
CatalogClient talks to a catalog service: agents use it to publish their
card, and anyone can use it to discover which agents are listed.
*/
type CatalogClient struct {
	conn *fiberClient.Client
}

func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{
		conn: fiberClient.New().SetBaseURL(baseURL),
	}
}

// Register publishes a card to the catalog.  Agents with a TTL-evicting
// catalog call this periodically to stay listed.
func (client *CatalogClient) Register(card *a2a.AgentCard) error {
	res, err := client.conn.Post("/agent", fiberClient.Config{
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   card,
	})

	if err != nil {
		return &ConnectionError{Message: "register", Err: err}
	}

	defer res.Close()

	if res.StatusCode() >= 300 {
		return &RegistrationError{
			StatusCode: res.StatusCode(),
			Message:    string(res.Body()),
		}
	}

	log.Debug("registered agent with catalog", "name", card.Name)

	return nil
}

// GetAgents lists every card the catalog currently knows.
func (client *CatalogClient) GetAgents() ([]a2a.AgentCard, error) {
	res, err := client.conn.Get("/.well-known/catalog.json")

	if err != nil {
		return nil, &ConnectionError{Message: "list agents", Err: err}
	}

	defer res.Close()

	if res.StatusCode() != fiber.StatusOK {
		return nil, &ConnectionError{
			Message: fmt.Sprintf("catalog returned HTTP %d", res.StatusCode()),
		}
	}

	var agents []a2a.AgentCard

	if err := json.Unmarshal(res.Body(), &agents); err != nil {
		return nil, &DecodingError{Message: "list agents", Err: err}
	}

	return agents, nil
}

// GetAgent looks up one card by agent name.
func (client *CatalogClient) GetAgent(name string) (*a2a.AgentCard, error) {
	res, err := client.conn.Get("/agent/" + name)

	if err != nil {
		return nil, &ConnectionError{Message: "get agent", Err: err}
	}

	defer res.Close()

	if res.StatusCode() == fiber.StatusNotFound {
		return nil, &NotFoundError{AgentID: name}
	}

	if res.StatusCode() != fiber.StatusOK {
		return nil, &ConnectionError{
			Message: fmt.Sprintf("catalog returned HTTP %d", res.StatusCode()),
		}
	}

	var card a2a.AgentCard

	if err := json.Unmarshal(res.Body(), &card); err != nil {
		return nil, &DecodingError{Message: "get agent", Err: err}
	}

	return &card, nil
}

// Deregister removes a card from the catalog listing.
func (client *CatalogClient) Deregister(name string) error {
	res, err := client.conn.Delete("/agent/" + name)

	if err != nil {
		return &ConnectionError{Message: "deregister", Err: err}
	}

	defer res.Close()

	if res.StatusCode() >= 300 && res.StatusCode() != fiber.StatusNotFound {
		return &ConnectionError{
			Message: fmt.Sprintf("catalog returned HTTP %d", res.StatusCode()),
		}
	}

	return nil
}
