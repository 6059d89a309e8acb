package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

// mockCatalog backs the client tests with a plain net/http catalog whose
// handlers can be overridden per test for fault injection.
type mockCatalog struct {
	*httptest.Server
	registry *Registry

	registerOverride http.HandlerFunc
	listOverride     http.HandlerFunc
	getOverride      http.HandlerFunc
}

func newMockCatalog() *mockCatalog {
	mock := &mockCatalog{registry: NewRegistry()}

	mux := http.NewServeMux()
	mux.HandleFunc("/agent", mock.handleRegister)
	mux.HandleFunc("/agent/", mock.handleAgent)
	mux.HandleFunc("/.well-known/catalog.json", mock.handleList)

	mock.Server = httptest.NewServer(mux)

	return mock
}

func (mock *mockCatalog) handleRegister(w http.ResponseWriter, r *http.Request) {
	if mock.registerOverride != nil {
		mock.registerOverride(w, r)
		return
	}

	var card a2a.AgentCard

	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mock.registry.AddAgent(card)
	w.WriteHeader(http.StatusCreated)
}

func (mock *mockCatalog) handleList(w http.ResponseWriter, r *http.Request) {
	if mock.listOverride != nil {
		mock.listOverride(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mock.registry.GetAgents())
}

func (mock *mockCatalog) handleAgent(w http.ResponseWriter, r *http.Request) {
	if mock.getOverride != nil {
		mock.getOverride(w, r)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/agent/")

	if r.Method == http.MethodDelete {
		mock.registry.RemoveAgent(name)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	card, ok := mock.registry.GetAgent(name)

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(card)
}

func testCard(name string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:    name,
		URL:     "http://" + name + ".internal:3210",
		Version: "1.0.0",
		Capabilities: a2a.AgentCapabilities{
			Streaming: a2a.Bool(true),
		},
	}
}

func TestNewCatalogClient(t *testing.T) {
	Convey("Given a catalog client", t, func() {
		client := NewCatalogClient("http://localhost:8080")

		Convey("Its connection targets the base URL", func() {
			So(client.conn, ShouldNotBeNil)
			So(client.conn.BaseURL(), ShouldEqual, "http://localhost:8080")
		})
	})
}

func TestRegister(t *testing.T) {
	Convey("Given a catalog client", t, func() {
		mock := newMockCatalog()
		defer mock.Close()

		client := NewCatalogClient(mock.URL)

		Convey("Registering a card lists it in the catalog", func() {
			So(client.Register(testCard("test-agent")), ShouldBeNil)

			_, ok := mock.registry.GetAgent("test-agent")
			So(ok, ShouldBeTrue)
		})

		Convey("A rejected registration surfaces as a RegistrationError", func() {
			mock.registerOverride = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			}

			err := client.Register(testCard("test-agent"))

			So(err, ShouldHaveSameTypeAs, &RegistrationError{})
		})

		Convey("An unreachable catalog surfaces as a ConnectionError", func() {
			mock.Close()

			err := client.Register(testCard("test-agent"))

			So(err, ShouldHaveSameTypeAs, &ConnectionError{})
		})
	})
}

func TestGetAgents(t *testing.T) {
	Convey("Given a catalog client", t, func() {
		mock := newMockCatalog()
		defer mock.Close()

		client := NewCatalogClient(mock.URL)
		mock.registry.AddAgent(*testCard("test-agent"))

		Convey("Listing returns the registered cards", func() {
			agents, err := client.GetAgents()

			So(err, ShouldBeNil)
			So(agents, ShouldHaveLength, 1)
			So(agents[0].Name, ShouldEqual, "test-agent")
		})

		Convey("A server failure surfaces as a ConnectionError", func() {
			mock.listOverride = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}

			agents, err := client.GetAgents()

			So(err, ShouldHaveSameTypeAs, &ConnectionError{})
			So(agents, ShouldBeNil)
		})

		Convey("A garbled response surfaces as a DecodingError", func() {
			mock.listOverride = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte("not json"))
			}

			agents, err := client.GetAgents()

			So(err, ShouldHaveSameTypeAs, &DecodingError{})
			So(agents, ShouldBeNil)
		})
	})
}

func TestGetAgent(t *testing.T) {
	Convey("Given a catalog client", t, func() {
		mock := newMockCatalog()
		defer mock.Close()

		client := NewCatalogClient(mock.URL)
		mock.registry.AddAgent(*testCard("test-agent"))

		Convey("A listed agent is returned by name", func() {
			card, err := client.GetAgent("test-agent")

			So(err, ShouldBeNil)
			So(card.Name, ShouldEqual, "test-agent")
		})

		Convey("An unknown name surfaces as a NotFoundError", func() {
			card, err := client.GetAgent("non-existent")

			So(err, ShouldHaveSameTypeAs, &NotFoundError{})
			So(card, ShouldBeNil)
		})

		Convey("A garbled response surfaces as a DecodingError", func() {
			mock.getOverride = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte("not json"))
			}

			card, err := client.GetAgent("test-agent")

			So(err, ShouldHaveSameTypeAs, &DecodingError{})
			So(card, ShouldBeNil)
		})
	})
}

func TestDeregister(t *testing.T) {
	Convey("Given a catalog client with a registered agent", t, func() {
		mock := newMockCatalog()
		defer mock.Close()

		client := NewCatalogClient(mock.URL)
		mock.registry.AddAgent(*testCard("test-agent"))

		Convey("Deregistering drops it from the listing", func() {
			So(client.Deregister("test-agent"), ShouldBeNil)

			_, ok := mock.registry.GetAgent("test-agent")
			So(ok, ShouldBeFalse)
		})
	})
}
